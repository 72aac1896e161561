package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"uptimedock/middleware"
	"uptimedock/models"
)

func (h *Handler) ListIncidents(c *gin.Context) {
	start, err := parseDate(c.Query("start_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date"})
		return
	}
	end, err := parseDate(c.Query("end_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date"})
		return
	}

	incidents, err := h.Engine.ListIncidents(c.Request.Context(), middleware.UserID(c), models.IncidentFilter{Start: start, End: end})
	if err != nil {
		respondError(c, err, "Incident not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}

func (h *Handler) AcknowledgeIncident(c *gin.Context) {
	inc, err := h.Engine.Acknowledge(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Incident not found")
		return
	}

	c.JSON(http.StatusOK, inc)
}

func (h *Handler) ResolveIncident(c *gin.Context) {
	inc, err := h.Engine.Resolve(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Incident not found")
		return
	}

	c.JSON(http.StatusOK, inc)
}
