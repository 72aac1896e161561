package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"uptimedock/middleware"
	"uptimedock/models"
	"uptimedock/services"
)

func (h *Handler) CreateMonitor(c *gin.Context) {
	var req struct {
		URL             string `json:"url"`
		TeamID          string `json:"team_id"`
		Kind            string `json:"kind"`
		NotifyThreshold *int   `json:"notify_threshold"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	kind, err := models.ParseMonitorKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.Engine.CreateMonitor(c.Request.Context(), middleware.UserID(c), services.MonitorInput{
		URL:             req.URL,
		TeamID:          req.TeamID,
		Kind:            kind,
		NotifyThreshold: req.NotifyThreshold,
	})
	if err != nil {
		respondError(c, err, "Monitor not found")
		return
	}

	c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMonitors(c *gin.Context) {
	monitors, err := h.Engine.ListMonitors(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "Monitor not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"monitors": monitors})
}

func (h *Handler) GetMonitor(c *gin.Context) {
	d, err := h.Engine.MonitorDetail(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "Monitor not found")
		return
	}

	c.JSON(http.StatusOK, d)
}

func (h *Handler) GetResponseTimes(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	samples, err := h.Engine.ResponseTimes(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit)
	if err != nil {
		respondError(c, err, "Monitor not found")
		return
	}
	if samples == nil {
		samples = []models.ResponseTime{}
	}

	c.JSON(http.StatusOK, gin.H{"response_times": samples})
}

func (h *Handler) DeleteMonitor(c *gin.Context) {
	id := c.Param("id")
	if err := h.Engine.DeleteMonitor(c.Request.Context(), middleware.UserID(c), id); err != nil {
		respondError(c, err, "Monitor not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Monitor deleted", "id": id})
}
