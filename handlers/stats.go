package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"uptimedock/middleware"
	"uptimedock/models"
)

// Read-only incident analytics
func (h *Handler) GetAnalytics(c *gin.Context) {
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

	a, err := h.Engine.Analytics(c.Request.Context(), middleware.UserID(c), models.AnalyticsFilter{
		Start: start,
		End:   end,
		URL:   c.Query("url"),
	})
	if err != nil {
		respondError(c, err, "Monitor not found")
		return
	}

	c.JSON(http.StatusOK, a)
}
