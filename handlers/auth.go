package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"uptimedock/middleware"
	"uptimedock/models"
)

func (h *Handler) Me(c *gin.Context) {
	userID := middleware.UserID(c)

	var response struct {
		models.User
		MonitorCount int `json:"monitor_count"`
	}

	user, err := h.Engine.Store.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "User not found")
		return
	}
	response.User = user

	monitors, err := h.Engine.Store.FindMonitorsByUser(c.Request.Context(), userID)
	if err == nil {
		response.MonitorCount = len(monitors)
	}

	c.JSON(http.StatusOK, response)
}
