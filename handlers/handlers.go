package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"uptimedock/db"
	"uptimedock/services"
)

type Handler struct {
	Engine *services.Engine
}

// Register mounts the API on r. auth guards everything under /api.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/healthz", Healthz)

	api := r.Group("/api", auth)
	{
		api.GET("/me", h.Me)

		api.POST("/monitors", h.CreateMonitor)
		api.GET("/monitors", h.ListMonitors)
		api.GET("/monitors/:id", h.GetMonitor)
		api.DELETE("/monitors/:id", h.DeleteMonitor)
		api.GET("/monitors/:id/response-times", h.GetResponseTimes)

		api.GET("/incidents", h.ListIncidents)
		api.POST("/incidents/:id/acknowledge", h.AcknowledgeIncident)
		api.POST("/incidents/:id/resolve", h.ResolveIncident)

		api.GET("/analytics", h.GetAnalytics)
	}
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps error kinds to HTTP statuses.
func respondError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, services.ErrDuplicateMonitor):
		c.JSON(http.StatusConflict, gin.H{"error": "Monitor already present"})
	case errors.Is(err, services.ErrWorkflow), errors.Is(err, db.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
