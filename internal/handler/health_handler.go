// Package handler contains HTTP request handlers.
// In Gin, a handler is any function with signature func(*gin.Context).
// Handlers are plain functions grouped by file.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db       Pinger // nil skips the database check
	provider string
	model    string
}

// NewHealthHandler creates a new HealthHandler. provider and model name the
// configured model backend and are reported as-is.
func NewHealthHandler(db Pinger, provider, model string) *HealthHandler {
	return &HealthHandler{db: db, provider: provider, model: model}
}

// Healthz responds with service status. A failing call-log database makes
// the service unhealthy.
func (h *HealthHandler) Healthz(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":   status,
		"service":  "research-analyst",
		"provider": h.provider,
		"model":    h.model,
	})
}
