// Package server configures the HTTP server and routes.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fleveque/research-analyst/internal/config"
	"github.com/fleveque/research-analyst/internal/handler"
	"github.com/fleveque/research-analyst/internal/middleware"
	"github.com/fleveque/research-analyst/internal/storage"
)

// Deps holds everything the handlers need.
type Deps struct {
	Analyzer    handler.Analyzer
	Calls       storage.CallRepository
	DB          handler.Pinger
	Provider    string
	Model       string
	TeamEnabled bool
}

// RegisterRoutes sets up all HTTP routes on the Gin engine.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps, logger *zap.Logger) {
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Provider, deps.Model)
	pageHandler := handler.NewPageHandler(deps.TeamEnabled, logger)
	analysisHandler := handler.NewAnalysisHandler(deps.Analyzer, pageHandler, cfg.Upload.MaxBytes, logger)
	teamHandler := handler.NewTeamHandler(deps.Analyzer, pageHandler, logger)
	adminHandler := handler.NewAdminHandler(deps.Calls, logger)

	// Public endpoints (no auth)
	r.GET("/", pageHandler.Index)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	// Preflights need a matching route for the group middleware to run.
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	authed := api.Group("")
	authed.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
	authed.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		authed.POST("/analyses", analysisHandler.Analyze)
		authed.POST("/team/runs", teamHandler.Run)
	}

	// Admin endpoints (separate auth with admin keys)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminKeyAuth(cfg.Auth.AdminKeys))
	{
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/calls/:request_id", adminHandler.Calls)
	}
}
