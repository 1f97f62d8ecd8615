package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/wlanlogin/api/handler"
	"github.com/use-agent/wlanlogin/api/middleware"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/metrics"
	"github.com/use-agent/wlanlogin/supervisor"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health is outside auth so monitoring probes always work. ctx bounds the
// rate limiter's cleanup goroutine.
func NewRouter(ctx context.Context, sup *supervisor.Supervisor, m *metrics.Metrics, cfg *config.Config, startTime time.Time, version string) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(sup, startTime, version))

	// Protected group: auth + rate limit.
	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	api := protected.Group("/api/v1")
	api.GET("/status", handler.Status(sup))
	api.GET("/attempts", handler.Attempts(sup))
	api.POST("/login", handler.Login(sup))

	if m != nil {
		protected.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}
