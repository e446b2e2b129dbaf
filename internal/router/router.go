package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/problem-bridge/internal/config"
	"github.com/stemsi/problem-bridge/internal/handler"
	"github.com/stemsi/problem-bridge/internal/middleware"
	"github.com/stemsi/problem-bridge/internal/response"
	"github.com/stemsi/problem-bridge/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Bridge  *handler.BridgeHandler
	Problem *handler.ProblemHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request IDs first so the access log can report them.
	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log))

	router.GET("/health", handlers.System.Health)

	// ─── 1. REST API (JWT) ─────────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService), middleware.CacheControl(0), middleware.Brotli())
	{
		api.GET("/problems/:problem_id/activity", handlers.Problem.Activity)
		api.GET("/problems/:problem_id/grades/stream", handlers.Problem.GradeStream)
		api.GET("/system/metrics", handlers.System.MetricsSSE)
	}

	// ─── 2. Bridge WebSocket (JWT via ?token=) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireJWT(authService))
	if cfg.BridgeConnectRate > 0 {
		ws.Use(middleware.NewRateLimiter(cfg.BridgeConnectRate, time.Minute).Middleware())
	}
	{
		ws.GET("/bridge", handlers.Bridge.BridgeStream)
	}

	return router
}
