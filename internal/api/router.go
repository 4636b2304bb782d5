package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/service"
	"github.com/runevault/storefront-backend/pkg/config"
	"github.com/runevault/storefront-backend/pkg/middleware"
)

// NewRouter wires middleware and routes for the admin auth API
func NewRouter(cfg *config.Config, services *service.Services, store Pinger, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg.CORS)))

	limiter := middleware.NewAuthRateLimiter(cfg.Security.AuthRateLimit, logger)
	handlers := NewHandlers(services, store, limiter, logger)

	router.GET("/status", handlers.Status)
	router.GET("/health", handlers.Health)

	admin := router.Group("/api/admin")
	{
		admin.POST("/auth", middleware.AuthRateLimitMiddleware(limiter), handlers.AdminAuth)
		admin.GET("/session", middleware.SessionAuth(services.Sessions, logger), handlers.Session)
	}

	return router
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.CSRFHeader, middleware.FingerprintHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(c.AllowOrigins) == 0 {
		// No browser origin configured: same-origin and non-browser clients only
		c.AllowOriginFunc = func(string) bool { return false }
	}
	return c
}
