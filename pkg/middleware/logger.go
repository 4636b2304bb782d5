package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a gin middleware for logging
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if action, ok := c.Get(ActionKey); ok {
			fields = append(fields, zap.Any("action", action))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("Request", fields...)
		default:
			logger.Info("Request", fields...)
		}
	}
}
