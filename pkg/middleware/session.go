package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/service"
)

// Context keys set by the middleware in this package
const (
	ActionKey           = "action"
	SessionTokenKey     = "session_token"
	SessionExpiresAtKey = "session_expires_at"
	FingerprintHeader   = "X-Device-Fingerprint"
)

// SessionValidator validates an admin session for a device
type SessionValidator interface {
	Validate(ctx context.Context, token, fingerprint string) (*service.SessionStatus, error)
}

// SessionAuth requires a valid admin session: a Bearer token in the
// Authorization header and the device fingerprint it was issued to.
func SessionAuth(sessions SessionValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authorization header required"})
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid authorization header format"})
			return
		}

		token := strings.TrimSpace(parts[1])
		fingerprint := c.GetHeader(FingerprintHeader)

		status, err := sessions.Validate(c.Request.Context(), token, fingerprint)
		if err != nil {
			if errors.Is(err, service.ErrAuthentication) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "valid": false, "message": "Invalid session"})
				return
			}
			logger.Error("Session validation failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
			return
		}

		c.Set(SessionTokenKey, token)
		c.Set(SessionExpiresAtKey, status.ExpiresAt)
		c.Next()
	}
}
