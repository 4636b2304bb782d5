package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/service"
	"github.com/runevault/storefront-backend/pkg/middleware"
)

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	store    Pinger
	limiter  *middleware.AuthRateLimiter
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance. limiter may be nil.
func NewHandlers(services *service.Services, store Pinger, limiter *middleware.AuthRateLimiter, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		store:    store,
		limiter:  limiter,
		logger:   logger.Named("handlers"),
	}
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "ok",
		Service:      "storefront-backend",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// Health reports whether storage is reachable
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdminAuth dispatches POST /api/admin/auth on the action field
func (h *Handlers) AdminAuth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{Message: "Invalid request body"})
		return
	}
	c.Set(middleware.ActionKey, req.Action)

	switch req.Action {
	case ActionGenerateKey:
		h.generateKey(c, &req)
	case ActionVerifyKey:
		if h.requireCSRF(c) {
			h.verifyKey(c, &req)
		}
	case ActionValidateSession:
		h.validateSession(c, &req)
	case ActionSend2FACode:
		if h.requireCSRF(c) {
			h.send2FACode(c, &req)
		}
	case ActionVerify2FACode:
		if h.requireCSRF(c) {
			h.verify2FACode(c, &req)
		}
	case ActionLogout:
		h.logout(c, &req)
	default:
		c.JSON(http.StatusBadRequest, AuthResponse{Message: "Unknown action"})
	}
}

// Session handles GET /api/admin/session behind middleware.SessionAuth
func (h *Handlers) Session(c *gin.Context) {
	expiresAt, _ := c.Get(middleware.SessionExpiresAtKey)
	t, _ := expiresAt.(time.Time)
	c.JSON(http.StatusOK, SessionInfo{Success: true, ExpiresAt: t})
}

func (h *Handlers) generateKey(c *gin.Context, req *AuthRequest) {
	issued, err := h.services.Auth.RequestKey(c.Request.Context(), req.DeviceFingerprint, c.ClientIP())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Authentication key sent to the administrator",
		Nonce:     issued.Nonce,
		ExpiresAt: &issued.ExpiresAt,
	})
}

func (h *Handlers) verifyKey(c *gin.Context, req *AuthRequest) {
	pending, err := h.services.Auth.VerifyKey(c.Request.Context(), req.Key, req.Nonce, req.DeviceFingerprint, c.ClientIP())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{
		Success:           true,
		Message:           "Verification code sent",
		TwoFactorRequired: true,
		ContactMethod:     pending.ContactMethod,
		ContactValue:      pending.ContactValue,
		ExpiresAt:         &pending.ExpiresAt,
	})
}

func (h *Handlers) validateSession(c *gin.Context, req *AuthRequest) {
	status, err := h.services.Auth.ValidateSession(c.Request.Context(), req.SessionToken, req.DeviceFingerprint)
	if err != nil {
		if errors.Is(err, service.ErrAuthentication) {
			valid := false
			c.JSON(http.StatusUnauthorized, AuthResponse{Valid: &valid, Message: "Invalid session"})
			return
		}
		h.fail(c, err)
		return
	}
	valid := true
	c.JSON(http.StatusOK, AuthResponse{
		Success:          true,
		Valid:            &valid,
		ExpiresAt:        &status.ExpiresAt,
		RemainingSeconds: int64(status.Remaining / time.Second),
	})
}

func (h *Handlers) send2FACode(c *gin.Context, req *AuthRequest) {
	dispatch, err := h.services.Auth.ResendTwoFactor(c.Request.Context(), req.ContactMethod, req.ContactValue)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{
		Success:       true,
		Message:       "Verification code sent",
		ContactMethod: dispatch.ContactMethod,
		ExpiresAt:     &dispatch.ExpiresAt,
	})
}

func (h *Handlers) verify2FACode(c *gin.Context, req *AuthRequest) {
	grant, err := h.services.Auth.VerifyTwoFactor(c.Request.Context(),
		req.ContactMethod, req.ContactValue, req.AuthCode,
		req.DeviceFingerprint, c.ClientIP(), c.Request.UserAgent(),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{
		Success:      true,
		Message:      "Authenticated",
		SessionToken: grant.Token,
		ExpiresAt:    &grant.ExpiresAt,
	})
}

func (h *Handlers) logout(c *gin.Context, req *AuthRequest) {
	if err := h.services.Auth.Logout(c.Request.Context(), req.SessionToken); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Success: true})
}

func (h *Handlers) requireCSRF(c *gin.Context) bool {
	if middleware.CSRFTokenValid(c) {
		return true
	}
	h.logger.Warn("Rejected request without anti-forgery token", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusForbidden, AuthResponse{Message: "Invalid or missing anti-forgery token"})
	return false
}

// fail maps a service error to a status and a structured body. Storage and
// unexpected errors are logged and redacted.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, AuthResponse{Message: err.Error()})
	case errors.Is(err, service.ErrAuthentication):
		if h.limiter != nil {
			h.limiter.RecordFailure(c.ClientIP())
		}
		c.JSON(http.StatusUnauthorized, AuthResponse{Message: err.Error()})
	default:
		h.logger.Error("Admin auth request failed",
			zap.String("action", c.GetString(middleware.ActionKey)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, AuthResponse{Message: "Internal server error"})
	}
}
