package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/pkg/config"
)

// PendingTwoFactor is returned once the key step passes
type PendingTwoFactor struct {
	ContactMethod string
	ContactValue  string
	ExpiresAt     time.Time
}

// AuthService sequences the admin login handshake:
// key issuance, key verification, two-factor, session issuance.
type AuthService struct {
	keys      *KeyService
	twoFactor *TwoFactorService
	sessions  *SessionService
	cfg       config.AuthConfig
	logger    *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(keys *KeyService, twoFactor *TwoFactorService, sessions *SessionService, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		keys:      keys,
		twoFactor: twoFactor,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger.Named("auth-service"),
	}
}

// RequestKey starts a login by issuing a one-time key
func (a *AuthService) RequestKey(ctx context.Context, fingerprint, ip string) (*KeyIssuance, error) {
	return a.keys.RequestKey(ctx, fingerprint, ip)
}

// VerifyKey consumes the key and sends a code to the configured admin contact.
// No session is issued yet.
func (a *AuthService) VerifyKey(ctx context.Context, key, nonce, fingerprint, ip string) (*PendingTwoFactor, error) {
	if err := a.keys.VerifyKey(ctx, key, nonce, fingerprint, ip); err != nil {
		return nil, err
	}

	dispatch, err := a.twoFactor.Send(ctx, a.cfg.AdminContactMethod, a.cfg.AdminContactValue)
	if err != nil {
		a.logger.Error("Key accepted but code dispatch failed", zap.String("nonce", nonce), zap.Error(err))
		return nil, err
	}

	return &PendingTwoFactor{
		ContactMethod: dispatch.ContactMethod,
		ContactValue:  dispatch.ContactValue,
		ExpiresAt:     dispatch.ExpiresAt,
	}, nil
}

// ResendTwoFactor sends a new code. Only the configured admin contact may
// receive codes.
func (a *AuthService) ResendTwoFactor(ctx context.Context, method, value string) (*TwoFactorDispatch, error) {
	if method != a.cfg.AdminContactMethod || value != a.cfg.AdminContactValue {
		return nil, validationErrorf("contact is not the configured admin contact")
	}
	return a.twoFactor.Send(ctx, method, value)
}

// VerifyTwoFactor consumes the code and issues a session bound to the device
func (a *AuthService) VerifyTwoFactor(ctx context.Context, method, value, code, fingerprint, ip, userAgent string) (*SessionGrant, error) {
	if fingerprint == "" {
		return nil, validationErrorf("device fingerprint is required")
	}
	if err := a.twoFactor.Verify(ctx, method, value, code); err != nil {
		return nil, err
	}
	return a.sessions.Issue(ctx, fingerprint, ip, userAgent)
}

// ValidateSession checks a session token for the device
func (a *AuthService) ValidateSession(ctx context.Context, token, fingerprint string) (*SessionStatus, error) {
	return a.sessions.Validate(ctx, token, fingerprint)
}

// Logout revokes the session
func (a *AuthService) Logout(ctx context.Context, token string) error {
	return a.sessions.Revoke(ctx, token)
}
