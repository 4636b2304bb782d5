package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

// SessionGrant is a freshly issued session
type SessionGrant struct {
	Token     string
	ExpiresAt time.Time
}

// SessionStatus describes a session that passed validation
type SessionStatus struct {
	ExpiresAt time.Time
	Remaining time.Duration
}

// SessionService issues, validates and revokes admin sessions
type SessionService struct {
	store   storage.Store
	cfg     config.AuthConfig
	auditor audit.Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(store storage.Store, cfg config.AuthConfig, auditor audit.Auditor, logger *zap.Logger) *SessionService {
	return &SessionService{
		store:   store,
		cfg:     cfg,
		auditor: auditor,
		logger:  logger.Named("session-service"),
		now:     time.Now,
	}
}

// Issue creates a session bound to the device fingerprint
func (s *SessionService) Issue(ctx context.Context, fingerprint, ip, userAgent string) (*SessionGrant, error) {
	if fingerprint == "" {
		return nil, validationErrorf("device fingerprint is required")
	}

	now := s.now()
	session := &domain.SessionRecord{
		ID:                uuid.NewString(),
		SessionToken:      uuid.NewString(),
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
		UserAgent:         userAgent,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.SessionTTL()),
		LastActiveAt:      now,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, storageError("create session", err)
	}

	s.auditor.Record(audit.Event{
		Timestamp:         now,
		Type:              audit.EventSessionIssued,
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
	})
	s.logger.Info("Admin session issued", zap.String("session_id", session.ID), zap.String("ip", ip))

	return &SessionGrant{Token: session.SessionToken, ExpiresAt: session.ExpiresAt}, nil
}

// Validate checks token and device binding and records activity.
// Expired sessions are left for the cleanup worker.
func (s *SessionService) Validate(ctx context.Context, token, fingerprint string) (*SessionStatus, error) {
	if token == "" || fingerprint == "" {
		return nil, ErrInvalidSession
	}

	session, err := s.store.Sessions().GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.reject(fingerprint, "unknown token")
		}
		return nil, storageError("get session", err)
	}

	now := s.now()
	if session.IsExpired(now) {
		return nil, s.reject(fingerprint, "expired")
	}
	if subtle.ConstantTimeCompare([]byte(fingerprint), []byte(session.DeviceFingerprint)) != 1 {
		return nil, s.reject(fingerprint, "fingerprint mismatch")
	}

	if err := s.store.Sessions().Touch(ctx, token, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Revoked between read and touch
			return nil, s.reject(fingerprint, "revoked")
		}
		return nil, storageError("touch session", err)
	}

	return &SessionStatus{
		ExpiresAt: session.ExpiresAt,
		Remaining: session.ExpiresAt.Sub(now),
	}, nil
}

// Revoke deletes the session. Unknown tokens are not an error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Sessions().Delete(ctx, token); err != nil {
		return storageError("delete session", err)
	}
	s.auditor.Record(audit.Event{Timestamp: s.now(), Type: audit.EventSessionRevoked})
	return nil
}

func (s *SessionService) reject(fingerprint, reason string) error {
	s.auditor.Record(audit.Event{
		Timestamp:         s.now(),
		Type:              audit.EventSessionRejected,
		DeviceFingerprint: fingerprint,
		Reason:            reason,
	})
	s.logger.Debug("Session rejected", zap.String("reason", reason))
	return ErrInvalidSession
}
