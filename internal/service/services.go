package service

import (
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

// Services aggregates all application services
type Services struct {
	Keys           *KeyService
	TwoFactor      *TwoFactorService
	Sessions       *SessionService
	Auth           *AuthService
	SessionCleanup *SessionCleanupWorker
}

// NewServices creates a new Services instance
func NewServices(store storage.Store, cfg *config.Config, sink notify.Sink, auditor audit.Auditor, logger *zap.Logger) *Services {
	if auditor == nil {
		auditor = audit.Nop{}
	}

	keys := NewKeyService(store, cfg.Auth, sink, auditor, logger)
	twoFactor := NewTwoFactorService(store, cfg.Auth, sink, auditor, logger)
	sessions := NewSessionService(store, cfg.Auth, auditor, logger)

	return &Services{
		Keys:           keys,
		TwoFactor:      twoFactor,
		Sessions:       sessions,
		Auth:           NewAuthService(keys, twoFactor, sessions, cfg.Auth, logger),
		SessionCleanup: NewSessionCleanupWorker(cfg.Security.SessionCleanup, store, logger),
	}
}

// Start starts background workers
func (s *Services) Start() {
	if s.SessionCleanup != nil {
		s.SessionCleanup.Start()
	}
}

// Stop gracefully stops background workers
func (s *Services) Stop() {
	if s.SessionCleanup != nil {
		s.SessionCleanup.Stop()
	}
}
