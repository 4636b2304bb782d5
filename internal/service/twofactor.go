package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// TwoFactorDispatch describes a sent code
type TwoFactorDispatch struct {
	ContactMethod string
	ContactValue  string
	ExpiresAt     time.Time
}

// TwoFactorService issues and verifies six-digit codes
type TwoFactorService struct {
	store   storage.Store
	cfg     config.AuthConfig
	sink    notify.Sink
	auditor audit.Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(store storage.Store, cfg config.AuthConfig, sink notify.Sink, auditor audit.Auditor, logger *zap.Logger) *TwoFactorService {
	return &TwoFactorService{
		store:   store,
		cfg:     cfg,
		sink:    sink,
		auditor: auditor,
		logger:  logger.Named("twofactor-service"),
		now:     time.Now,
	}
}

// Send stores a fresh code for the contact channel and delivers it
func (s *TwoFactorService) Send(ctx context.Context, method, value string) (*TwoFactorDispatch, error) {
	if !domain.ValidContactMethod(method) {
		return nil, validationErrorf("unsupported contact method %q", method)
	}
	if value == "" {
		return nil, validationErrorf("contact value is required")
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	now := s.now()
	record := &domain.TwoFactorRecord{
		ID:            uuid.NewString(),
		AuthCode:      code,
		ContactMethod: method,
		ContactValue:  value,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.CodeTTL()),
	}
	if err := s.store.TwoFactor().Create(ctx, record); err != nil {
		return nil, storageError("create two-factor code", err)
	}

	s.auditor.Record(audit.Event{
		Timestamp:     now,
		Type:          audit.EventCodeSent,
		ContactMethod: method,
	})

	deliver(ctx, s.sink, s.auditor, s.logger, notify.Message{
		Title: "Admin verification code",
		Fields: []notify.Field{
			{Name: "Code", Value: code},
			{Name: "Method", Value: method},
			{Name: "Contact", Value: value},
			{Name: "Expires", Value: record.ExpiresAt.UTC().Format(time.RFC3339)},
		},
	})

	return &TwoFactorDispatch{
		ContactMethod: method,
		ContactValue:  value,
		ExpiresAt:     record.ExpiresAt,
	}, nil
}

// Verify consumes the most recent matching code
func (s *TwoFactorService) Verify(ctx context.Context, method, value, code string) error {
	if method == "" || value == "" || code == "" {
		return validationErrorf("contact method, contact value and code are required")
	}

	ev := audit.Event{
		Timestamp:     s.now(),
		Type:          audit.EventCodeRejected,
		ContactMethod: method,
	}

	record, err := s.store.TwoFactor().FindLatestUnverified(ctx, method, value, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.reject(ev, ErrInvalidCode)
			return ErrInvalidCode
		}
		return storageError("find two-factor code", err)
	}

	now := s.now()
	if record.IsExpired(now) {
		s.reject(ev, ErrCodeExpired)
		return ErrCodeExpired
	}

	if err := s.store.TwoFactor().MarkVerified(ctx, record.ID, now); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			s.reject(ev, ErrInvalidCode)
			return ErrInvalidCode
		}
		return storageError("mark two-factor code verified", err)
	}

	ev.Type = audit.EventCodeVerified
	s.auditor.Record(ev)
	return nil
}

func (s *TwoFactorService) reject(ev audit.Event, reason error) {
	ev.Reason = reason.Error()
	s.auditor.Record(ev)
	s.logger.Info("Verification code rejected",
		zap.String("contact_method", ev.ContactMethod),
		zap.String("reason", ev.Reason),
	)
}

// generateCode returns a code uniform over [codeMin, codeMax]
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
