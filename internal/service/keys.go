package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

const keyBytes = 16

// KeyIssuance is what the requester learns about an issued key.
// The key itself only travels over the notification sink.
type KeyIssuance struct {
	Nonce     string
	ExpiresAt time.Time
}

// KeyService issues and consumes one-time admin keys
type KeyService struct {
	store   storage.Store
	cfg     config.AuthConfig
	sink    notify.Sink
	auditor audit.Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewKeyService creates a new KeyService
func NewKeyService(store storage.Store, cfg config.AuthConfig, sink notify.Sink, auditor audit.Auditor, logger *zap.Logger) *KeyService {
	return &KeyService{
		store:   store,
		cfg:     cfg,
		sink:    sink,
		auditor: auditor,
		logger:  logger.Named("key-service"),
		now:     time.Now,
	}
}

// RequestKey issues a key bound to the requesting device and sends it to the
// administrator. A failed delivery is logged; the issued key stays valid.
func (s *KeyService) RequestKey(ctx context.Context, fingerprint, ip string) (*KeyIssuance, error) {
	if fingerprint == "" {
		return nil, validationErrorf("device fingerprint is required")
	}

	key, err := randomHex(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	sum := sha256.Sum256([]byte(key))

	now := s.now()
	record := &domain.AuthKeyRecord{
		ID:                uuid.NewString(),
		AuthKey:           key,
		KeyHash:           hex.EncodeToString(sum[:]),
		Nonce:             uuid.NewString(),
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.KeyTTL()),
	}

	if err := s.store.AuthKeys().Create(ctx, record); err != nil {
		return nil, storageError("create auth key", err)
	}

	s.auditor.Record(audit.Event{
		Timestamp:         now,
		Type:              audit.EventKeyIssued,
		Nonce:             record.Nonce,
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
	})

	deliver(ctx, s.sink, s.auditor, s.logger, notify.Message{
		Title: "Admin authentication key requested",
		Fields: []notify.Field{
			{Name: "Key", Value: key},
			{Name: "Nonce", Value: record.Nonce},
			{Name: "Expires", Value: record.ExpiresAt.UTC().Format(time.RFC3339)},
			{Name: "IP", Value: ip},
			{Name: "Fingerprint", Value: fingerprint},
		},
	})

	return &KeyIssuance{Nonce: record.Nonce, ExpiresAt: record.ExpiresAt}, nil
}

// VerifyKey consumes the key issued under nonce. Rejections leave the record
// untouched; a concurrent consumer that loses the race sees
// ErrInvalidOrExpiredAttempt.
func (s *KeyService) VerifyKey(ctx context.Context, key, nonce, fingerprint, ip string) error {
	if key == "" || nonce == "" {
		return validationErrorf("key and nonce are required")
	}

	ev := audit.Event{
		Timestamp:         s.now(),
		Type:              audit.EventKeyRejected,
		Nonce:             nonce,
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
	}

	record, err := s.store.AuthKeys().GetUnusedByNonce(ctx, nonce)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.reject(ev, ErrInvalidOrExpiredAttempt)
			return ErrInvalidOrExpiredAttempt
		}
		return storageError("get auth key", err)
	}

	now := s.now()
	if record.IsExpired(now) {
		s.reject(ev, ErrKeyExpired)
		return ErrKeyExpired
	}

	if subtle.ConstantTimeCompare([]byte(key), []byte(record.AuthKey)) != 1 {
		s.reject(ev, ErrInvalidKey)
		return ErrInvalidKey
	}

	if err := s.store.AuthKeys().MarkUsed(ctx, record.ID, now); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			s.reject(ev, ErrInvalidOrExpiredAttempt)
			return ErrInvalidOrExpiredAttempt
		}
		return storageError("mark auth key used", err)
	}

	ev.Type = audit.EventKeyVerified
	s.auditor.Record(ev)
	return nil
}

func (s *KeyService) reject(ev audit.Event, reason error) {
	ev.Reason = reason.Error()
	s.auditor.Record(ev)
	s.logger.Info("Admin key rejected",
		zap.String("nonce", ev.Nonce),
		zap.String("ip", ev.IPAddress),
		zap.String("reason", ev.Reason),
	)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// deliver sends msg through the sink. Failure is a NotificationError: it is
// logged and audited but never returned.
func deliver(ctx context.Context, sink notify.Sink, auditor audit.Auditor, logger *zap.Logger, msg notify.Message) {
	if err := sink.Send(ctx, msg); err != nil {
		err = fmt.Errorf("%w: %v", ErrNotification, err)
		logger.Error("Failed to deliver admin notification",
			zap.String("title", msg.Title),
			zap.Error(err),
		)
		auditor.Record(audit.Event{
			Timestamp: time.Now(),
			Type:      audit.EventNotifyFailed,
			Nonce:     msg.Value("Nonce"),
			Reason:    err.Error(),
		})
	}
}
