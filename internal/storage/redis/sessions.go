// Package redis keeps admin sessions in Redis so several server replicas can
// share them. Key expiry follows each session's own expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

const defaultKeyPrefix = "storefront:session:"

// SessionStore implements storage.SessionStore on Redis
type SessionStore struct {
	client    *goredis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewSessionStore connects to Redis and verifies the connection
func NewSessionStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*SessionStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewSessionStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewSessionStoreWithClient wraps an existing client
func NewSessionStoreWithClient(client *goredis.Client, keyPrefix string, logger *zap.Logger) *SessionStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &SessionStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.Named("redis_sessions"),
	}
}

func (r *SessionStore) key(token string) string {
	return r.keyPrefix + token
}

func (r *SessionStore) Create(ctx context.Context, session *domain.SessionRecord) error {
	// Lifetime comes from the record so the key expires with ExpiresAt
	// whatever clock the caller stamped it with
	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if session.CreatedAt.IsZero() || ttl <= 0 {
		return fmt.Errorf("%w: session has no remaining lifetime", storage.ErrInvalidInput)
	}

	data, err := json.Marshal(toEntry(session))
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	ok, err := r.client.SetNX(ctx, r.key(session.SessionToken), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to create session: %v", storage.ErrDatabase, err)
	}
	if !ok {
		return storage.ErrAlreadyExists
	}
	return nil
}

func (r *SessionStore) GetByToken(ctx context.Context, token string) (*domain.SessionRecord, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get session: %v", storage.ErrDatabase, err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: corrupt session entry: %v", storage.ErrDatabase, err)
	}
	return e.record(token), nil
}

// Touch rewrites last activity inside a WATCH transaction and keeps the TTL
func (r *SessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	key := r.key(token)

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var e entry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		e.LastActiveAt = at

		updated, err := json.Marshal(e)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, key, updated, goredis.SetArgs{KeepTTL: true, Mode: "XX"})
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return err
	case errors.Is(err, goredis.TxFailedErr):
		// A concurrent writer touched or deleted it first
		r.logger.Debug("Session touch lost a race", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("%w: failed to touch session: %v", storage.ErrDatabase, err)
	}
}

func (r *SessionStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", storage.ErrDatabase, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys on its own
func (r *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Ping checks the Redis connection
func (r *SessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client
func (r *SessionStore) Close() error {
	return r.client.Close()
}

// entry is the stored form; the token is the key and is not repeated
type entry struct {
	ID                string    `json:"id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address"`
	UserAgent         string    `json:"user_agent"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

func toEntry(s *domain.SessionRecord) entry {
	return entry{
		ID:                s.ID,
		DeviceFingerprint: s.DeviceFingerprint,
		IPAddress:         s.IPAddress,
		UserAgent:         s.UserAgent,
		CreatedAt:         s.CreatedAt,
		ExpiresAt:         s.ExpiresAt,
		LastActiveAt:      s.LastActiveAt,
	}
}

func (e entry) record(token string) *domain.SessionRecord {
	return &domain.SessionRecord{
		ID:                e.ID,
		SessionToken:      token,
		DeviceFingerprint: e.DeviceFingerprint,
		IPAddress:         e.IPAddress,
		UserAgent:         e.UserAgent,
		CreatedAt:         e.CreatedAt,
		ExpiresAt:         e.ExpiresAt,
		LastActiveAt:      e.LastActiveAt,
	}
}
