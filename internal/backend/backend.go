package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/internal/storage/memory"
	"github.com/runevault/storefront-backend/internal/storage/mongodb"
	redisstore "github.com/runevault/storefront-backend/internal/storage/redis"
	"github.com/runevault/storefront-backend/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
	// TypeRedis keeps sessions in Redis; only valid for the session store
	TypeRedis Type = "redis"
)

// Backend wraps storage stores with a common interface for lifecycle management
type Backend interface {
	// AuthKeys returns the one-time key store
	AuthKeys() storage.AuthKeyStore
	// TwoFactor returns the two-factor code store
	TwoFactor() storage.TwoFactorStore
	// Sessions returns the admin session store
	Sessions() storage.SessionStore
	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
	// Close closes the storage connection
	Close() error
}

// sessionOverride serves sessions from a separate store, such as Redis,
// while keys and codes stay in the primary store.
type sessionOverride struct {
	storage.Store
	sessions *redisstore.SessionStore
}

func (b *sessionOverride) Sessions() storage.SessionStore { return b.sessions }

func (b *sessionOverride) Ping(ctx context.Context) error {
	if err := b.Store.Ping(ctx); err != nil {
		return err
	}
	return b.sessions.Ping(ctx)
}

func (b *sessionOverride) Close() error {
	return errors.Join(b.sessions.Close(), b.Store.Close())
}

// New creates a storage backend based on the configuration
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	var primary storage.Store

	storageType := Type(cfg.Storage.Type)
	switch storageType {
	case TypeMemory, "":
		// Default to memory if not specified
		primary = memory.NewStore()

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		primary = store

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	switch Type(cfg.SessionStore.Type) {
	case "", TypeMemory:
		// Sessions live in the primary store
		return primary, nil

	case TypeRedis:
		sessions, err := redisstore.NewSessionStore(ctx, cfg.SessionStore.Redis, logger)
		if err != nil {
			_ = primary.Close()
			return nil, fmt.Errorf("failed to create Redis session store: %w", err)
		}
		logger.Info("Admin sessions stored in Redis", zap.String("address", cfg.SessionStore.Redis.Address))
		return &sessionOverride{Store: primary, sessions: sessions}, nil

	default:
		_ = primary.Close()
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.SessionStore.Type)
	}
}
