package storage

import (
	"context"
	"errors"
	"time"

	"github.com/runevault/storefront-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrConflict      = errors.New("conditional update lost")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// AuthKeyStore defines the interface for one-time admin key storage
type AuthKeyStore interface {
	// Create stores a new key record. Returns ErrAlreadyExists on a duplicate nonce.
	Create(ctx context.Context, record *domain.AuthKeyRecord) error

	// GetUnusedByNonce retrieves the unconsumed record for a nonce
	GetUnusedByNonce(ctx context.Context, nonce string) (*domain.AuthKeyRecord, error)

	// MarkUsed atomically flips used=false to used=true.
	// Returns ErrConflict if the record was already consumed.
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}

// TwoFactorStore defines the interface for two-factor code storage
type TwoFactorStore interface {
	// Create stores a new code record
	Create(ctx context.Context, record *domain.TwoFactorRecord) error

	// FindLatestUnverified returns the most recent unverified record matching
	// the contact channel and code
	FindLatestUnverified(ctx context.Context, method, value, code string) (*domain.TwoFactorRecord, error)

	// MarkVerified atomically flips verified=false to verified=true.
	// Returns ErrConflict if the record was already verified.
	MarkVerified(ctx context.Context, id string, verifiedAt time.Time) error
}

// SessionStore defines the interface for admin session storage
type SessionStore interface {
	// Create stores a new session. Returns ErrAlreadyExists on a duplicate token.
	Create(ctx context.Context, session *domain.SessionRecord) error

	// GetByToken retrieves a session by its token, expired or not
	GetByToken(ctx context.Context, token string) (*domain.SessionRecord, error)

	// Touch updates the last activity time of a session
	Touch(ctx context.Context, token string, at time.Time) error

	// Delete removes a session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes sessions that expired before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store aggregates all storage interfaces
type Store interface {
	AuthKeys() AuthKeyStore
	TwoFactor() TwoFactorStore
	Sessions() SessionStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
