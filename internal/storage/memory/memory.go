package memory

import (
	"context"
	"sync"
	"time"

	"github.com/runevault/storefront-backend/internal/domain"
	"github.com/runevault/storefront-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	authKeys  *AuthKeyStore
	twoFactor *TwoFactorStore
	sessions  *SessionStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		authKeys: &AuthKeyStore{
			data:    make(map[string]*domain.AuthKeyRecord),
			byNonce: make(map[string]string),
		},
		twoFactor: &TwoFactorStore{data: make(map[string]*domain.TwoFactorRecord)},
		sessions:  &SessionStore{data: make(map[string]*domain.SessionRecord)},
	}
}

func (s *Store) AuthKeys() storage.AuthKeyStore   { return s.authKeys }
func (s *Store) TwoFactor() storage.TwoFactorStore { return s.twoFactor }
func (s *Store) Sessions() storage.SessionStore    { return s.sessions }
func (s *Store) Close() error                      { return nil }
func (s *Store) Ping(ctx context.Context) error    { return nil }

// AuthKeyStore implements in-memory key storage
type AuthKeyStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.AuthKeyRecord // key: record ID
	byNonce map[string]string                // nonce -> record ID
}

func (s *AuthKeyStore) Create(ctx context.Context, record *domain.AuthKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[record.ID]; exists {
		return storage.ErrAlreadyExists
	}
	if _, exists := s.byNonce[record.Nonce]; exists {
		return storage.ErrAlreadyExists
	}

	cp := *record
	s.data[record.ID] = &cp
	s.byNonce[record.Nonce] = record.ID
	return nil
}

func (s *AuthKeyStore) GetUnusedByNonce(ctx context.Context, nonce string) (*domain.AuthKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byNonce[nonce]
	if !exists {
		return nil, storage.ErrNotFound
	}
	record := s.data[id]
	if record.Used {
		return nil, storage.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *AuthKeyStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if record.Used {
		return storage.ErrConflict
	}

	record.Used = true
	record.UsedAt = &usedAt
	return nil
}

// TwoFactorStore implements in-memory two-factor code storage
type TwoFactorStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TwoFactorRecord
}

func (s *TwoFactorStore) Create(ctx context.Context, record *domain.TwoFactorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[record.ID]; exists {
		return storage.ErrAlreadyExists
	}

	cp := *record
	s.data[record.ID] = &cp
	return nil
}

func (s *TwoFactorStore) FindLatestUnverified(ctx context.Context, method, value, code string) (*domain.TwoFactorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.TwoFactorRecord
	for _, record := range s.data {
		if record.Verified || record.ContactMethod != method || record.ContactValue != value || record.AuthCode != code {
			continue
		}
		if latest == nil || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *TwoFactorStore) MarkVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if record.Verified {
		return storage.ErrConflict
	}

	record.Verified = true
	record.VerifiedAt = &verifiedAt
	return nil
}

// SessionStore implements in-memory session storage
type SessionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionRecord // key: session token
}

func (s *SessionStore) Create(ctx context.Context, session *domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[session.SessionToken]; exists {
		return storage.ErrAlreadyExists
	}

	cp := *session
	s.data[session.SessionToken] = &cp
	return nil
}

func (s *SessionStore) GetByToken(ctx context.Context, token string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.data[token]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *SessionStore) Touch(ctx context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.data[token]
	if !exists {
		return storage.ErrNotFound
	}
	session.LastActiveAt = at
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, token)
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for token, session := range s.data {
		if session.IsExpired(now) {
			delete(s.data, token)
			count++
		}
	}
	return count, nil
}
