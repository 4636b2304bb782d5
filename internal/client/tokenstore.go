package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoSession is returned by a TokenStore that holds no token
var ErrNoSession = errors.New("no saved session")

// SavedSession is what survives between runs: the session token, the device
// fingerprint it was issued to and the screen-independent device hash taken
// at the same time. Nothing else from the login flow is persisted.
type SavedSession struct {
	Token       string `json:"token"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Device      string `json:"device,omitempty"`
}

// TokenStore persists the saved session between runs
type TokenStore interface {
	Load() (*SavedSession, error)
	Save(session SavedSession) error
	Clear() error
}

// FileTokenStore keeps the session in a file readable only by the owner
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store backed by path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultTokenPath returns the per-user location of the session file
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "storefront-admin", "session"), nil
}

func (s *FileTokenStore) Load() (*SavedSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, ErrNoSession
	}

	// Bare token lines predate the pinned fingerprint
	if !strings.HasPrefix(raw, "{") {
		return &SavedSession{Token: raw}, nil
	}

	var session SavedSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if session.Token == "" {
		return nil, ErrNoSession
	}
	return &session, nil
}

func (s *FileTokenStore) Save(session SavedSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// MemoryTokenStore keeps the session for the life of the process
type MemoryTokenStore struct {
	mu      sync.Mutex
	session *SavedSession
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (*SavedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrNoSession
	}
	cp := *s.session
	return &cp, nil
}

func (s *MemoryTokenStore) Save(session SavedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Token == "" {
		s.session = nil
		return nil
	}
	s.session = &session
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}
