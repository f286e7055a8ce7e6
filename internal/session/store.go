package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StoredToken is the persisted form of a session.
type StoredToken struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t StoredToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TokenStore persists the bearer token between runs. Load returns a zero
// StoredToken and no error when nothing is stored.
type TokenStore interface {
	Load() (StoredToken, error)
	Save(token StoredToken) error
	Clear() error
}

// FileStore keeps the token in a JSON file readable only by its owner.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStorePath returns $RENTWHEELS_SESSION or ~/.rentwheels/session.json.
func DefaultStorePath() (string, error) {
	if path := os.Getenv("RENTWHEELS_SESSION"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".rentwheels", "session.json"), nil
}

func (s *FileStore) Load() (StoredToken, error) {
	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StoredToken{}, nil
		}
		return StoredToken{}, fmt.Errorf("read session file: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal(contents, &token); err != nil {
		return StoredToken{}, fmt.Errorf("decode session file: %w", err)
	}
	return token, nil
}

func (s *FileStore) Save(token StoredToken) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	contents, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, contents, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an empty store succeeds.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
