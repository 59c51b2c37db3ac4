package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNoToken is returned when no AniList token has been stored
var ErrNoToken = errors.New("anilist token not found")

// TokenStore defines the interface for storing and retrieving tokens
type TokenStore interface {
	GetToken() (*Token, error)
	SaveToken(token *Token) error
	DeleteToken() error
}

// Token represents an AniList access token and the viewer it belongs to
type Token struct {
	AccessToken string    `json:"access_token"`
	UserID      int       `json:"user_id"`
	UserName    string    `json:"user_name"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token carries an expiry that has passed
func (t *Token) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// FileTokenStore implements TokenStore using a JSON file
type FileTokenStore struct {
	mu       sync.Mutex
	filepath string
}

// NewFileTokenStore creates a new file-based token store
func NewFileTokenStore(filepath string) *FileTokenStore {
	return &FileTokenStore{filepath: filepath}
}

// GetToken retrieves the token from the file
func (s *FileTokenStore) GetToken() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrNoToken
	}

	return &token, nil
}

// SaveToken saves the token to the file
func (s *FileTokenStore) SaveToken(token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.filepath, data, 0600)
}

// DeleteToken removes the stored token
func (s *FileTokenStore) DeleteToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.filepath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Identity exposes a TokenStore as the tracking identity: a bearer credential or nothing
type Identity struct {
	store TokenStore
}

// NewIdentity creates a tracking identity provider backed by store
func NewIdentity(store TokenStore) *Identity {
	return &Identity{store: store}
}

// Credential returns the current bearer token, if a usable one is stored
func (i *Identity) Credential() (string, bool) {
	token, err := i.store.GetToken()
	if err != nil || token.Expired() {
		return "", false
	}
	return token.AccessToken, true
}

// UserID returns the AniList user the stored token belongs to
func (i *Identity) UserID() (int, bool) {
	token, err := i.store.GetToken()
	if err != nil || token.Expired() || token.UserID == 0 {
		return 0, false
	}
	return token.UserID, true
}

// Login validates accessToken against the Viewer query and stores it.
// An invalid token is never persisted.
func (c *Client) Login(ctx context.Context, store TokenStore, accessToken string, expiresIn time.Duration) (*Token, error) {
	viewer, err := c.GetViewer(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("token rejected: %w", err)
	}

	token := &Token{
		AccessToken: accessToken,
		UserID:      viewer.ID,
		UserName:    viewer.Name,
	}
	if expiresIn > 0 {
		token.ExpiresAt = time.Now().Add(expiresIn)
	}

	if err := store.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	c.logger.WithField("user", viewer.Name).Info("AniList authentication successful")
	return token, nil
}
