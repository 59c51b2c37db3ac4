package mirror

import (
	"encoding/json"
	"os"
	"sync"
)

// Credentials is the persisted storage identity
type Credentials struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// FileIdentity is the storage identity provider, persisted as a JSON file.
// A missing or empty file means no storage identity.
type FileIdentity struct {
	mu       sync.Mutex
	filepath string
}

// NewFileIdentity creates a storage identity provider reading filepath
func NewFileIdentity(filepath string) *FileIdentity {
	return &FileIdentity{filepath: filepath}
}

func (f *FileIdentity) load() (*Credentials, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.filepath)
	if err != nil {
		return nil, false
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, false
	}
	if creds.UserID == "" || creds.Token == "" {
		return nil, false
	}
	return &creds, true
}

// Identity returns the user the mirror partitions by and whether a credential is present
func (f *FileIdentity) Identity() (string, bool) {
	creds, ok := f.load()
	if !ok {
		return "", false
	}
	return creds.UserID, true
}

// Token returns the bearer credential for the document store
func (f *FileIdentity) Token() (string, bool) {
	creds, ok := f.load()
	if !ok {
		return "", false
	}
	return creds.Token, true
}

// Save stores new credentials, replacing any previous identity
func (f *FileIdentity) Save(creds Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.filepath, data, 0600)
}

// Clear forgets the storage identity
func (f *FileIdentity) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filepath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
