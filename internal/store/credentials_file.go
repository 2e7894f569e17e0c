package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"shelf-cli/internal/model"
)

// FileCredentials keeps the session cookie in a 0600 JSON file.
type FileCredentials struct {
	Path string

	mu sync.Mutex
}

// NewFileCredentials returns a store backed by <config dir>/session.json.
func NewFileCredentials() (*FileCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &FileCredentials{Path: filepath.Join(dir, "session.json")}, nil
}

func (s *FileCredentials) Get(_ context.Context) (model.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Credential{}, false, nil
		}
		return model.Credential{}, false, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return model.Credential{}, false, nil
	}
	var c model.Credential
	if err := json.Unmarshal(b, &c); err != nil {
		return model.Credential{}, false, err
	}
	if strings.TrimSpace(c.Value) == "" {
		return model.Credential{}, false, nil
	}
	return c, true, nil
}

func (s *FileCredentials) Set(_ context.Context, c model.Credential) error {
	if strings.TrimSpace(c.Value) == "" {
		return errors.New("credential value is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(dir, "session.json.*.tmp", s.Path, b, 0o600)
}

func (s *FileCredentials) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
