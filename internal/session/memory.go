package session

import (
	"context"
	"sync"

	"shelf-cli/internal/model"
)

// MemoryStore keeps the credential for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	cred model.Credential
	ok   bool
}

func (m *MemoryStore) Get(context.Context) (model.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, m.ok, nil
}

func (m *MemoryStore) Set(_ context.Context, c model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred, m.ok = c, true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred, m.ok = model.Credential{}, false
	return nil
}
