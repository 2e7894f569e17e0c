// Package blob tracks locally created displayable handles (thumbnails) so they
// can be served by id and released explicitly.
package blob

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const idPrefix = "blob:"

// Handle is an opaque reference to bytes held by a Registry.
type Handle struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

func (h Handle) Valid() bool { return strings.HasPrefix(h.ID, idPrefix) }

type entry struct {
	data []byte
	ct   string
}

type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Create copies data into the registry and returns its handle.
func (r *Registry) Create(data []byte, contentType string) Handle {
	id := idPrefix + uuid.NewString()
	cp := append([]byte(nil), data...)
	r.mu.Lock()
	r.entries[id] = entry{data: cp, ct: contentType}
	r.mu.Unlock()
	return Handle{ID: id, ContentType: contentType, Size: len(cp)}
}

// Open returns the bytes behind id. The slice must not be modified.
func (r *Registry) Open(id string) ([]byte, string, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, "", false
	}
	return e.data, e.ct, true
}

// Revoke releases id. It reports whether the handle was live.
func (r *Registry) Revoke(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// RevokeAll releases every handle and returns how many were live.
func (r *Registry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = map[string]entry{}
	return n
}

// Len is the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
