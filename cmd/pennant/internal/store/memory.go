package store

import (
	"context"
	"sync"
	"time"

	"github.com/pennant-io/pennant/pkg/flags"
)

// MemoryStore keeps tenant documents in process memory. Used for tests and
// single-node development; a restart loses everything.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]flags.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]flags.Document),
	}
}

// GetDocument returns a copy of the tenant document, or an empty document
// for tenants that have never been written.
func (s *MemoryStore) GetDocument(_ context.Context, tenant flags.Tenant) (flags.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[tenant.Key()]
	if !ok {
		return flags.NewDocument(), nil
	}
	return doc.Clone(), nil
}

// Mutate applies fn under the store lock, so concurrent writers to the same
// tenant serialise instead of clobbering each other.
func (s *MemoryStore) Mutate(_ context.Context, tenant flags.Tenant, fn MutateFunc) (flags.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[tenant.Key()]
	if !ok {
		current = flags.NewDocument()
	}
	next, err := fn(current.Clone())
	if err != nil {
		return flags.Document{}, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.docs[tenant.Key()] = next
	return next.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
