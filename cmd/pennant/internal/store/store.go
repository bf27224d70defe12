package store

import (
	"context"
	"errors"

	"github.com/pennant-io/pennant/pkg/flags"
)

// Storage failures map onto these sentinels.
var (
	// ErrNotFound marks a lookup of a flag or segment that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that lost the optimistic concurrency race
	// too many times in a row.
	ErrConflict = errors.New("write conflict")
)

// MutateFunc transforms a tenant document. It receives a private copy and
// returns the replacement; returning an error abandons the write and the
// stored document stays untouched.
type MutateFunc func(doc flags.Document) (flags.Document, error)

// Store persists one document per tenant. Reads always return a copy the
// caller may hold onto. Writes go through Mutate, which applies the whole
// transformation atomically: concurrent writers never interleave partial
// updates, though one of them may need to retry internally.
type Store interface {
	// GetDocument returns the tenant document, or an empty document when
	// the tenant has never been written.
	GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error)

	// Mutate applies fn to the tenant document under the backend's
	// concurrency control and returns the stored result.
	Mutate(ctx context.Context, tenant flags.Tenant, fn MutateFunc) (flags.Document, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend connections.
	Close() error
}
