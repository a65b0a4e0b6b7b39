// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// Supported store backends.
const (
	BackendJSON   = "json"
	BackendMemory = "memory"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store persists the whole item collection as a single unit.
// Implementations do no locking; callers serialize read-modify-write cycles.
type Store interface {
	// LoadAll returns the full collection in insertion order.
	// A store that holds no data yet returns an empty collection.
	LoadAll(ctx context.Context) ([]model.Item, error)

	// SaveAll replaces the full collection.
	SaveAll(ctx context.Context, items []model.Item) error

	// LastModified returns the time of the last write, or the zero time
	// when nothing has been written yet.
	LastModified(ctx context.Context) (time.Time, error)
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - pretty-printed JSON array at path (default)
//	"memory" - in-memory (ephemeral, for testing)
func New(backend, path string) (Store, error) {
	switch backend {
	case BackendJSON, "":
		return NewFileStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: json, memory)", ErrUnknownBackend, backend)
	}
}
