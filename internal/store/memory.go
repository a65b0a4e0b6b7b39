package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

// MemoryStore implements Store with an in-memory collection.
type MemoryStore struct {
	mu       sync.RWMutex
	items    []model.Item
	modified time.Time
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadAll returns a copy of the stored collection.
func (s *MemoryStore) LoadAll(ctx context.Context) ([]model.Item, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load items: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, len(s.items))
	copy(items, s.items)

	return items, nil
}

// SaveAll replaces the stored collection with a copy of items.
func (s *MemoryStore) SaveAll(ctx context.Context, items []model.Item) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save items: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]model.Item, len(items))
	copy(s.items, items)

	// Strictly increasing so equal-tick saves still look like a change.
	now := time.Now().UTC()
	if !now.After(s.modified) {
		now = s.modified.Add(time.Nanosecond)
	}
	s.modified = now

	return nil
}

// LastModified returns the time of the last SaveAll.
func (s *MemoryStore) LastModified(ctx context.Context) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("last modified: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.modified, nil
}
