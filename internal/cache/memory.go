package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend implements Backend in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend creates a new MemoryBackend instance.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value for key if it has not expired.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("cache get: %w", ctx.Err())
	default:
	}

	b.mu.RLock()
	entry, exists := b.entries[key]
	b.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if !b.now().Before(entry.expires) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a copy of value under key for ttl.
func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("cache set: %w", ctx.Err())
	default:
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = memoryEntry{
		value:   stored,
		expires: b.now().Add(ttl),
	}
	return nil
}

// Ping always succeeds.
func (b *MemoryBackend) Ping(_ context.Context) error {
	return nil
}

// Close drops all entries.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]memoryEntry)
	return nil
}
