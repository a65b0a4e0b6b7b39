package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often a busy file lock is retried.
const lockRetryInterval = 25 * time.Millisecond

// ErrLockNotAcquired is returned when a write lock could not be taken.
var ErrLockNotAcquired = errors.New("write lock not acquired")

// Locker serializes read-modify-write cycles on the collection.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context) (func(), error)
}

// MutexLocker serializes writers within one process.
type MutexLocker struct {
	mu sync.Mutex
}

// NewMutexLocker creates a new MutexLocker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

// Lock acquires the mutex.
func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire write lock: %w", err)
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// FileLocker serializes writers within the process and, through an advisory
// lock file, with other processes that use the same data file.
type FileLocker struct {
	mu    sync.Mutex
	flock *flock.Flock
}

// NewFileLocker creates a FileLocker that locks path.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{flock: flock.New(path)}
}

// Path returns the lock file location.
func (l *FileLocker) Path() string {
	return l.flock.Path()
}

// Lock acquires the in-process mutex, then the file lock.
func (l *FileLocker) Lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire write lock: %w", err)
	}

	// A Flock reports success when the same handle already holds the lock,
	// so goroutines in this process are excluded by the mutex.
	l.mu.Lock()

	locked, err := l.flock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("acquire write lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, l.flock.Path())
	}

	return func() {
		_ = l.flock.Unlock()
		l.mu.Unlock()
	}, nil
}
