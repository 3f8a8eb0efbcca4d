package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	ragerrors "github.com/russo2100/trading-analytics-rag/internal/errors"
)

// lockRetryDelay is how often Lock polls a held lock.
const lockRetryDelay = 100 * time.Millisecond

// FileLock serializes index builds across processes.
type FileLock struct {
	lock *flock.Flock
}

// NewFileLock creates a lock file next to the data it protects.
func NewFileLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{lock: flock.New(path)}, nil
}

// TryLock acquires the lock without waiting. Returns ErrCodeIndexLocked when held elsewhere.
func (l *FileLock) TryLock() error {
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ragerrors.New(ragerrors.ErrCodeIndexLocked, "index is locked by another process", nil).
			WithDetail("lock", l.lock.Path()).
			WithSuggestion("wait for the running tradingrag index to finish")
	}
	return nil
}

// Lock waits until the lock is acquired or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	ok, err := l.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ragerrors.New(ragerrors.ErrCodeIndexLocked, "index lock not acquired", nil)
	}
	return nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.lock.Unlock()
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.lock.Path() }
