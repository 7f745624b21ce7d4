//go:build !unix

package lock

import (
	"context"
	"errors"
	"time"
)

// DefaultRetryInterval is how often FileLock retries a held lock.
const DefaultRetryInterval = 50 * time.Millisecond

// FileLock is unavailable on this platform; Acquire always fails.
type FileLock struct {
	path string
}

// NewFileLock creates a FileLock on path.
func NewFileLock(path string, _ time.Duration) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire implements Locker.
func (l *FileLock) Acquire(context.Context, time.Duration) (Release, error) {
	return nil, errors.New("file lock is not supported on this platform")
}
