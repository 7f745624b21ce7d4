//go:build unix

package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultRetryInterval is how often FileLock retries a held lock.
const DefaultRetryInterval = 50 * time.Millisecond

// FileLock is a cross-process Locker built on flock(2). Goroutines of the
// same process queue on an in-process Mutex first, so only one of them ever
// polls the file.
type FileLock struct {
	path          string
	retryInterval time.Duration
	local         *Mutex
}

// NewFileLock creates a FileLock on path. The file is created on first use.
func NewFileLock(path string, retryInterval time.Duration) *FileLock {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	return &FileLock{path: path, retryInterval: retryInterval, local: NewMutex()}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire implements Locker.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) (Release, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	releaseLocal, err := l.local.Acquire(ctx, timeout)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		releaseLocal()
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: lock path comes from config
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB) //nolint:gosec // G115: fd fits in int
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			_ = f.Close()
			releaseLocal()
			return nil, fmt.Errorf("flock: %w", err)
		}
		if !time.Now().Before(deadline) {
			_ = f.Close()
			releaseLocal()
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			releaseLocal()
			return nil, ctx.Err()
		case <-time.After(min(l.retryInterval, time.Until(deadline))):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:gosec // G115: fd fits in int
			_ = f.Close()
			releaseLocal()
		})
	}, nil
}
