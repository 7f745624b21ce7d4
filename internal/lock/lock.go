// Package lock provides the global lock that serializes pipeline runs.
//
// Acquisition waits for a bounded time and hands back a release function
// that is safe to call more than once, so callers can defer it
// unconditionally.
package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the lock is not acquired within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout is the bounded wait used when a caller passes no timeout.
const DefaultTimeout = 30 * time.Second

// Release frees a held lock. Calls after the first are no-ops.
type Release func()

// Locker is a mutual-exclusion primitive with bounded acquisition.
type Locker interface {
	// Acquire blocks until the lock is held, timeout elapses, or ctx is
	// done. A timeout <= 0 means DefaultTimeout.
	Acquire(ctx context.Context, timeout time.Duration) (Release, error)
}

// Mutex is an in-process Locker for single-process deployments.
// The zero value is not usable; call NewMutex.
type Mutex struct {
	sem  *semaphore.Weighted
	held atomic.Bool
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Acquire implements Locker.
func (m *Mutex) Acquire(ctx context.Context, timeout time.Duration) (Release, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrLockTimeout
	}
	return m.release(), nil
}

// TryAcquire takes the lock only if it is free.
func (m *Mutex) TryAcquire() (Release, bool) {
	if !m.sem.TryAcquire(1) {
		return nil, false
	}
	return m.release(), true
}

// Held reports whether the lock is currently taken.
func (m *Mutex) Held() bool { return m.held.Load() }

func (m *Mutex) release() Release {
	m.held.Store(true)
	var once sync.Once
	return func() {
		once.Do(func() {
			m.held.Store(false)
			m.sem.Release(1)
		})
	}
}
