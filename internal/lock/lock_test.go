package lock

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]Locker {
	return map[string]Locker{
		"mutex": NewMutex(),
		"file":  NewFileLock(filepath.Join(t.TempDir(), "sub", "pipeline.lock"), 5*time.Millisecond),
	}
}

func TestLocker_TimesOutWhileHeld(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), time.Second)
			require.NoError(t, err)

			start := time.Now()
			_, err = l.Acquire(context.Background(), 30*time.Millisecond)
			assert.ErrorIs(t, err, ErrLockTimeout)
			assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

			release()
			release() // idempotent

			again, err := l.Acquire(context.Background(), 30*time.Millisecond)
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocker_HonorsContext(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), time.Second)
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = l.Acquire(ctx, time.Second)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, peak atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release, err := l.Acquire(context.Background(), 5*time.Second)
					if !assert.NoError(t, err) {
						return
					}
					defer release()
					n := inside.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					inside.Add(-1)
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), peak.Load())
		})
	}
}

func TestFileLock_ExcludesSecondHandle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.lock")
	a := NewFileLock(path, 5*time.Millisecond)
	b := NewFileLock(path, 5*time.Millisecond)

	release, err := a.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	_, err = b.Acquire(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout, "a separate handle behaves like another process")

	release()
	releaseB, err := b.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	releaseB()
	assert.Equal(t, path, b.Path())
}

func TestMutex_TryAcquire(t *testing.T) {
	t.Parallel()

	m := NewMutex()
	release, ok := m.TryAcquire()
	require.True(t, ok)
	assert.True(t, m.Held())

	_, ok = m.TryAcquire()
	assert.False(t, ok)

	release()
	assert.False(t, m.Held())
}
