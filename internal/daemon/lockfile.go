//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned when another live daemon holds the PID lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDLock keeps a second daemon from starting against the same runtime
// directory. It holds flock(2) on a file containing the owner's PID.
type PIDLock struct {
	file *os.File
	path string
}

// NewPIDLock creates a PIDLock at path. The lock is not acquired until
// Acquire is called.
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{path: path}
}

// Path returns the lock file path.
func (l *PIDLock) Path() string { return l.path }

// Acquire takes the lock without blocking. A lock left behind by a dead
// process is removed and taken over once.
func (l *PIDLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := l.tryLock()
	if err == nil {
		return l.stamp(f)
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		return err
	}

	pid, _, _ := ReadHeldPID(l.path)
	if pid > 0 && isProcessAlive(pid) {
		return fmt.Errorf("%w (PID %d), lock file: %s", ErrAlreadyRunning, pid, l.path)
	}
	if pid == 0 {
		return fmt.Errorf("%w, lock file: %s", ErrAlreadyRunning, l.path)
	}

	// Stale lock: remove and retry once.
	_ = os.Remove(l.path)
	f, err = l.tryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on retry: %w", err)
	}
	return l.stamp(f)
}

func (l *PIDLock) tryLock() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: lock file path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { //nolint:gosec // G115: fd fits in int
		f.Close()
		if errors.Is(err, unix.EAGAIN) {
			err = unix.EWOULDBLOCK
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return f, nil
}

func (l *PIDLock) stamp(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		f.Close()
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync lock file: %w", err)
	}
	l.file = f
	return nil
}

// Release unlocks and removes the lock file.
func (l *PIDLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN) //nolint:gosec // G115: fd fits in int
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// ReadHeldPID returns the PID recorded in lockPath if (and only if) the lock
// is currently held by another open file. A missing file is not held.
func ReadHeldPID(lockPath string) (pid int, held bool, err error) {
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0) //nolint:gosec // G304: lock file path is from trusted config
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB) //nolint:gosec // G115: fd fits in int
	if err == nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:gosec // G115: fd fits in int
		return 0, false, nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
		return 0, false, fmt.Errorf("flock: %w", err)
	}

	buf := make([]byte, 32)
	n, _ := f.ReadAt(buf, 0)
	pid, _ = strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	return pid, true, nil
}

// isProcessAlive checks if a process with the given PID is running.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds. Send signal 0 to check if alive.
	return process.Signal(syscall.Signal(0)) == nil
}
