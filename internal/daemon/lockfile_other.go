//go:build !unix

package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned when another live daemon holds the PID lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDLock records the daemon PID. Without flock(2) it cannot detect a
// concurrent daemon; an existing file is treated as held.
type PIDLock struct {
	path string
	held bool
}

// NewPIDLock creates a PIDLock at path.
func NewPIDLock(path string) *PIDLock {
	return &PIDLock{path: path}
}

// Path returns the lock file path.
func (l *PIDLock) Path() string { return l.path }

// Acquire creates the lock file exclusively and writes the PID.
func (l *PIDLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w, lock file: %s", ErrAlreadyRunning, l.path)
		}
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}
	l.held = true
	return nil
}

// Release removes the lock file.
func (l *PIDLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// ReadHeldPID returns the PID recorded in lockPath when the file exists.
func ReadHeldPID(lockPath string) (int, bool, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return pid, true, nil
}
