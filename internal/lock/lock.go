// Package lock keeps a single poller per index directory across processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/searchsync/internal/errors"
)

// FileName is the lock file created in the index directory.
const FileName = ".searchsync.lock"

// FileLock is an exclusive advisory lock on <dir>/.searchsync.lock.
// The holder's pid is written into the file for diagnostics.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New returns an unlocked FileLock for dir.
func New(dir string) *FileLock {
	p := filepath.Join(dir, FileName)
	return &FileLock{path: p, flock: flock.New(p)}
}

// Acquire takes the lock for dir without blocking. It fails with an
// invalid-state error when another process holds it.
func Acquire(dir string) (*FileLock, error) {
	l := New(dir)
	ok, err := l.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		e := errors.StateError("another searchsync poller holds the index lock").
			WithDetail("lock", l.path).
			WithSuggestion("stop the other 'searchsync run' process or use a different index path")
		if pid, ok := l.Owner(); ok {
			e.WithDetail("pid", strconv.Itoa(pid))
		}
		return nil, e
	}
	return l, nil
}

// TryLock attempts to take the lock. It reports false when another process
// holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	l.locked = true
	// Best effort: the lock itself does not depend on the pid.
	_ = os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
	return true, nil
}

// Owner returns the pid recorded in the lock file.
func (l *FileLock) Owner() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Unlock releases the lock. It is safe to call more than once.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Locked reports whether this FileLock holds the lock.
func (l *FileLock) Locked() bool {
	return l.locked
}
