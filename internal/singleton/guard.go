// Package singleton keeps at most one presence daemon alive per data
// directory.
//
// The daemon records its pid in daemon.pid and holds an exclusive advisory
// lock on daemon.lock for its lifetime. Hook commands consult [Guard.Running]
// before spawning; the lock closes the race where two hooks spawn at once.
package singleton

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by [Guard.Acquire] when another process holds
// the daemon lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// lockRetryDelay is the interval between lock attempts in [Guard.AcquireWait].
const lockRetryDelay = 100 * time.Millisecond

// Guard manages the pid record and the startup lock.
type Guard struct {
	pidPath  string
	lockPath string
	lock     *flock.Flock
	pid      int
	// alive probes process liveness; replaced in tests.
	alive func(pid int) bool
}

// New returns a Guard using the given pid file and lock file paths.
func New(pidPath, lockPath string) *Guard {
	return &Guard{
		pidPath:  pidPath,
		lockPath: lockPath,
		alive:    processAlive,
	}
}

// ///////////////////////////////////////////////
// Queries
// ///////////////////////////////////////////////

// readPID parses the pid file. It returns 0 when the file is absent or does
// not hold a positive integer.
func (g *Guard) readPID() int {
	data, err := os.ReadFile(g.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Running returns the recorded pid when that process is alive. A stale or
// malformed record reports false and is left in place.
func (g *Guard) Running() (int, bool) {
	pid := g.readPID()
	if pid == 0 || !g.alive(pid) {
		return 0, false
	}
	return pid, true
}

// ///////////////////////////////////////////////
// Daemon Side
// ///////////////////////////////////////////////

// Acquire takes the daemon lock and records the current pid, replacing any
// stale record. It returns [ErrAlreadyRunning] when the lock is held.
func (g *Guard) Acquire() error {
	return g.AcquireWait(context.Background(), 0)
}

// AcquireWait is [Guard.Acquire] that keeps retrying for up to wait while
// another process holds the lock. A stopping daemon keeps the lock until its
// shutdown finishes. It returns [ErrAlreadyRunning] when the lock is still held
// after wait, or ctx's error when ctx ends first.
func (g *Guard) AcquireWait(ctx context.Context, wait time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	lock := flock.New(g.lockPath)
	locked, err := tryLock(ctx, lock, wait)
	if err != nil {
		return err
	}
	if !locked {
		return ErrAlreadyRunning
	}

	pid := os.Getpid()
	if err := os.WriteFile(g.pidPath, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		lock.Unlock()
		return fmt.Errorf("writing pid file: %w", err)
	}
	g.lock = lock
	g.pid = pid
	return nil
}

// tryLock attempts the lock once, or polls it until wait elapses.
func tryLock(ctx context.Context, lock *flock.Flock, wait time.Duration) (bool, error) {
	if wait <= 0 {
		locked, err := lock.TryLock()
		if err != nil {
			return false, fmt.Errorf("acquiring lock: %w", err)
		}
		return locked, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	locked, err := lock.TryLockContext(waitCtx, lockRetryDelay)
	switch {
	case err == nil:
		return locked, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, fmt.Errorf("acquiring lock: %w", err)
	}
}

// Release removes the pid record if it still names this process, then drops
// the lock. Calling it more than once is harmless.
func (g *Guard) Release() error {
	if g.lock == nil {
		return nil
	}
	var errs []error
	if g.readPID() == g.pid {
		if err := os.Remove(g.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing pid file: %w", err))
		}
	}
	if err := g.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("releasing lock: %w", err))
	}
	g.lock = nil
	g.pid = 0
	return errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Controller Side
// ///////////////////////////////////////////////

// Clear removes the pid record unconditionally. A missing file is not an
// error.
func (g *Guard) Clear() error {
	if err := os.Remove(g.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// RequestStop asks the process pid to exit.
func (g *Guard) RequestStop(pid int) error {
	if err := terminate(pid); err != nil {
		return fmt.Errorf("stopping pid %d: %w", pid, err)
	}
	return nil
}
