package runner

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PIDLock enforces spec.md §4.10's single-instance invariant: at most one
// runner process may hold the store/PTT line at a time. Grounded on
// original_source/tests/test_pid_lock.py's acquire/release contract.
type PIDLock struct {
	path string
}

func NewPIDLock(path string) *PIDLock {
	return &PIDLock{path: path}
}

// ErrAlreadyRunning is returned by Acquire when another live process
// already holds the lock.
var ErrAlreadyRunning = fmt.Errorf("runner: another instance is already running")

// Acquire implements the three cases from spec.md §4.10: no file (take
// it), a live PID in the file (abort), and a dead or corrupted PID (clean
// up and take it).
func (l *PIDLock) Acquire() error {
	if raw, err := os.ReadFile(l.path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(raw))); perr == nil {
			if processAlive(pid) {
				return ErrAlreadyRunning
			}
		}
		// Corrupted content or a dead PID: the stale file is not ours to
		// trust, remove it and proceed.
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("runner: remove stale pid file: %w", err)
		}
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("runner: write pid file: %w", err)
	}
	return nil
}

// Release removes the lock file only if it still holds this process's
// PID — never another instance's, per spec.md §4.10.
func (l *PIDLock) Release() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runner: read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid != os.Getpid() {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runner: remove pid file: %w", err)
	}
	return nil
}

// processAlive probes liveness with the null signal, matching the
// original's os.kill(pid, 0) check: no error means the process exists and
// we have permission to signal it.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
