// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by AcquireProcessLock when another live
// process already holds the lock. AcquireProcessLock always wraps it with
// the holder's PID before returning it.
var ErrAlreadyRunning = errors.New("another instance is already running")

// ProcessLock is the single, process-wide exclusive lock a provisioning
// run must hold for its entire lifetime.
type ProcessLock struct {
	dir string
}

// lockCandidateDirs returns the fallback chain from §4.5.3: XDG_RUNTIME_DIR,
// then $HOME/.local/state, then $HOME/.cache, then /tmp.
func lockCandidateDirs() []string {
	var candidates []string
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		candidates = append(candidates, filepath.Join(v, "oci-provision"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "state", "oci-provision"),
			filepath.Join(home, ".cache", "oci-provision"),
		)
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), "oci-provision"))
	return candidates
}

// AcquireProcessLock atomic-creates a lock directory named
// "<script>.lock" under the first fallback directory writable by this
// process, and records its own PID in a "pid" file inside it. If the
// directory exists but the PID inside it is no longer alive, the stale
// lock is removed and acquisition is retried once.
func AcquireProcessLock(scriptName string) (*ProcessLock, error) {
	lockName := scriptName + ".lock"

	var lastErr error
	for _, base := range lockCandidateDirs() {
		if err := os.MkdirAll(base, 0o700); err != nil {
			lastErr = err
			continue
		}
		dir := filepath.Join(base, lockName)

		lock, err := tryAcquireOnce(dir)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrAlreadyRunning) {
			lastErr = err
			continue
		}

		// Stale-lock recovery: check liveness, remove and retry once.
		if isStale(dir) {
			os.RemoveAll(dir)
			lock, err := tryAcquireOnce(dir)
			if err == nil {
				return lock, nil
			}
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no writable lock directory available")
	}
	return nil, fmt.Errorf("could not acquire process lock: %w", lastErr)
}

func tryAcquireOnce(dir string) (*ProcessLock, error) {
	err := os.Mkdir(dir, 0o700)
	if err == nil {
		pidPath := filepath.Join(dir, "pid")
		if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("could not write pid file: %w", err)
		}
		return &ProcessLock{dir: dir}, nil
	}
	if errors.Is(err, os.ErrExist) {
		pid, _ := readLockPID(dir)
		return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	}
	return nil, err
}

// readLockPID reads and parses the PID recorded in dir/pid.
func readLockPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pid"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isStale reports whether the process named by dir/pid is no longer alive.
// A missing or unparseable pid file is treated as stale, since a live lock
// always has a readable pid.
func isStale(dir string) bool {
	pid, err := readLockPID(dir)
	if err != nil {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually delivering a signal.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return true
	}
	return false
}

// Release removes the lock directory. It is idempotent and safe to call
// from a deferred cleanup on every exit path, including signal handlers.
func (l *ProcessLock) Release() error {
	if l == nil {
		return nil
	}
	return os.RemoveAll(l.dir)
}
