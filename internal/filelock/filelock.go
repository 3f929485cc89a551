// SPDX-FileCopyrightText: 2017 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

// Package filelock implements the mkdir-based advisory lock convention used
// throughout this toolkit: a directory's atomic creation is the lock, its
// removal is the unlock. This is deliberately built on the standard library
// rather than a third-party lock library: os.Mkdir's atomicity guarantee on
// POSIX filesystems is exactly the portable primitive the toolkit's design
// calls for, and no vendored dependency improves on it.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout is returned by AcquireWithRetry when the lock directory could
// not be created within the configured number of attempts.
var ErrTimeout = errors.New("filelock: timed out waiting for lock")

// TryAcquire attempts to atomically create the lock directory. It returns
// (true, nil) if this call created the directory, or (false, nil) if the
// directory already existed. Any other failure to create the directory is
// returned as an error.
func TryAcquire(dir string) (bool, error) {
	err := os.Mkdir(dir, 0o700)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	return false, fmt.Errorf("could not create lock directory %s: %w", dir, err)
}

// Release removes the lock directory. It is a no-op if the directory does
// not exist, so it is safe to call from a deferred cleanup even after a
// failed acquisition.
func Release(dir string) error {
	err := os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("could not remove lock directory %s: %w", dir, err)
	}
	return nil
}

// AcquireWithRetry polls TryAcquire at the given interval until it succeeds,
// the context is cancelled, or maxAttempts is exhausted. On success it
// returns a release function that must be called on every exit path.
func AcquireWithRetry(ctx context.Context, dir string, interval time.Duration, maxAttempts int) (release func() error, err error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		acquired, err := TryAcquire(dir)
		if err != nil {
			return nil, err
		}
		if acquired {
			return func() error { return Release(dir) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, ErrTimeout
}
