// Package lock serializes jobs that write the product files.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	pkgerrors "github.com/badno/pimsync/pkg/errors"
)

// JobLock is an exclusive file lock held for the length of one job
type JobLock struct {
	fl *flock.Flock
}

// Acquire takes the lock at path without blocking. A lock held by another job
// returns ErrJobInProgress.
func Acquire(path string) (*JobLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring job lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", pkgerrors.ErrJobInProgress, path)
	}
	return &JobLock{fl: fl}, nil
}

// Path returns the lock file location
func (l *JobLock) Path() string {
	return l.fl.Path()
}

// Release unlocks. Safe to call more than once.
func (l *JobLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
