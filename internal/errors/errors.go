// Package errors provides jobmon's error wrapping helper and the sentinel
// error kinds spec'd for the dispatcher and job runner.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Wrap returns a new error wrapping the passed error. If the passed error is
// nil, nil is returned.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return errors.As(err, target) }

var (
	// ErrUnknownJob indicates a request named a job not present in the
	// configuration.
	ErrUnknownJob = errors.New("unknown job")
	// ErrAlreadyRunning indicates a start request targeted a job already
	// in the Running phase.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrAlreadyStopped indicates a stop request targeted a job already
	// in the Stopped phase.
	ErrAlreadyStopped = errors.New("job already stopped")
	// ErrSpawnFailed indicates the runner could not open stdio files or
	// start the child process.
	ErrSpawnFailed = errors.New("spawn failed")
)

// Spawn wraps the underlying cause of a spawn failure so callers can still
// errors.Is(err, ErrSpawnFailed) while retaining the original message.
func Spawn(job string, cause error) error {
	return fmt.Errorf("spawn job %q: %w: %v", job, ErrSpawnFailed, cause)
}
