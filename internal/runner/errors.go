package runner

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the runner package.
var (
	// ErrInvalidHide is returned when the hide selector is not one of the accepted values.
	ErrInvalidHide = errors.New("invalid hide value")

	// ErrUnknownEncoding is returned when an encoding name cannot be resolved.
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrPtyUnsupported is returned when a pty is required but cannot be allocated
	// on this platform.
	ErrPtyUnsupported = errors.New("pty not supported on this platform")

	// ErrNotStarted is returned by backend operations that need a running child.
	ErrNotStarted = errors.New("command not started")
)

// Failure is returned when a command exits nonzero and Warn is not set.
type Failure struct {
	Result *Result
}

func (e *Failure) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Result.Command, e.Result.Exited)
}

// ThreadError aggregates the errors raised by background I/O workers.
type ThreadError struct {
	Errors []error
}

func (e *ThreadError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d I/O worker(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes every worker error to errors.Is and errors.As.
func (e *ThreadError) Unwrap() []error { return e.Errors }

// WorkerError is one failure raised inside a background worker.
type WorkerError struct {
	// Worker names the I/O role: "stdout", "stderr" or "stdin".
	Worker string
	Err    error
}

func (e *WorkerError) Error() string { return fmt.Sprintf("%s worker: %v", e.Worker, e.Err) }

func (e *WorkerError) Unwrap() error { return e.Err }

// AuthFailure is returned by Sudo when the password was rejected.
type AuthFailure struct {
	Prompt string
	Err    error
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("the password submitted to prompt %q was rejected", e.Prompt)
}

func (e *AuthFailure) Unwrap() error { return e.Err }
