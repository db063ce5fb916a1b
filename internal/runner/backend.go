package runner

import (
	"context"
	"io"
)

// Backend executes one child process on behalf of a Runner.
// Implementations include Local (OS processes and ptys); remote backends
// can be added by implementing the same contract.
//
// A Backend serves one command at a time. Start resets any state left from a
// previous command.
type Backend interface {
	// Start launches command through shell with the given environment
	// (KEY=VALUE list), attached to a pty when usePty is set.
	Start(ctx context.Context, command, shell string, env []string, usePty bool) error

	// Exited reports, without blocking, whether the child has terminated.
	Exited() (bool, error)

	// ReadStdout reads up to len(p) bytes of the child's stdout (all output
	// under a pty). End of stream is reported as io.EOF or a zero-length read.
	ReadStdout(p []byte) (int, error)

	// ReadStderr reads up to len(p) bytes of the child's stderr. It is never
	// called for pty-attached children.
	ReadStderr(p []byte) (int, error)

	// WriteStdin writes p to the child's stdin.
	WriteStdin(p []byte) error

	// Interrupt asks the child to stop, as a user's Ctrl-C would.
	Interrupt() error

	// ExitCode returns the child's exit status once Exited has reported true.
	ExitCode() (int, error)

	// Stop releases anything held for the child. It is called on every exit path.
	Stop() error
}

// PtyDecider is implemented by backends that apply their own policy when a
// pty is requested. Backends without it get exactly what was requested.
type PtyDecider interface {
	ShouldUsePty(requested, fallback bool, in io.Reader, warn io.Writer) bool
}

// StdinCloser is implemented by backends that can signal end of input to the child.
type StdinCloser interface {
	CloseStdin() error
}
