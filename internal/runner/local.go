package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
)

// LocalBackend runs commands as child processes of this process, either
// through three pipes or attached to a pseudo-terminal.
type LocalBackend struct {
	// warnedAboutPtyFallback makes the fallback warning print at most once
	// per backend.
	warnedAboutPtyFallback atomic.Bool

	mu       sync.Mutex
	usingPty bool
	cmd      *exec.Cmd
	pid      int
	exited   bool
	status   exitStatus

	ptmx        *os.File
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	stdinClosed atomic.Bool

	// waitCh is used on platforms without a non-blocking wait.
	waitCh chan exitStatus
}

// NewLocalBackend creates a LocalBackend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

// ShouldUsePty implements PtyDecider. A pty is used only when requested;
// when the input has no file descriptor to hand to the child, or ptys are not
// supported here, fallback degrades to pipes with a one-time warning.
func (l *LocalBackend) ShouldUsePty(requested, fallback bool, in io.Reader, warn io.Writer) bool {
	if !requested {
		return false
	}
	var reason string
	if _, ok := in.(interface{ Fd() uintptr }); !ok {
		reason = "stdin has no fileno"
	} else if !ptySupported {
		reason = "pty is not supported on this platform"
	}
	if reason == "" || !fallback {
		return true
	}
	if l.warnedAboutPtyFallback.CompareAndSwap(false, true) {
		fmt.Fprintf(warn, "WARNING: %s; falling back to non-pty execution!\n", reason)
	}
	return false
}

// Start implements Backend.
func (l *LocalBackend) Start(_ context.Context, command, shell string, env []string, usePty bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
	l.usingPty = usePty

	cmd := exec.Command(shell, shellArgs(shell, command)...)
	cmd.Env = env

	if usePty {
		f, err := startPty(cmd)
		if err != nil {
			return err
		}
		l.ptmx = f
	} else {
		if err := l.startPipes(cmd); err != nil {
			return err
		}
	}
	l.cmd = cmd
	l.pid = cmd.Process.Pid
	l.watch()
	return nil
}

func (l *LocalBackend) startPipes(cmd *exec.Cmd) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		for _, c := range []io.Closer{stdin, stdout, stderr} {
			c.Close()
		}
		return fmt.Errorf("spawn: %w", err)
	}
	l.stdin, l.stdout, l.stderr = stdin, stdout, stderr
	return nil
}

func (l *LocalBackend) reset() {
	l.usingPty = false
	l.cmd = nil
	l.pid = 0
	l.exited = false
	l.status = exitStatus{}
	l.ptmx = nil
	l.stdin, l.stdout, l.stderr = nil, nil, nil
	l.stdinClosed.Store(false)
	l.waitCh = nil
}

// ReadStdout implements Backend. Under a pty, the I/O error some platforms
// report once the child is gone is treated as end of stream.
func (l *LocalBackend) ReadStdout(p []byte) (int, error) {
	if l.usingPty {
		if l.ptmx == nil {
			return 0, ErrNotStarted
		}
		n, err := l.ptmx.Read(p)
		if err != nil && isPtyEOF(err) {
			return n, io.EOF
		}
		return n, err
	}
	if l.stdout == nil {
		return 0, ErrNotStarted
	}
	return l.stdout.Read(p)
}

// ReadStderr implements Backend.
func (l *LocalBackend) ReadStderr(p []byte) (int, error) {
	if l.stderr == nil {
		return 0, ErrNotStarted
	}
	return l.stderr.Read(p)
}

// WriteStdin implements Backend. A broken pipe means the child exited before
// reading all its input and is not reported.
func (l *LocalBackend) WriteStdin(p []byte) error {
	var w io.Writer
	switch {
	case l.usingPty && l.ptmx != nil:
		w = l.ptmx
	case !l.usingPty && l.stdin != nil:
		w = l.stdin
	default:
		return ErrNotStarted
	}
	_, err := w.Write(p)
	switch {
	case err == nil:
		return nil
	case isBrokenPipe(err):
		return nil
	case errors.Is(err, os.ErrClosed) && l.stdinClosed.Load():
		return nil
	}
	return err
}

// CloseStdin implements StdinCloser for pipe-attached children.
func (l *LocalBackend) CloseStdin() error {
	if l.usingPty || l.stdin == nil {
		return nil
	}
	if l.stdinClosed.Swap(true) {
		return nil
	}
	return l.stdin.Close()
}

// Exited implements Backend.
func (l *LocalBackend) Exited() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return false, ErrNotStarted
	}
	return l.poll()
}

// ExitCode implements Backend.
func (l *LocalBackend) ExitCode() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.exited {
		return 0, fmt.Errorf("exit code: %w", ErrNotStarted)
	}
	return l.status.code(), nil
}

// Interrupt implements Backend.
func (l *LocalBackend) Interrupt() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return ErrNotStarted
	}
	if l.exited {
		return nil
	}
	err := l.interrupt()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stop implements Backend. A child still running at this point is killed
// and reaped, then this side of the pipes or pty is closed.
func (l *LocalBackend) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil {
		return nil
	}
	var errs []error
	if exited, _ := l.poll(); !exited {
		if err := l.terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate: %w", err))
		}
	}

	if l.ptmx != nil {
		if err := l.ptmx.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close pty: %w", err))
		}
	}
	if l.stdin != nil && !l.stdinClosed.Swap(true) {
		if err := l.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close stdin: %w", err))
		}
	}
	for _, c := range []io.Closer{l.stdout, l.stderr} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
	}
	if l.exited {
		if err := l.cmd.Process.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release process: %w", err))
		}
	}
	l.cmd = nil
	return errors.Join(errs...)
}

var _ interface {
	Backend
	PtyDecider
	StdinCloser
} = (*LocalBackend)(nil)
