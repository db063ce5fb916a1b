//go:build linux || darwin

package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const ptySupported = true

// exitStatus is the raw wait status of a reaped child.
type exitStatus struct {
	ws unix.WaitStatus
}

// code decodes the wait status: the exit status for a normal exit, 128 plus
// the signal number for a child killed by a signal (as shells report it).
func (s exitStatus) code() int {
	switch {
	case s.ws.Exited():
		return s.ws.ExitStatus()
	case s.ws.Signaled():
		return 128 + int(s.ws.Signal())
	}
	return -1
}

// startPty forks the shell onto a new pty sized like our own terminal. The
// child gets the pty as its controlling terminal and stdio before exec.
func startPty(cmd *exec.Cmd) (*os.File, error) {
	cols, rows := ptySize()
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	return f, nil
}

// ptySize returns the size of the terminal on our stdout, or 80x24.
func ptySize() (cols, rows uint16) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return uint16(w), uint16(h)
}

// watch is a no-op here: poll reaps the child with a non-blocking wait4.
func (l *LocalBackend) watch() {}

func (l *LocalBackend) poll() (bool, error) {
	if l.exited {
		return true, nil
	}
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(l.pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("wait4 %d: %w", l.pid, err)
		}
		if pid == 0 {
			return false, nil
		}
		break
	}
	l.exited = true
	l.status = exitStatus{ws: ws}
	return true, nil
}

func (l *LocalBackend) interrupt() error {
	if l.usingPty {
		if err := unix.Kill(l.pid, unix.SIGINT); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("kill %d: %w", l.pid, err)
		}
		return nil
	}
	return l.cmd.Process.Signal(interruptSignal())
}

// terminate kills the child and blocks until it is reaped.
func (l *LocalBackend) terminate() error {
	if err := unix.Kill(l.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill %d: %w", l.pid, err)
	}
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(l.pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("wait4 %d: %w", l.pid, err)
		}
		break
	}
	l.exited = true
	l.status = exitStatus{ws: ws}
	return nil
}

// interruptSignal is the best available "user pressed Ctrl-C" signal.
func interruptSignal() os.Signal { return unix.SIGINT }

// isPtyEOF reports whether err is the I/O error a pty master returns once the
// child side has gone away. The errno is checked first; the message match
// covers platforms that surface it differently.
func isPtyEOF(err error) bool {
	return errors.Is(err, unix.EIO) || strings.Contains(strings.ToLower(err.Error()), "input/output error")
}

func isBrokenPipe(err error) bool { return errors.Is(err, unix.EPIPE) }
