//go:build !linux && !darwin

package runner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

const ptySupported = false

type exitStatus struct {
	state *os.ProcessState
	err   error
}

func (s exitStatus) code() int {
	if s.state == nil {
		return -1
	}
	return s.state.ExitCode()
}

func startPty(*exec.Cmd) (*os.File, error) { return nil, ErrPtyUnsupported }

// watch waits for the child in the background, as there is no non-blocking
// wait to poll with.
func (l *LocalBackend) watch() {
	ch := make(chan exitStatus, 1)
	l.waitCh = ch
	proc := l.cmd.Process
	go func() {
		state, err := proc.Wait()
		ch <- exitStatus{state: state, err: err}
	}()
}

func (l *LocalBackend) poll() (bool, error) {
	if l.exited {
		return true, nil
	}
	select {
	case s := <-l.waitCh:
		if s.err != nil {
			return false, fmt.Errorf("wait: %w", s.err)
		}
		l.exited = true
		l.status = s
		return true, nil
	default:
		return false, nil
	}
}

func (l *LocalBackend) interrupt() error {
	return l.cmd.Process.Signal(interruptSignal())
}

// terminate kills the child and blocks until the watcher has reaped it.
func (l *LocalBackend) terminate() error {
	if err := l.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	s := <-l.waitCh
	l.exited = true
	l.status = s
	return s.err
}

// interruptSignal substitutes termination where interrupts cannot be sent
// to another process.
func interruptSignal() os.Signal { return os.Kill }

func isPtyEOF(error) bool { return false }

func isBrokenPipe(err error) bool {
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "pipe is being closed") || strings.Contains(msg, "pipe has been ended")
}
