//go:build linux || darwin

package runner

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// readyForReading polls f without blocking. Readers that are not files
// cannot be polled and are always considered ready.
func readyForReading(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	fds := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 {
		return false
	}
	return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
}

// characterBuffered switches the terminal behind f to cbreak mode (no line
// buffering, no local echo) and returns a func restoring the old settings.
// Non-terminals and background process groups are left alone.
func characterBuffered(f *os.File) (func(), error) {
	noop := func() {}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) || !isForeground(fd) {
		return noop, nil
	}
	old, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return noop, fmt.Errorf("get termios: %w", err)
	}
	cbreak := *old
	cbreak.Lflag &^= unix.ICANON | unix.ECHO
	cbreak.Cc[unix.VMIN] = 1
	cbreak.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &cbreak); err != nil {
		return noop, fmt.Errorf("set termios: %w", err)
	}
	return func() { _ = unix.IoctlSetTermios(fd, ioctlSetTermios, old) }, nil
}

// isForeground reports whether we own the terminal; changing its mode from a
// background job would stop us with SIGTTOU.
func isForeground(fd int) bool {
	pgrp, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	return err == nil && pgrp == unix.Getpgrp()
}
