//go:build windows

package runner

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/windows"
)

// readyForReading waits zero milliseconds on a console input handle, which is
// signaled while input events are queued. Pipes, files and non-file readers
// are always considered ready.
func readyForReading(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return true
	}
	h := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return true
	}
	event, err := windows.WaitForSingleObject(h, 0)
	return err == nil && event == windows.WAIT_OBJECT_0
}

// characterBuffered turns off line input and echo on a console and returns a
// func restoring the old mode.
func characterBuffered(f *os.File) (func(), error) {
	noop := func() {}
	h := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		return noop, nil
	}
	raw := mode &^ (windows.ENABLE_LINE_INPUT | windows.ENABLE_ECHO_INPUT)
	if err := windows.SetConsoleMode(h, raw); err != nil {
		return noop, fmt.Errorf("set console mode: %w", err)
	}
	return func() { _ = windows.SetConsoleMode(h, mode) }, nil
}
