package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// fakeProc is the child side of a fakeBackend command.
type fakeProc struct {
	outW, errW *io.PipeWriter
	stdin      chan []byte
	interrupt  chan struct{}
	kill       chan struct{}
}

func (p *fakeProc) out(s string) { _, _ = io.WriteString(p.outW, s) }

func (p *fakeProc) err(s string) { _, _ = io.WriteString(p.errW, s) }

// readStdin collects stdin until want bytes arrived or timeout passed.
func (p *fakeProc) readStdin(want int, timeout time.Duration) string {
	var got []byte
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case b := <-p.stdin:
			got = append(got, b...)
		case <-deadline:
			return string(got)
		}
	}
	return string(got)
}

// fakeBackend runs script in a goroutine in place of a child process.
type fakeBackend struct {
	script   func(p *fakeProc) int
	startErr error

	mu       sync.Mutex
	command  string
	shell    string
	env      []string
	usePty   bool
	stdinLog []byte

	outR, errR *io.PipeReader
	proc       *fakeProc
	done       chan struct{}
	code       int

	interrupted  atomic.Bool
	stdinClosed  atomic.Bool
	stderrReads  atomic.Int32
	stops        atomic.Int32
	interruptOne *sync.Once
	killOne      *sync.Once
}

func newFake(script func(p *fakeProc) int) *fakeBackend {
	return &fakeBackend{script: script}
}

func (f *fakeBackend) Start(_ context.Context, command, shell string, env []string, usePty bool) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.command, f.shell, f.env, f.usePty = command, shell, env, usePty

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	p := &fakeProc{
		outW:      outW,
		errW:      errW,
		stdin:     make(chan []byte, 1024),
		interrupt: make(chan struct{}),
		kill:      make(chan struct{}),
	}
	f.outR, f.errR, f.proc = outR, errR, p
	f.done = make(chan struct{})
	f.interruptOne = new(sync.Once)
	f.killOne = new(sync.Once)

	done := f.done
	go func() {
		code := f.script(p)
		outW.Close()
		errW.Close()
		f.mu.Lock()
		f.code = code
		f.mu.Unlock()
		close(done)
	}()
	return nil
}

func (f *fakeBackend) Exited() (bool, error) {
	select {
	case <-f.done:
		return true, nil
	default:
		return false, nil
	}
}

func (f *fakeBackend) ReadStdout(p []byte) (int, error) { return f.outR.Read(p) }

func (f *fakeBackend) ReadStderr(p []byte) (int, error) {
	f.stderrReads.Add(1)
	return f.errR.Read(p)
}

func (f *fakeBackend) WriteStdin(p []byte) error {
	if f.stdinClosed.Load() {
		return errors.New("write to closed stdin")
	}
	f.mu.Lock()
	f.stdinLog = append(f.stdinLog, p...)
	f.mu.Unlock()
	f.proc.stdin <- append([]byte(nil), p...)
	return nil
}

func (f *fakeBackend) CloseStdin() error {
	f.stdinClosed.Store(true)
	return nil
}

func (f *fakeBackend) Interrupt() error {
	f.interrupted.Store(true)
	f.interruptOne.Do(func() { close(f.proc.interrupt) })
	return nil
}

func (f *fakeBackend) ExitCode() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, nil
}

func (f *fakeBackend) Stop() error {
	f.stops.Add(1)
	if f.proc != nil {
		f.killOne.Do(func() { close(f.proc.kill) })
	}
	return nil
}

func (f *fakeBackend) stdinText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.stdinLog)
}
