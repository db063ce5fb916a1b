package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"shellrun/internal/watchers"
)

// invocation is the per-command state shared between Run and its workers.
type invocation struct {
	backend Backend
	cfg     Config
	log     *slog.Logger
	opts    resolved
	codec   *codec
	usePty  bool

	// finished is the completion flag: closed once by Run after the child
	// exits (or the wait is abandoned), never reopened.
	finished chan struct{}
	// failed is closed by the first worker that returns an error.
	failed   chan struct{}
	failOnce sync.Once

	workers        []*worker
	stdout, stderr capture
}

// worker is one background I/O goroutine.
type worker struct {
	name string
	// timeout bounds the join; zero waits indefinitely.
	timeout time.Duration
	done    chan struct{}
	// err is written before done is closed and read only after.
	err error
}

// capture publishes the text read from one stream. The owning reader is the
// only writer; Run reads it after the reader has been joined, or takes the
// last published snapshot if the join timed out.
type capture struct {
	text atomic.Pointer[string]
}

func (c *capture) store(s string) { c.text.Store(&s) }

func (c *capture) load() string {
	if p := c.text.Load(); p != nil {
		return *p
	}
	return ""
}

func newInvocation(r *Runner, log *slog.Logger, o resolved, c *codec, usePty bool) *invocation {
	return &invocation{
		backend:  r.backend,
		cfg:      r.cfg,
		log:      log,
		opts:     o,
		codec:    c,
		usePty:   usePty,
		finished: make(chan struct{}),
		failed:   make(chan struct{}),
	}
}

func (inv *invocation) spawnWorkers() {
	inv.spawn("stdout", inv.cfg.OutputJoinTimeout, func() error {
		return inv.handleOutput(inv.backend.ReadStdout, inv.opts.hide.Out, inv.opts.OutStream, &inv.stdout)
	})
	if !inv.usePty {
		inv.spawn("stderr", inv.cfg.OutputJoinTimeout, func() error {
			return inv.handleOutput(inv.backend.ReadStderr, inv.opts.hide.Err, inv.opts.ErrStream, &inv.stderr)
		})
	}
	inv.spawn("stdin", 0, func() error {
		return inv.handleStdin(inv.opts.InStream, inv.opts.OutStream, inv.opts.EchoStdin)
	})
}

func (inv *invocation) spawn(name string, timeout time.Duration, body func() error) {
	w := &worker{name: name, timeout: timeout, done: make(chan struct{})}
	inv.workers = append(inv.workers, w)
	go func() {
		defer close(w.done)
		defer func() {
			if p := recover(); p != nil {
				w.err = &WorkerError{Worker: name, Err: fmt.Errorf("panic: %v", p)}
				inv.markFailed()
			}
		}()
		if err := body(); err != nil {
			w.err = &WorkerError{Worker: name, Err: err}
			inv.markFailed()
		}
	}()
}

func (inv *invocation) markFailed() {
	inv.failOnce.Do(func() { close(inv.failed) })
}

func (inv *invocation) isFinished() bool {
	select {
	case <-inv.finished:
		return true
	default:
		return false
	}
}

func (inv *invocation) finish() { close(inv.finished) }

// hasDeadWorkers reports whether any worker has already exited with an error.
func (inv *invocation) hasDeadWorkers() bool {
	for _, w := range inv.workers {
		select {
		case <-w.done:
			if w.err != nil {
				return true
			}
		default:
		}
	}
	return false
}

// wait polls until the child exits or a worker dies. If ctx ends first the
// child is interrupted and ctx's error is returned as interrupted.
func (inv *invocation) wait(ctx context.Context) (interrupted, err error) {
	ticker := time.NewTicker(inv.cfg.PollInterval)
	defer ticker.Stop()

	for {
		exited, err := inv.backend.Exited()
		if err != nil {
			return nil, fmt.Errorf("wait: %w", err)
		}
		if exited || inv.hasDeadWorkers() {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			if err := inv.backend.Interrupt(); err != nil {
				inv.log.Warn("interrupt failed", "error", err)
			}
			inv.awaitExit(inv.cfg.InterruptGrace)
			return ctx.Err(), nil
		case <-inv.failed:
		case <-ticker.C:
		}
	}
}

// awaitExit gives an interrupted child up to grace to exit on its own.
func (inv *invocation) awaitExit(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if exited, err := inv.backend.Exited(); err != nil || exited {
			return
		}
		time.Sleep(inv.cfg.PollInterval)
	}
	inv.log.Debug("child still running after interrupt", "grace", grace)
}

// join waits for every worker and collects their errors. Output readers are
// waited on for at most their timeout; the stdin forwarder stops on its own
// once the completion flag is set.
func (inv *invocation) join() []error {
	var errs []error
	for _, w := range inv.workers {
		if w.timeout > 0 {
			select {
			case <-w.done:
			case <-time.After(w.timeout):
				inv.log.Debug("worker join timed out", "worker", w.name, "timeout", w.timeout)
				continue
			}
		} else {
			<-w.done
		}
		if w.err != nil {
			inv.log.Debug("worker failed", "worker", w.name, "error", w.err)
			errs = append(errs, w.err)
		}
	}
	return errs
}

// handleOutput reads one child stream until end of stream, mirroring it to
// out unless hidden, capturing it, and running the watchers over it.
func (inv *invocation) handleOutput(read func([]byte) (int, error), hide bool, out io.Writer, dst *capture) error {
	dec := inv.codec.decoder()
	states := make([]watchers.State, len(inv.opts.Watchers))
	chunk := make([]byte, inv.cfg.ReadChunkSize)
	var buf strings.Builder

	for {
		n, readErr := read(chunk)
		eof := (n == 0 && readErr == nil) || errors.Is(readErr, io.EOF)

		text, err := dec.decode(chunk[:n], eof)
		if err != nil {
			return err
		}
		if text != "" {
			if !hide {
				if err := writeOutput(out, text); err != nil {
					return fmt.Errorf("mirror output: %w", err)
				}
			}
			buf.WriteString(text)
			stream := buf.String()
			dst.store(stream)
			if err := inv.respond(stream, states); err != nil {
				return err
			}
		}

		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("read: %w", readErr)
		}
		if eof {
			return nil
		}
	}
}

// respond passes the whole stream read so far to every watcher and writes
// their responses to the child's stdin.
func (inv *invocation) respond(stream string, states []watchers.State) error {
	for i, w := range inv.opts.Watchers {
		responses, err := w.Submit(&states[i], stream)
		if err != nil {
			return err
		}
		for _, resp := range responses {
			if err := inv.writeStdin(resp); err != nil {
				return err
			}
		}
	}
	return nil
}

func (inv *invocation) writeStdin(text string) error {
	b, err := inv.codec.encode(text)
	if err != nil {
		return err
	}
	if err := inv.backend.WriteStdin(b); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// handleStdin forwards in to the child one byte at a time. It stops when in
// reaches end of input, or when the completion flag is set and nothing was
// read on the last pass.
func (inv *invocation) handleStdin(in io.Reader, out io.Writer, echo *bool) error {
	if f, ok := in.(*os.File); ok {
		restore, err := characterBuffered(f)
		if err != nil {
			inv.log.Debug("could not set character-buffered input", "error", err)
		}
		defer restore()
	}

	dec := inv.codec.decoder()
	b := make([]byte, 1)
	for {
		var text string
		var eof bool
		if readyForReading(in) {
			n, err := in.Read(b)
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			eof = errors.Is(err, io.EOF)
			if text, err = dec.decode(b[:n], eof); err != nil {
				return err
			}
		}

		if text != "" {
			if err := inv.writeStdin(text); err != nil {
				return err
			}
			if echo == nil {
				v := inv.shouldEchoStdin(in)
				echo = &v
			}
			if *echo {
				if err := writeOutput(out, text); err != nil {
					return fmt.Errorf("echo input: %w", err)
				}
			}
		} else if eof {
			inv.closeStdin()
			return nil
		}

		if inv.isFinished() && text == "" {
			return nil
		}
		time.Sleep(inv.cfg.InputSleep)
	}
}

// shouldEchoStdin reports whether input should be mirrored to the output:
// ptys echo on their own, and non-terminal input is not typed by anyone.
func (inv *invocation) shouldEchoStdin(in io.Reader) bool {
	return !inv.usePty && isTerminal(in)
}

// closeStdin signals end of input to the child. It is skipped under a pty and
// when watchers are registered, since a watcher may still have to answer.
func (inv *invocation) closeStdin() {
	if inv.usePty || len(inv.opts.Watchers) > 0 {
		return
	}
	c, ok := inv.backend.(StdinCloser)
	if !ok {
		return
	}
	if err := c.CloseStdin(); err != nil {
		inv.log.Debug("close stdin failed", "error", err)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
