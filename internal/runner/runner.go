// Package runner executes shell commands in a child process while streaming,
// mirroring and capturing its output, forwarding input to it, and answering
// prompts through stream watchers.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shellrun/internal/logger"
)

const (
	defaultReadChunkSize     = 1000
	defaultInputSleep        = 10 * time.Millisecond
	defaultOutputJoinTimeout = time.Second
	defaultInterruptGrace    = 2 * time.Second
)

// Config holds the engine-instance settings of a Runner.
type Config struct {
	// Defaults are the options every Run call starts from.
	Defaults Options

	// Logger receives debug and warning records. Defaults to slog.Default().
	Logger *slog.Logger

	// ReadChunkSize is the maximum number of bytes read per output read (default: 1000).
	ReadChunkSize int

	// InputSleep is the pause between stdin polls (default: 10ms).
	InputSleep time.Duration

	// PollInterval is the pause between child-exit checks (default: InputSleep).
	PollInterval time.Duration

	// OutputJoinTimeout bounds how long teardown waits for each output reader
	// (default: 1s). A reader can stay blocked after the child exits when a
	// grandchild still holds the pipe open.
	OutputJoinTimeout time.Duration

	// InterruptGrace is how long an interrupted child may take to exit before
	// the backend is stopped, which kills it (default: 2s).
	InterruptGrace time.Duration
}

// Runner runs one command at a time through a Backend.
type Runner struct {
	backend  Backend
	defaults Options
	cfg      Config
	logger   *slog.Logger
	metrics  *runMetrics
	tracer   trace.Tracer

	// mu serializes Run; a Backend serves a single child at a time.
	mu sync.Mutex
}

// New creates a Runner on top of backend.
func New(backend Backend, cfg Config) *Runner {
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = defaultReadChunkSize
	}
	if cfg.InputSleep <= 0 {
		cfg.InputSleep = defaultInputSleep
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = cfg.InputSleep
	}
	if cfg.OutputJoinTimeout <= 0 {
		cfg.OutputJoinTimeout = defaultOutputJoinTimeout
	}
	if cfg.InterruptGrace <= 0 {
		cfg.InterruptGrace = defaultInterruptGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Runner{
		backend:  backend,
		defaults: cfg.Defaults,
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  newRunMetrics(),
		tracer:   otel.Tracer("shellrun/runner"),
	}
}

// NewLocal creates a Runner that executes commands on this machine.
func NewLocal(cfg Config) *Runner {
	return New(NewLocalBackend(), cfg)
}

// Run executes command and returns its Result.
//
// A nonzero exit returns a *Failure unless Warn is set. Errors raised by the
// background I/O workers are returned together as a *ThreadError. If ctx is
// cancelled (or the Timeout option expires) the child is interrupted, the
// workers are still joined, and the returned error wraps ctx.Err().
// The backend is stopped on every path.
func (r *Runner) Run(ctx context.Context, command string, opts ...Option) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx = logger.WithInvocationID(ctx, uuid.NewString())
	log := logger.FromContext(ctx, r.logger)

	ctx, span := r.tracer.Start(ctx, "runner.run",
		trace.WithAttributes(attribute.String("command", command)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	start := time.Now()
	result, usedPty, err := r.run(ctx, log, command, opts)
	if stopErr := r.backend.Stop(); stopErr != nil {
		log.Warn("backend stop failed", "error", stopErr)
	}

	r.metrics.record(ctx, result, usedPty, err, time.Since(start))
	if result != nil {
		span.SetAttributes(attribute.Int("exit_code", result.Exited), attribute.Bool("pty", result.Pty))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Debug("command failed", "command", command, "error", err, "duration", time.Since(start))
		return nil, err
	}
	log.Debug("command finished", "command", command, "exit_code", result.Exited, "duration", time.Since(start))
	return result, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, command string, opts []Option) (*Result, bool, error) {
	o, err := r.resolveOptions(opts)
	if err != nil {
		return nil, false, err
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	usePty := r.shouldUsePty(o, log)
	env := generateEnv(o.Env, o.ReplaceEnv)
	c, err := newCodec(o.Encoding)
	if err != nil {
		return nil, usePty, err
	}

	if o.Echo {
		if err := writeOutput(o.OutStream, "\x1b[1;37m"+command+"\x1b[0m\n"); err != nil {
			return nil, usePty, fmt.Errorf("echo command: %w", err)
		}
	}

	log.Debug("starting command", "command", command, "shell", o.Shell, "pty", usePty, "encoding", c.name)
	if err := r.backend.Start(ctx, command, o.Shell, envList(env), usePty); err != nil {
		return nil, usePty, fmt.Errorf("start %q: %w", command, err)
	}

	inv := newInvocation(r, log, o, c, usePty)
	inv.spawnWorkers()

	interrupted, waitErr := inv.wait(ctx)
	inv.finish()
	workerErrs := inv.join()

	if interrupted != nil {
		return nil, usePty, fmt.Errorf("command %q interrupted: %w", command, interrupted)
	}
	if waitErr != nil {
		return nil, usePty, waitErr
	}
	if len(workerErrs) > 0 {
		return nil, usePty, &ThreadError{Errors: workerErrs}
	}

	stdout, stderr := inv.stdout.load(), inv.stderr.load()
	if goruntime.GOOS == "windows" {
		stdout = normalizeNewlines(stdout)
		stderr = normalizeNewlines(stderr)
	}

	exited, err := r.backend.ExitCode()
	if err != nil {
		return nil, usePty, fmt.Errorf("exit code: %w", err)
	}

	result := &Result{
		Command: command,
		Shell:   o.Shell,
		Env:     env,
		Stdout:  stdout,
		Stderr:  stderr,
		Exited:  exited,
		Pty:     usePty,
	}
	if result.Failed() && !o.Warn {
		return result, usePty, &Failure{Result: result}
	}
	return result, usePty, nil
}

func (r *Runner) shouldUsePty(o resolved, log *slog.Logger) bool {
	d, ok := r.backend.(PtyDecider)
	if !ok {
		return o.Pty
	}
	use := d.ShouldUsePty(o.Pty, !o.NoFallback, o.InStream, o.ErrStream)
	if o.Pty && !use {
		log.Warn("pty requested but unavailable, using pipes")
	}
	return use
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// writeOutput writes s to w and flushes w when it buffers.
func writeOutput(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
