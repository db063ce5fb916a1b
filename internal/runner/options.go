package runner

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"shellrun/internal/watchers"
)

// Stream names used by the hide selector.
const (
	StreamOut = "out"
	StreamErr = "err"
)

// Options are the per-invocation settings of Run.
//
// A Runner holds a set of default Options; each Run call starts from a copy of
// those defaults and applies its own Option functions on top, so anything the
// caller does not set falls back to the Runner's configured value.
type Options struct {
	// Shell is the interpreter used to run the command. Empty means DefaultShell().
	Shell string

	// Warn suppresses the *Failure error on a nonzero exit.
	Warn bool

	// Hide selects which streams are not mirrored live to OutStream/ErrStream.
	// Accepted values: nil, false, "out", "stdout", "err", "stderr", "both", true.
	// Captured output in the Result is never affected.
	Hide any

	// Pty requests a pseudo-terminal. A pty merges stderr into stdout.
	Pty bool

	// NoFallback forbids degrading to pipes when a pty was requested but
	// cannot be provided. The zero value allows the fallback.
	NoFallback bool

	// Echo prints the command line to OutStream before running it.
	Echo bool

	// Env is overlaid onto (or, with ReplaceEnv, replaces) the inherited environment.
	Env map[string]string

	// ReplaceEnv makes Env the child's entire environment.
	ReplaceEnv bool

	// Encoding names the character encoding of the child's streams.
	// Empty means auto-detect from the locale.
	Encoding string

	// OutStream, ErrStream and InStream default to the process's own standard streams.
	OutStream io.Writer
	ErrStream io.Writer
	InStream  io.Reader

	// Watchers scan the child's output and may write responses to its stdin.
	Watchers []watchers.Watcher

	// EchoStdin forces stdin echoing on or off. Nil means auto-detect: echo
	// only when not using a pty and InStream is a terminal.
	EchoStdin *bool

	// Timeout bounds the whole invocation. Zero means no limit.
	Timeout time.Duration
}

// DefaultOptions returns the base defaults: show everything, no pty, fallback
// allowed, and the process's own standard streams.
func DefaultOptions() Options {
	return Options{
		OutStream: os.Stdout,
		ErrStream: os.Stderr,
		InStream:  os.Stdin,
	}
}

// Option overrides one setting for a single Run call.
type Option func(*Options)

// WithShell sets the interpreter.
func WithShell(shell string) Option { return func(o *Options) { o.Shell = shell } }

// WithWarn sets whether a nonzero exit is returned as a Result instead of a *Failure.
func WithWarn(warn bool) Option { return func(o *Options) { o.Warn = warn } }

// WithHide sets the hide selector. Invalid values are reported by Run.
func WithHide(hide any) Option { return func(o *Options) { o.Hide = hide } }

// WithPty requests a pseudo-terminal.
func WithPty(pty bool) Option { return func(o *Options) { o.Pty = pty } }

// WithFallback sets whether pty requests may degrade to pipes.
func WithFallback(fallback bool) Option { return func(o *Options) { o.NoFallback = !fallback } }

// WithEcho sets whether the command line is printed before running.
func WithEcho(echo bool) Option { return func(o *Options) { o.Echo = echo } }

// WithEnv sets the environment overlay.
func WithEnv(env map[string]string) Option {
	return func(o *Options) { o.Env = maps.Clone(env) }
}

// WithReplaceEnv sets whether Env replaces the inherited environment.
func WithReplaceEnv(replace bool) Option { return func(o *Options) { o.ReplaceEnv = replace } }

// WithEncoding sets the stream encoding by name (e.g. "utf-8", "latin1").
func WithEncoding(name string) Option { return func(o *Options) { o.Encoding = name } }

// WithOutStream sets where stdout is mirrored.
func WithOutStream(w io.Writer) Option { return func(o *Options) { o.OutStream = w } }

// WithErrStream sets where stderr is mirrored.
func WithErrStream(w io.Writer) Option { return func(o *Options) { o.ErrStream = w } }

// WithInStream sets the input forwarded to the child.
func WithInStream(r io.Reader) Option { return func(o *Options) { o.InStream = r } }

// WithWatchers sets the stream watchers.
func WithWatchers(ws ...watchers.Watcher) Option {
	return func(o *Options) { o.Watchers = slices.Clone(ws) }
}

// WithEchoStdin forces stdin echoing on or off.
func WithEchoStdin(echo bool) Option { return func(o *Options) { o.EchoStdin = &echo } }

// WithTimeout bounds the invocation.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

// HideSet is the normalized hide selector.
type HideSet struct {
	Out bool
	Err bool
}

// Has reports whether the named stream ("out" or "err") is hidden.
func (h HideSet) Has(stream string) bool {
	switch stream {
	case StreamOut:
		return h.Out
	case StreamErr:
		return h.Err
	}
	return false
}

// Both reports whether both streams are hidden.
func (h HideSet) Both() bool { return h.Out && h.Err }

// NormalizeHide maps a hide selector to the set of hidden streams.
func NormalizeHide(val any) (HideSet, error) {
	switch v := val.(type) {
	case nil:
		return HideSet{}, nil
	case bool:
		if v {
			return HideSet{Out: true, Err: true}, nil
		}
		return HideSet{}, nil
	case string:
		switch v {
		case "out", "stdout":
			return HideSet{Out: true}, nil
		case "err", "stderr":
			return HideSet{Err: true}, nil
		case "both":
			return HideSet{Out: true, Err: true}, nil
		}
	}
	return HideSet{}, fmt.Errorf("%w: got %#v, want one of nil, false, true, \"out\", \"stdout\", \"err\", \"stderr\", \"both\"", ErrInvalidHide, val)
}

// resolved holds the normalized options of one invocation.
type resolved struct {
	Options
	hide HideSet
}

func (r *Runner) resolveOptions(opts []Option) (resolved, error) {
	o := r.defaults
	o.Env = maps.Clone(o.Env)
	o.Watchers = slices.Clone(o.Watchers)
	for _, opt := range opts {
		opt(&o)
	}

	hide, err := NormalizeHide(o.Hide)
	if err != nil {
		return resolved{}, err
	}
	if hide.Both() {
		o.Echo = false
	}

	if o.Shell == "" {
		o.Shell = DefaultShell()
	}
	if o.OutStream == nil {
		o.OutStream = os.Stdout
	}
	if o.ErrStream == nil {
		o.ErrStream = os.Stderr
	}
	if o.InStream == nil {
		o.InStream = os.Stdin
	}
	return resolved{Options: o, hide: hide}, nil
}

// generateEnv merges env into a copy of the current process environment, or
// returns a copy of env alone when replace is set.
func generateEnv(env map[string]string, replace bool) map[string]string {
	out := make(map[string]string)
	if !replace {
		for _, kv := range os.Environ() {
			for i := 1; i < len(kv); i++ {
				if kv[i] == '=' {
					out[kv[:i]] = kv[i+1:]
					break
				}
			}
		}
	}
	maps.Copy(out, env)
	return out
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		list = append(list, k+"="+env[k])
	}
	return list
}
