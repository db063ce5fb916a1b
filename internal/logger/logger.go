// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// invocationIDKey is the context key for per-command invocation IDs.
type invocationIDKey struct{}

// New creates a structured JSON logger writing to stderr at the given level.
// Stdout is left to the mirrored output of the commands being run.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a structured JSON logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog.Level.
// An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// WithInvocationID returns a new context with the given invocation ID.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationIDFromContext extracts the invocation ID from the context.
func InvocationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(invocationIDKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger with context fields (invocation ID) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := InvocationIDFromContext(ctx); id != "" {
		return base.With("invocation_id", id)
	}
	return base
}
