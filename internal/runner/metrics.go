package runner

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// runMetrics records one data point per Run call on the global meter
// provider. Instruments created before a provider is installed are bound to
// it once it is.
type runMetrics struct {
	commands     metric.Int64Counter
	duration     metric.Float64Histogram
	workerErrors metric.Int64Counter
}

func newRunMetrics() *runMetrics {
	meter := otel.Meter("shellrun/runner")
	m := &runMetrics{}
	// Instrument creation only fails on invalid names; record skips missing ones.
	m.commands, _ = meter.Int64Counter("shellrun.commands",
		metric.WithDescription("Commands executed, by outcome."))
	m.duration, _ = meter.Float64Histogram("shellrun.command.duration",
		metric.WithDescription("Wall-clock duration of command executions."),
		metric.WithUnit("s"))
	m.workerErrors, _ = meter.Int64Counter("shellrun.worker.errors",
		metric.WithDescription("Errors raised by background I/O workers."))
	return m
}

func (m *runMetrics) record(ctx context.Context, result *Result, pty bool, err error, elapsed time.Duration) {
	if m == nil || m.commands == nil || m.duration == nil || m.workerErrors == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome(result, err)),
		attribute.Bool("pty", pty),
	)
	m.commands.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)

	var te *ThreadError
	if errors.As(err, &te) {
		m.workerErrors.Add(ctx, int64(len(te.Errors)))
	}
}

func outcome(result *Result, err error) string {
	var failure *Failure
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "interrupted"
	case errors.As(err, &failure):
		return "failed"
	case err != nil:
		return "error"
	case result != nil && result.Failed():
		return "warned"
	default:
		return "ok"
	}
}
