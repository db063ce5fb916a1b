package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerOptions describes where and how runs are traced.
type TracerOptions struct {
	ServiceName string
	Version     string
	// Endpoint is the OTLP/gRPC collector address.
	Endpoint string
	// SampleRatio is the fraction of root run spans kept, in [0, 1].
	SampleRatio float64
}

func (o TracerOptions) sampler() sdktrace.Sampler {
	switch {
	case o.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case o.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.SampleRatio))
}

func (o TracerOptions) resource(ctx context.Context) (*resource.Resource, error) {
	version := o.Version
	if version == "" {
		version = "dev"
	}
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(o.ServiceName),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithProcessCommandArgs(),
	)
}

// InitTracer installs a global trace provider exporting run spans to the
// collector at opts.Endpoint. The returned function flushes pending spans.
func InitTracer(ctx context.Context, opts TracerOptions) (func(context.Context) error, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("trace exporter: empty collector endpoint")
	}

	// Dialing is lazy; an unreachable collector only loses spans.
	exporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	res, err := opts.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(opts.sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	return tp.Shutdown, nil
}
