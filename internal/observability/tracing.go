// Package observability provides OpenTelemetry tracing, Prometheus-format
// metrics and slog setup for jobscout.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for every jobscout span.
const TracerName = "github.com/efebarandurmaz/jobscout"

// Span names for the pipeline stages.
const (
	SpanPipeline    = "pipeline.search_relevant_jobs"
	SpanVendor      = "vendor.search"
	SpanIndexUpsert = "index.upsert"
	SpanIndexSearch = "index.search"
)

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint, e.g. "localhost:4317".
	// Empty disables export.
	OTLPEndpoint string
	Insecure     bool

	// SampleRate in [0,1].
	SampleRate float64
}

// DefaultTracingConfig returns a config with export disabled.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "jobscout",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the SDK provider so callers can shut it down.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracing installs a global tracer provider exporting over OTLP gRPC.
// With no endpoint the global no-op tracer is used.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// StartPipelineSpan opens the root span of one search_relevant_jobs run.
func StartPipelineSpan(ctx context.Context, query string, filterCount int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, SpanPipeline,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("jobscout.query", query),
			attribute.Int("jobscout.filter_count", filterCount),
		),
	)
}

// StartVendorSpan opens a client span around a job vendor call.
func StartVendorSpan(ctx context.Context, vendor string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, SpanVendor,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("jobscout.vendor", vendor)),
	)
}

// StartIndexSpan opens a client span around an index operation. name is
// SpanIndexUpsert or SpanIndexSearch.
func StartIndexSpan(ctx context.Context, name, backend string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("jobscout.index.backend", backend)),
	)
}

// RecordCounts attaches the pipeline stage sizes to a span.
func RecordCounts(span trace.Span, fetched, unique, results int) {
	span.SetAttributes(
		attribute.Int("jobscout.jobs.fetched", fetched),
		attribute.Int("jobscout.jobs.unique", unique),
		attribute.Int("jobscout.jobs.results", results),
	)
}

// RecordError marks the span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
