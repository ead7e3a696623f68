// Package observability provides OpenTelemetry tracing, Prometheus metrics,
// audit logging and logger construction for codegraph.
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

const (
	// TracerName is the name used for the codegraph tracer.
	TracerName = "github.com/efebarandurmaz/codegraph"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "codegraph")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "codegraph",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
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

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// SpanKind constants for codegraph operations.
const (
	SpanKindUpdate     = "update"
	SpanKindSweep      = "sweep"
	SpanKindRegenerate = "regenerate"
	SpanKindValidate   = "validate"
	SpanKindQuery      = "query"
)

// StartUpdateSpan starts a span for a single-file incremental update.
func StartUpdateSpan(ctx context.Context, path string, force bool) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.update_file",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("codegraph.span.kind", SpanKindUpdate),
			attribute.String("file.path", path),
			attribute.Bool("update.force", force),
		),
	)
}

// RecordUpdateResult records the outcome of an update on a span.
func RecordUpdateResult(span trace.Span, graphs []string, skipped bool, added, removed int) {
	span.SetAttributes(
		attribute.StringSlice("update.graphs", graphs),
		attribute.Bool("update.skipped", skipped),
		attribute.Int("update.edges_added", added),
		attribute.Int("update.edges_removed", removed),
	)
}

// StartSweepSpan starts a span for a directory sweep.
func StartSweepSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.sweep",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("codegraph.span.kind", SpanKindSweep),
			attribute.Int("sweep.file_count", fileCount),
		),
	)
}

// StartRegenerateSpan starts a span for a full rebuild of one Graph Store.
func StartRegenerateSpan(ctx context.Context, graphID string, fileCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "pipeline.regenerate_store",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("codegraph.span.kind", SpanKindRegenerate),
			attribute.String("graph.id", graphID),
			attribute.Int("regenerate.file_count", fileCount),
		),
	)
}

// StartValidateSpan starts a span for validating one Graph Store.
func StartValidateSpan(ctx context.Context, graphID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "depgraph.validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("codegraph.span.kind", SpanKindValidate),
			attribute.String("graph.id", graphID),
		),
	)
}

// RecordValidateResult records validation findings on a span.
func RecordValidateResult(span trace.Span, violations, fixed int) {
	span.SetAttributes(
		attribute.Int("validate.violations", violations),
		attribute.Int("validate.fixed", fixed),
	)
	if violations > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d violations", violations))
	}
}

// StartQuerySpan starts a span for a read-only query.
func StartQuerySpan(ctx context.Context, operation, graphID string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "query."+operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("codegraph.span.kind", SpanKindQuery),
			attribute.String("graph.id", graphID),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
