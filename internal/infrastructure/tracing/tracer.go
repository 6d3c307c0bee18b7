// Package tracing provides OpenTelemetry-based tracing for sync cycles.
// It supports stdout and OTLP exporters and provides span helpers for
// cycles, remote calls and conflict resolution.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the wikisync tracer.
	TracerName = "github.com/jbctechsolutions/wikisync"

	// Version is the semantic version of the tracer.
	Version = "0.4.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "wikisync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Create resource without merging with Default() to avoid schema URL conflicts.
	// The default resource's schema URL may conflict with our semconv version.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// --- Domain-specific span helpers ---

// CycleSpan represents one sync cycle.
type CycleSpan struct {
	span trace.Span
}

// StartCycleSpan starts a span for a sync cycle.
func (t *Tracer) StartCycleSpan(ctx context.Context, cycleID, trigger string) (context.Context, *CycleSpan) {
	ctx, span := t.tracer.Start(ctx, "sync.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sync.cycle_id", cycleID),
			attribute.String("sync.trigger", trigger),
		),
	)
	return ctx, &CycleSpan{span: span}
}

// SetPlan records the size of the detected work.
func (cs *CycleSpan) SetPlan(pulls, pushes, conflicts int) {
	cs.span.SetAttributes(
		attribute.Int("sync.plan.pulls", pulls),
		attribute.Int("sync.plan.pushes", pushes),
		attribute.Int("sync.plan.conflicts", conflicts),
	)
}

// SetOutcome records what the cycle applied.
func (cs *CycleSpan) SetOutcome(pulled, pushed, resolved, parked int) {
	cs.span.SetAttributes(
		attribute.Int("sync.pulled", pulled),
		attribute.Int("sync.pushed", pushed),
		attribute.Int("sync.resolved", resolved),
		attribute.Int("sync.parked", parked),
	)
}

// End ends the cycle span with success status.
func (cs *CycleSpan) End() {
	cs.span.SetStatus(codes.Ok, "cycle completed")
	cs.span.End()
}

// EndWithError ends the cycle span with error status.
func (cs *CycleSpan) EndWithError(err error) {
	cs.span.RecordError(err)
	cs.span.SetStatus(codes.Error, err.Error())
	cs.span.End()
}

// RemoteSpan represents a single call to the remote store.
type RemoteSpan struct {
	span trace.Span
}

// StartRemoteSpan starts a client span for a remote call.
func (t *Tracer) StartRemoteSpan(ctx context.Context, backend, op, target string) (context.Context, *RemoteSpan) {
	ctx, span := t.tracer.Start(ctx, "remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("remote.backend", backend),
			attribute.String("remote.target", target),
		),
	)
	return ctx, &RemoteSpan{span: span}
}

// EndWithError ends the span, marking it failed when err is non-nil.
func (rs *RemoteSpan) EndWithError(err error) {
	if err != nil {
		rs.span.RecordError(err)
		rs.span.SetStatus(codes.Error, err.Error())
	} else {
		rs.span.SetStatus(codes.Ok, "")
	}
	rs.span.End()
}

// ResolveSpan represents the settlement of one conflict.
type ResolveSpan struct {
	span trace.Span
}

// StartResolveSpan starts a span for resolving item id.
func (t *Tracer) StartResolveSpan(ctx context.Context, id, kind, strategy string) (context.Context, *ResolveSpan) {
	ctx, span := t.tracer.Start(ctx, "conflict.resolve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("conflict.id", id),
			attribute.String("conflict.kind", kind),
			attribute.String("conflict.strategy", strategy),
		),
	)
	return ctx, &ResolveSpan{span: span}
}

// End ends the span with the resolution outcome.
func (rs *ResolveSpan) End(outcome string) {
	rs.span.SetAttributes(attribute.String("conflict.outcome", outcome))
	rs.span.SetStatus(codes.Ok, "")
	rs.span.End()
}

// EndWithError ends the span with error status.
func (rs *ResolveSpan) EndWithError(err error) {
	rs.span.RecordError(err)
	rs.span.SetStatus(codes.Error, err.Error())
	rs.span.End()
}
