// Package telemetry is the Telemetry Context (spec.md §2, L0): it builds a
// tracer and a fixed set of named counters/histograms, and wraps
// operations in spans. Tracing is a no-op until an OTLP endpoint is
// configured (matching the teacher's internal/agentctl/tracing); metrics
// follow the same pattern, enriched with the otel/sdk/metric stack
// julianknutsen-gascity wires that the teacher never does.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/kandev/mc-agent-core"

// Options configures telemetry startup (spec.md §6's resource attributes
// and sampler contract).
type Options struct {
	Endpoint     string
	ServiceName  string
	Environment  string
	SamplerRatio float64
}

// Instruments are the named counters/histograms spec.md §2 assigns to the
// Telemetry Context.
type Instruments struct {
	CommandsTotal         metric.Int64Counter
	NavigationAttempts    metric.Int64Counter
	ForcedMoveRetries     metric.Int64Counter
	EventsEnqueuedTotal   metric.Int64Counter
	EventsEvictedTotal    metric.Int64Counter
	EventsSentTotal       metric.Int64Counter
	SnapshotErrorsTotal   metric.Int64Counter
	SnapshotBuildDuration metric.Float64Histogram
	HungerWarningsTotal   metric.Int64Counter
}

// Context bundles the tracer, the instruments, and the provider shutdown
// hooks that cmd/mc-agent-core calls on SIGTERM/SIGINT.
type Context struct {
	tracer      trace.Tracer
	Instruments Instruments

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New builds a Context. With no endpoint configured, tracing is a no-op
// provider and metrics use the default (no-op) global meter provider —
// zero overhead, matching spec.md §6's "real tracing requires
// OTEL_EXPORTER_OTLP_ENDPOINT" contract.
func New(ctx context.Context, opts Options) (*Context, error) {
	if opts.Endpoint == "" {
		return newNoop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
			attribute.String("service.namespace", "mineflayer-agent"),
		),
	)
	if err != nil {
		res = resource.Default()
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(stripScheme(opts.Endpoint)),
		otlptracehttp.WithURLPath("/v1/traces"),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clampRatio(opts.SamplerRatio)))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(stripScheme(opts.Endpoint)),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	c := &Context{
		tracer:         tp.Tracer(instrumentationName),
		tracerProvider: tp,
		meterProvider:  mp,
	}
	c.Instruments = buildInstruments(mp.Meter(instrumentationName))
	return c, nil
}

func newNoop() *Context {
	c := &Context{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
	c.Instruments = buildInstruments(otel.GetMeterProvider().Meter(instrumentationName))
	return c
}

func buildInstruments(m metric.Meter) Instruments {
	var inst Instruments
	inst.CommandsTotal, _ = m.Int64Counter("runtime.commands.total",
		metric.WithDescription("Total inbound commands dispatched by verb"))
	inst.NavigationAttempts, _ = m.Int64Counter("runtime.navigation.attempts.total",
		metric.WithDescription("Total moveTo pathfinding attempts"))
	inst.ForcedMoveRetries, _ = m.Int64Counter("runtime.navigation.forced_move_retries.total",
		metric.WithDescription("Total forced-move retry attempts"))
	inst.EventsEnqueuedTotal, _ = m.Int64Counter("runtime.events.enqueued.total",
		metric.WithDescription("Total agent events enqueued"))
	inst.EventsEvictedTotal, _ = m.Int64Counter("runtime.events.evicted.total",
		metric.WithDescription("Total agent events evicted due to queue overflow"))
	inst.EventsSentTotal, _ = m.Int64Counter("runtime.events.sent.total",
		metric.WithDescription("Total agent events successfully sent to the planner"))
	inst.SnapshotErrorsTotal, _ = m.Int64Counter("runtime.perception.snapshot_errors.total",
		metric.WithDescription("Total perception snapshot build failures"))
	inst.SnapshotBuildDuration, _ = m.Float64Histogram("runtime.perception.snapshot_build_duration_ms",
		metric.WithDescription("Perception snapshot build latency in milliseconds"),
		metric.WithUnit("ms"))
	inst.HungerWarningsTotal, _ = m.Int64Counter("runtime.sustainability.hunger_warnings.total",
		metric.WithDescription("Total cooldown-gated hunger warnings emitted"))
	return inst
}

// Tracer returns the named tracer for manual span creation.
func (c *Context) Tracer() trace.Tracer { return c.tracer }

// StartSpan opens a span named per spec.md §4.3 ("command.<verb>") and
// returns the derived context plus the span, so callers can set
// result.ok/error-status before ending it.
func (c *Context) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// WrapOperation runs fn inside a span named name, recording duration and
// recording fn's error on the span (the span status is left unset).
func (c *Context) WrapOperation(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := c.StartSpan(ctx, name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Shutdown flushes pending spans/metrics and shuts down the providers
// (spec.md §6: "On SIGTERM or SIGINT: initiate telemetry shutdown").
func (c *Context) Shutdown(ctx context.Context) error {
	var firstErr error
	if c.tracerProvider != nil {
		if err := c.tracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.meterProvider != nil {
		if err := c.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func stripScheme(endpoint string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(endpoint) > len(prefix) && endpoint[:len(prefix)] == prefix {
			return endpoint[len(prefix):]
		}
	}
	return endpoint
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
