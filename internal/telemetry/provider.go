package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	mu       sync.RWMutex
	current  trace.TracerProvider
	shutdown func(context.Context) error
)

// ErrCollectorDown is returned for every batch once a previous batch
// exhausted its retries.
var ErrCollectorDown = errors.New("collector unreachable; dropping spans for the rest of the run")

// runExporter retries a failed batch a few times. A collector that stays
// down for one whole batch is given up on for the rest of the process, so
// tracing never holds a release back.
type runExporter struct {
	next     sdktrace.SpanExporter
	maxTries uint
	down     atomic.Bool
}

func newRunExporter(next sdktrace.SpanExporter) *runExporter {
	return &runExporter{next: next, maxTries: 4}
}

func (e *runExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.down.Load() {
		return ErrCollectorDown
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.next.ExportSpans(ctx, spans)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(e.maxTries),
		backoff.WithMaxElapsedTime(5*time.Second),
	)
	if err != nil {
		e.down.Store(true)
		return fmt.Errorf("export failed: %w", err)
	}
	return nil
}

func (e *runExporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}

func runResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

// InitProvider installs the tracer provider described by cfg and returns
// its shutdown function. A disabled config installs a noop provider.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	mu.Lock()
	defer mu.Unlock()

	if !cfg.Enabled {
		current = noop.NewTracerProvider()
		shutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(current)
		return shutdown, nil
	}

	res, err := runResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res), sdktrace.WithSampler(sampler)}

	// without an endpoint spans are recorded for in-process use only
	if cfg.Endpoint != "" {
		httpOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(newRunExporter(exporter), sdktrace.WithBatchTimeout(2*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	current = tp
	shutdown = tp.Shutdown
	otel.SetTracerProvider(tp)
	return shutdown, nil
}

// Shutdown flushes and stops the installed provider.
func Shutdown(ctx context.Context) error {
	mu.RLock()
	fn := shutdown
	mu.RUnlock()

	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Provider returns the installed provider, or a noop one before
// InitProvider ran.
func Provider() trace.TracerProvider {
	mu.RLock()
	defer mu.RUnlock()

	if current == nil {
		return noop.NewTracerProvider()
	}
	return current
}
