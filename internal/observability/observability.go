// Package observability wires structured logging, OpenTelemetry tracing and
// Prometheus-backed metrics behind one init call. With metrics and tracing
// disabled the providers are no-ops with zero overhead, which is the default
// for stdio server mode.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerName = "kotadb"
	meterName  = "kotadb"
)

// Config controls provider construction.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	LogLevel slog.Level
	LogJSON  bool

	// MetricsEnabled turns on the Prometheus meter provider.
	MetricsEnabled bool

	// TracingEnabled records spans in-process so trace IDs flow into logs
	// and tool responses.
	TracingEnabled bool
}

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Registry is non-nil when metrics are enabled; callers expose it via
	// promhttp.
	Registry *prometheus.Registry

	// Shutdown flushes pending telemetry. Must be called before exit.
	Shutdown func(ctx context.Context) error
}

// Init builds the providers. Logs always go to stderr so stdout stays clean
// for the stdio protocol.
func Init(cfg Config) (Providers, error) {
	res, err := buildResource(cfg)
	if err != nil {
		return Providers{}, err
	}

	tp, tpShutdown := buildTracerProvider(cfg, res)

	mp, registry, mpShutdown, err := buildMeterProvider(cfg, res)
	if err != nil {
		shutdownErr := tpShutdown(context.Background())

		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), shutdownErr)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logger := buildLogger(cfg)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tpShutdown(ctx), mpShutdown(ctx))
	}

	return Providers{
		Tracer:   tp.Tracer(tracerName),
		Meter:    mp.Meter(meterName),
		Logger:   logger,
		Registry: registry,
		Shutdown: shutdown,
	}, nil
}

func buildResource(cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(cfg.Environment)))
	}

	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

type shutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error { return nil }

func buildTracerProvider(cfg Config, res *resource.Resource) (trace.TracerProvider, shutdownFunc) {
	if !cfg.TracingEnabled {
		return nooptrace.NewTracerProvider(), noopShutdown
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	return tp, tp.Shutdown
}

func buildMeterProvider(cfg Config, res *resource.Resource) (metric.MeterProvider, *prometheus.Registry, shutdownFunc, error) {
	if !cfg.MetricsEnabled {
		return noopmetric.NewMeterProvider(), nil, noopShutdown, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	return mp, registry, mp.Shutdown, nil
}

func buildLogger(cfg Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment))
}
