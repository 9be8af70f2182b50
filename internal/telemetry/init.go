// Package telemetry wires OpenTelemetry tracing and metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshu-sajeev/hookqueue/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// ShutdownFunc flushes and stops the providers installed by Init.
type ShutdownFunc func(context.Context) error

// Init installs the global tracer and meter providers. An empty URL leaves
// that signal on the default no-op provider.
func Init(ctx context.Context, cfg config.TelemetryConfig, log *zap.Logger) (ShutdownFunc, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name cannot be empty")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdowns []ShutdownFunc

	if cfg.TracingURL != "" {
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.TracingURL),
			otlptracehttp.WithInsecure(),
		)
		exporter, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
		log.Info("tracing enabled", zap.String("endpoint", cfg.TracingURL))
	}

	if cfg.MetricsURL != "" {
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.MetricsURL),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create metric exporter: %w", err), shutdownAll(ctx, shutdowns))
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
		log.Info("metrics enabled", zap.String("endpoint", cfg.MetricsURL))
	}

	return func(ctx context.Context) error {
		return shutdownAll(ctx, shutdowns)
	}, nil
}

func shutdownAll(ctx context.Context, fns []ShutdownFunc) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
