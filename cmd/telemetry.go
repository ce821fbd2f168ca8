package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/frahmantamala/estore-payments/internal"
)

const defaultServiceName = "estore-payments"

type shutdownFunc func(context.Context) error

// setupTelemetry installs the global tracer and meter providers. With both
// disabled the otel no-op providers stay in place.
func setupTelemetry(ctx context.Context, cfg internal.ObservabilityConfig, logger *slog.Logger) (shutdownFunc, error) {
	var shutdowns []shutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	name := cfg.Tracing.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	if cfg.Tracing.Enabled {
		opts := []otlptracehttp.Option{}
		if cfg.Tracing.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Tracing.Endpoint))
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return shutdown, fmt.Errorf("create trace exporter: %w", err)
		}
		rate := cfg.Tracing.SamplingRate
		if rate <= 0 {
			rate = 1
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint, "sampling_rate", rate)
	}

	if cfg.Metrics.Enabled {
		opts := []otlpmetrichttp.Option{}
		if cfg.Metrics.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(cfg.Metrics.Endpoint))
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return shutdown, fmt.Errorf("create metric exporter: %w", err)
		}
		interval := cfg.Metrics.Interval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
		logger.Info("metrics enabled", "endpoint", cfg.Metrics.Endpoint, "interval", interval)
	}

	return shutdown, nil
}

func meter() metric.Meter {
	return otel.Meter("github.com/frahmantamala/estore-payments")
}
