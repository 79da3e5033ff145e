package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/nerrad567/gray-logic-pubsub/internal/infrastructure/config"
)

const (
	serviceName = "pubsub"

	// exportTimeout bounds a single export to the collector.
	exportTimeout = 30 * time.Second
)

// ShutdownFunc flushes pending metrics and releases the exporter.
type ShutdownFunc func(context.Context) error

// InitMeterProvider builds the meter provider described by cfg.
//
// Parameters:
//   - ctx: Context for exporter setup
//   - cfg: Metrics configuration
//   - version: Application version recorded on the resource
//
// Returns:
//   - metric.MeterProvider: OTLP-backed provider, or a no-op provider when disabled
//   - ShutdownFunc: Flushes and stops export; always non-nil
//   - error: If the resource or exporter cannot be created
func InitMeterProvider(ctx context.Context, cfg config.MetricsConfig, version string) (metric.MeterProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		return noop.NewMeterProvider(), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTimeout(exportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
	)

	return mp, mp.Shutdown, nil
}
