package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config holds telemetry configuration
type Config struct {
	ServiceName    string        `yaml:"service_name"`
	ServiceVersion string        `yaml:"service_version"`
	Environment    string        `yaml:"environment"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	ExportInterval time.Duration `yaml:"export_interval"`
	Enabled        bool          `yaml:"enabled"`
}

// DefaultConfig returns telemetry disabled, pointing at a local collector
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tasktimer",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		ExportInterval: 30 * time.Second,
		Enabled:        false,
	}
}

// Telemetry holds the meter provider
type Telemetry struct {
	MeterProvider *sdkmetric.MeterProvider
	config        Config
}

// Initialize sets up the OpenTelemetry meter provider. When disabled the
// global no-op provider stays in place.
func Initialize(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		log.Info().Msg("telemetry disabled (set OTEL_ENABLED=true to enable)")
		return &Telemetry{config: cfg}, nil
	}

	log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("initializing telemetry")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, err
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = DefaultConfig().ExportInterval
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	log.Info().Msg("telemetry initialized")

	return &Telemetry{
		MeterProvider: mp,
		config:        cfg,
	}, nil
}

// Shutdown flushes and stops the meter provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.config.Enabled || t.MeterProvider == nil {
		return nil
	}

	log.Info().Msg("shutting down telemetry")
	return errors.Join(
		t.MeterProvider.ForceFlush(ctx),
		t.MeterProvider.Shutdown(ctx),
	)
}
