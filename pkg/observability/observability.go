// Package observability provides OpenTelemetry-based tracing and RED metrics
// for the lease broker. Adapted from the teacher's general-purpose provider,
// scaled down to the instruments this engine actually emits. Disabled by
// default so the broker has no network dependency unless explicitly turned on.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"
	Enabled      bool
	Insecure     bool
}

// DefaultConfig returns the disabled-by-default configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "resource-broker",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
		Insecure:     true,
	}
}

// Provider holds the tracer, meter, and the RED instruments the API router
// and expirer record against.
type Provider struct {
	config *Config
	logger *slog.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	registrationsTotal metric.Int64Counter
	releasesTotal      metric.Int64Counter
	leasesActive       metric.Int64UpDownCounter
	sweepsTotal        metric.Int64Counter
	revocationsTotal   metric.Int64Counter
}

// New creates a Provider. When cfg.Enabled is false, the returned Provider's
// methods are safe no-ops — it never dials the OTLP endpoint.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}

	if !cfg.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		p.tracer = otel.Tracer("resource-broker/noop")
		p.meter = otel.Meter("resource-broker/noop")
		return p, p.buildInstruments()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String("service.name", cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("resource-broker")

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("resource-broker")

	return p, p.buildInstruments()
}

func (p *Provider) buildInstruments() error {
	var err error
	if p.registrationsTotal, err = p.meter.Int64Counter("registrations_total"); err != nil {
		return fmt.Errorf("build registrations_total: %w", err)
	}
	if p.releasesTotal, err = p.meter.Int64Counter("releases_total"); err != nil {
		return fmt.Errorf("build releases_total: %w", err)
	}
	if p.leasesActive, err = p.meter.Int64UpDownCounter("leases_active"); err != nil {
		return fmt.Errorf("build leases_active: %w", err)
	}
	if p.sweepsTotal, err = p.meter.Int64Counter("sweeps_total"); err != nil {
		return fmt.Errorf("build sweeps_total: %w", err)
	}
	if p.revocationsTotal, err = p.meter.Int64Counter("revocations_total"); err != nil {
		return fmt.Errorf("build revocations_total: %w", err)
	}
	return nil
}

// StartSpan starts a span named op over ctx; callers must End() it.
func (p *Provider) StartSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, op)
}

// RecordRegistration increments the registration counter and, on success,
// the active-leases gauge.
func (p *Provider) RecordRegistration(ctx context.Context, success bool) {
	p.registrationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		p.leasesActive.Add(ctx, 1)
	}
}

// RecordRelease increments the release counter and, on success, decrements
// the active-leases gauge.
func (p *Provider) RecordRelease(ctx context.Context, success bool) {
	p.releasesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		p.leasesActive.Add(ctx, -1)
	}
}

// RecordSweep implements expirer.Metrics: one sweeps_total increment per
// tick, plus revocationsTotal and the active-leases gauge for every revoked
// lease.
func (p *Provider) RecordSweep(ctx context.Context, revoked int) {
	p.sweepsTotal.Add(ctx, 1)
	if revoked > 0 {
		p.revocationsTotal.Add(ctx, int64(revoked))
		p.leasesActive.Add(ctx, -int64(revoked))
	}
}

// Shutdown flushes and stops the tracer/meter providers, if any are running.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter provider: %w", err)
		}
	}
	return nil
}
