// Package telemetry installs OpenTelemetry providers that export over OTLP
// gRPC. With no endpoint configured the global no-op providers stay in
// place and Shutdown does nothing.
package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultInterval = 15 * time.Second

type Config struct {
	// Endpoint is host:port of an OTLP gRPC collector.
	Endpoint    string
	Insecure    bool
	Interval    time.Duration
	ServiceName string
}

// Providers owns the installed providers.
type Providers struct {
	Meter  *sdkmetric.MeterProvider
	Tracer *sdktrace.TracerProvider
}

// Enabled reports whether exporters were installed.
func (p *Providers) Enabled() bool { return p != nil && p.Meter != nil }

// Setup builds exporters for cfg and installs them as the otel globals.
func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return &Providers{}, nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "alerticorn"
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	mopts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	topts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		mopts = append(mopts, otlpmetricgrpc.WithInsecure())
		topts = append(topts, otlptracegrpc.WithInsecure())
	}

	mexp, err := otlpmetricgrpc.New(ctx, mopts...)
	if err != nil {
		return nil, err
	}
	texp, err := otlptracegrpc.New(ctx, topts...)
	if err != nil {
		_ = mexp.Shutdown(ctx)
		return nil, err
	}

	p := &Providers{
		Meter: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(cfg.Interval))),
		),
		Tracer: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(texp),
		),
	}
	otel.SetMeterProvider(p.Meter)
	otel.SetTracerProvider(p.Tracer)
	return p, nil
}

// Shutdown flushes and stops the providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}
