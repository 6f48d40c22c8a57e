// Package telemetry sets up OpenTelemetry export for the monitor and owns
// its instruments.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

// DefaultExportInterval is how often metrics are pushed to the collector.
const DefaultExportInterval = 15 * time.Second

// Config holds configuration for telemetry setup.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Enabled        bool

	// ExportInterval between metric pushes. Default: DefaultExportInterval.
	ExportInterval time.Duration

	// Sources are the monitored sources, attached to the resource so every
	// series can be traced back to the deployment that probed it.
	Sources []monitor.SourceID

	// MetricReader and SpanExporter replace the OTLP exporters when set.
	MetricReader sdkmetric.Reader
	SpanExporter sdktrace.SpanExporter
}

// Provider holds the initialized providers and the monitor instruments built
// on them.
type Provider struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	// Meter is the service meter, shared with the HTTP middleware.
	Meter metric.Meter

	// Instruments record probe, poll, sample log and alert activity.
	Instruments *Instruments
}

// Shutdown flushes and stops both providers. Both are shut down even if the
// first fails.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Init initializes OpenTelemetry and the monitor instruments. When disabled
// the instruments record into the global no-op meter. The returned Provider
// must be shut down when the application exits.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		meter := otel.Meter(cfg.ServiceName)
		instruments, err := NewInstruments(meter)
		if err != nil {
			return nil, err
		}
		return &Provider{Meter: meter, Instruments: instruments}, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tracerProvider, err := initTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("init tracer provider: %w", err)
	}

	meterProvider, err := initMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx) //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("init meter provider: %w", err)
	}

	p := &Provider{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Meter:          meterProvider.Meter(cfg.ServiceName),
	}
	p.Instruments, err = NewInstruments(p.Meter)
	if err != nil {
		_ = p.Shutdown(ctx) //nolint:errcheck // best effort cleanup
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	sources := make([]string, len(cfg.Sources))
	for i, s := range cfg.Sources {
		sources[i] = string(s)
	}
	return resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.StringSlice("leaguepulse.sources", sources),
		),
	)
}

func initTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter := cfg.SpanExporter
	if exporter == nil {
		var err error
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func initMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader := cfg.MetricReader
	if reader == nil {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = DefaultExportInterval
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}
