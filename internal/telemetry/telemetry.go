// Package telemetry configures OpenTelemetry tracing and metrics export
// for the gateway (SPEC_FULL.md ambient stack). Grounded on the
// teacher's common/telemetry package: a ProviderBundle built once at
// startup from OTEL_* environment variables, exporting via OTLP/HTTP,
// with graceful shutdown on process exit.
package telemetry

import (
	"context"
	stdErrors "errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/config"
	"github.com/Alpaca-Network/gatewayz-backend-sub004/internal/logging"
)

// ProviderBundle holds the tracer and meter providers so they can be shut
// down gracefully at process exit.
type ProviderBundle struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// Init configures global OpenTelemetry providers when cfg.Enabled. It
// returns nil without error when telemetry is disabled, so callers can
// unconditionally defer bundle.Shutdown(ctx).
func Init(ctx context.Context, cfg config.TelemetryConfig, env config.Environment) (*ProviderBundle, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when OTEL_ENABLED is true")
	}

	res, err := buildResource(ctx, cfg, env)
	if err != nil {
		return nil, errors.Wrap(err, "build OpenTelemetry resource")
	}

	traceExporter, err := otlptracehttp.New(ctx, buildTraceExporterOptions(cfg)...)
	if err != nil {
		return nil, errors.Wrap(err, "create OTLP trace exporter")
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx, buildMetricExporterOptions(cfg)...)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, errors.Wrap(err, "create OTLP metric exporter")
	}

	reader := sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logging.Logger.Info("OpenTelemetry initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("insecure", cfg.Insecure),
		zap.String("service", cfg.ServiceName),
	)

	return &ProviderBundle{tracerProvider: tracerProvider, meterProvider: meterProvider}, nil
}

// Shutdown drains telemetry providers, ensuring exporters flush pending
// data. Safe to call on a nil bundle (telemetry disabled).
func (p *ProviderBundle) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "shutdown meter provider"))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "shutdown tracer provider"))
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(stdErrors.Join(errs...), "shutdown OpenTelemetry providers")
	}
	return nil
}

func buildResource(ctx context.Context, cfg config.TelemetryConfig, env config.Environment) (*sdkresource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", string(env)))
	}

	return sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithTelemetrySDK(),
		sdkresource.WithProcess(),
		sdkresource.WithAttributes(attrs...),
	)
}

func buildTraceExporterOptions(cfg config.TelemetryConfig) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func buildMetricExporterOptions(cfg config.TelemetryConfig) []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}
