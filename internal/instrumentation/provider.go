package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the OpenTelemetry meter and tracer providers for the process.
// A disabled Provider hands out a zero Metrics that records nothing.
type Provider struct {
	meters     *metric.MeterProvider
	tracers    *sdktrace.TracerProvider
	metrics    *Metrics
	prometheus bool
}

// NewProvider builds the exporters named in config and installs them as the
// global OpenTelemetry providers, which the Gmail client and the relay use
// to start spans.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if !config.Enabled {
		return &Provider{metrics: &Metrics{}}, nil
	}

	res, err := newResource(ctx, config)
	if err != nil {
		return nil, err
	}

	reader, err := newMetricReader(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}
	p := &Provider{
		meters:     metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)),
		prometheus: config.MetricsExporter == ExporterPrometheus,
	}

	p.tracers, err = newTracerProvider(ctx, config, res)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("failed to initialize tracer provider: %w", err),
			p.meters.Shutdown(ctx),
		)
	}

	otel.SetMeterProvider(p.meters)
	otel.SetTracerProvider(p.tracers)

	p.metrics, err = NewMetrics(p.meters.Meter(config.ServiceName), config.DetailedLabels)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metrics recorder: %w", err), p.Shutdown(ctx))
	}
	return p, nil
}

func newResource(ctx context.Context, config Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if hostname, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.ServiceInstanceID(hostname))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// newMetricReader returns the pull reader for Prometheus or a periodic reader
// around a push exporter.
func newMetricReader(ctx context.Context, config Config) (metric.Reader, error) {
	switch config.MetricsExporter {
	case ExporterPrometheus:
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return exporter, nil

	case ExporterOTLP:
		if config.OTLPEndpoint == "" {
			return nil, fmt.Errorf("OTLP endpoint is required for OTLP metrics exporter; set OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.OTLPEndpoint)}
		if config.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return metric.NewPeriodicReader(exporter), nil

	case ExporterStdout:
		slog.Warn("stdout metrics exporter enabled, use for debugging only", "component", "instrumentation")
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return metric.NewPeriodicReader(exporter), nil
	}
	return nil, fmt.Errorf("unsupported metrics exporter: %q", config.MetricsExporter)
}

func newTracerProvider(ctx context.Context, config Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	if config.TracingExporter == ExporterNone {
		return sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.NeverSample()),
		), nil
	}

	exporter, err := newSpanExporter(ctx, config)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.TraceSamplingRate))),
	), nil
}

func newSpanExporter(ctx context.Context, config Config) (sdktrace.SpanExporter, error) {
	switch config.TracingExporter {
	case ExporterOTLP:
		if config.OTLPEndpoint == "" {
			return nil, fmt.Errorf("OTLP endpoint is required for OTLP tracing exporter")
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPEndpoint)}
		if config.OTLPInsecure {
			slog.Warn("OTLP traces are sent without TLS", "component", "instrumentation", "endpoint", config.OTLPEndpoint)
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, nil

	case ExporterStdout:
		slog.Warn("stdout trace exporter enabled, use for debugging only", "component", "instrumentation")
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exporter, nil
	}
	return nil, fmt.Errorf("unsupported tracing exporter: %q", config.TracingExporter)
}

// Metrics never returns nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Tracer returns a no-op tracer when instrumentation is disabled.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tracers == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tracers.Tracer(name)
}

// PrometheusEnabled reports whether metrics land in the default Prometheus
// registry served by promhttp.
func (p *Provider) PrometheusEnabled() bool {
	return p.prometheus
}

func (p *Provider) Enabled() bool {
	return p.meters != nil
}

// Shutdown flushes pending telemetry. It is a no-op on a disabled Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracers != nil {
		if err := p.tracers.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
