// Package telemetry provides OpenTelemetry instrumentation for ecinventory.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
)

const instrumentationName = "ecinventory"

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	taskDuration  metric.Float64Histogram
	resourceCount metric.Int64Counter
	taskFailures  metric.Int64Counter
	retries       metric.Int64Counter
}

// NewProvider creates a new telemetry provider. Extra metric readers (the
// Prometheus exporter in daemon mode) are registered alongside OTLP.
func NewProvider(ctx context.Context, cfg config.OTELConfig, readers ...sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, readers); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	// noop instruments never fail
	_ = p.initMetrics()
	return p
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate)
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)
	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)
	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.taskDuration, err = p.meter.Float64Histogram(
		"ecinventory_task_duration_seconds",
		metric.WithDescription("Duration of profile/region scan tasks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create task_duration: %w", err)
	}

	p.resourceCount, err = p.meter.Int64Counter(
		"ecinventory_resources_collected_total",
		metric.WithDescription("Total cache resources collected"),
	)
	if err != nil {
		return fmt.Errorf("create resource_count: %w", err)
	}

	p.taskFailures, err = p.meter.Int64Counter(
		"ecinventory_task_failures_total",
		metric.WithDescription("Total failed scan tasks by failure kind"),
	)
	if err != nil {
		return fmt.Errorf("create task_failures: %w", err)
	}

	p.retries, err = p.meter.Int64Counter(
		"ecinventory_retries_total",
		metric.WithDescription("Total retried API calls by failure kind"),
	)
	if err != nil {
		return fmt.Errorf("create retries: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func taskAttrs(profile, region string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("region", region),
	)
}

// RecordTaskDuration records how long a profile/region task took.
func (p *Provider) RecordTaskDuration(ctx context.Context, profile, region string, d time.Duration) {
	p.taskDuration.Record(ctx, d.Seconds(), taskAttrs(profile, region))
}

// RecordResourceCount records the number of resources a task collected.
func (p *Provider) RecordResourceCount(ctx context.Context, profile, region string, count int) {
	p.resourceCount.Add(ctx, int64(count), taskAttrs(profile, region))
}

// RecordFailure records a failed task.
func (p *Provider) RecordFailure(ctx context.Context, profile, region, kind string) {
	p.taskFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("region", region),
		attribute.String("kind", kind),
	))
}

// RecordRetry records a retried API call.
func (p *Provider) RecordRetry(ctx context.Context, profile, region, kind string) {
	p.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("region", region),
		attribute.String("kind", kind),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
