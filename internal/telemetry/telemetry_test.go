package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
)

func disabledConfig() config.OTELConfig {
	return config.OTELConfig{
		ServiceName: "test-ecinventory",
		Traces:      config.TracesConfig{Enabled: false},
		Metrics:     config.MetricsConfig{Enabled: false},
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_WithEndpoint(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "test-ecinventory",
		Traces:      config.TracesConfig{Enabled: true, SampleRate: 1.0},
		Metrics:     config.MetricsConfig{Enabled: true},
	}

	// Provider setup should succeed even without a real collector
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestProvider_StartSpan(t *testing.T) {
	p, err := NewProvider(context.Background(), disabledConfig())
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "scan.task")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()

	_ = p.Shutdown(context.Background())
}

func TestProvider_RecordsThroughExtraReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewProvider(context.Background(), disabledConfig(), reader)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()
	p.RecordTaskDuration(ctx, "prod", "us-east-1", 150*time.Millisecond)
	p.RecordResourceCount(ctx, "prod", "us-east-1", 3)
	p.RecordFailure(ctx, "stale", "us-east-1", "credential_expired")
	p.RecordRetry(ctx, "prod", "us-east-1", "throttled")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["ecinventory_task_duration_seconds"])
	assert.True(t, names["ecinventory_resources_collected_total"])
	assert.True(t, names["ecinventory_task_failures_total"])
	assert.True(t, names["ecinventory_retries_total"])
}

func TestNoop(t *testing.T) {
	p := Noop()
	ctx := context.Background()

	// Should not panic
	_, span := p.StartSpan(ctx, "noop")
	span.End()
	p.RecordTaskDuration(ctx, "prod", "us-east-1", time.Second)
	p.RecordResourceCount(ctx, "prod", "us-east-1", 1)
	p.RecordFailure(ctx, "prod", "us-east-1", "unknown")
	p.RecordRetry(ctx, "prod", "us-east-1", "throttled")

	require.NoError(t, p.Shutdown(ctx))
}
