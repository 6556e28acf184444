package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("ecinventory.daemon"))
	require.NoError(t, err)
	return m, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumBy(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_SemanticConventions(t *testing.T) {
	m, reader := newTestMetrics(t)

	id := func(name string) resource.Identity {
		return resource.Identity{Profile: "prod", Region: "us-east-1", Type: resource.TypeCluster, ID: name}
	}
	result := okResult("run-1")
	result.Resources = []resource.Resource{
		resource.New(id("c1"), "123456789012", "", nil, nil, result.StartedAt),
		resource.New(id("c2"), "123456789012", "", nil, nil, result.StartedAt),
	}
	result.Delta = &resource.Delta{Added: []resource.Identity{id("c2")}, Changed: []resource.Identity{id("c1")}}
	result.StatePersisted = true

	m.RecordRun(context.Background(), result, true, nil)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"ok": 1}, sumBy(t, metrics["ecinventory.daemon.runs"], "status"))
	assert.Equal(t, map[string]int64{"added": 1, "changed": 1}, sumBy(t, metrics["ecinventory.change_events"], "change.type"))
	assert.Equal(t, map[string]int64{"success": 1}, sumBy(t, metrics["ecinventory.state.operations"], "status"))

	gauge, ok := metrics["ecinventory.resources.discovered"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)

	_, ok = metrics["ecinventory.daemon.run.duration"]
	assert.True(t, ok)
}

func TestMetrics_InterruptedRunRecordsNoChanges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	id := resource.Identity{Profile: "prod", Region: "us-east-1", Type: resource.TypeCluster, ID: "c1"}
	interrupted := okResult("a")
	interrupted.Interrupted = true
	interrupted.Delta = &resource.Delta{Removed: []resource.Identity{id}}
	m.RecordRun(ctx, interrupted, true, nil)

	completed := okResult("b")
	completed.Delta = &resource.Delta{Added: []resource.Identity{id}}
	m.RecordRun(ctx, completed, true, nil)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"added": 1}, sumBy(t, metrics["ecinventory.change_events"], "change.type"))
}

func TestMetrics_StateOutcomes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRun(ctx, okResult("a"), true, errors.New("disk full"))
	m.RecordRun(ctx, okResult("b"), true, nil)
	m.RecordRun(ctx, okResult("c"), false, nil)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"error": 1, "skipped": 1},
		sumBy(t, metrics["ecinventory.state.operations"], "status"))
}

func TestDaemon_RecordsMetrics(t *testing.T) {
	m, reader := newTestMetrics(t)
	calls := 0
	runner := &mockRunner{RunFunc: func(context.Context, []string, []string, orchestrator.Config) (*orchestrator.Result, error) {
		calls++
		if calls == 2 {
			return nil, orchestrator.ErrInvalidConfig
		}
		return okResult("run"), nil
	}}
	d, err := New(runner, nil, testConfig(), WithMetrics(m), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = d.RunOnce(context.Background())
	require.NoError(t, err)
	_, err = d.RunOnce(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrInvalidConfig)

	metrics := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"ok": 1, "error": 1}, sumBy(t, metrics["ecinventory.daemon.runs"], "status"))
}
