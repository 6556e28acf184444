package daemon

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/LeoncioXavier/elasticache-inventory/internal/emitter"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// Metrics holds daemon metrics using OTEL semantic conventions
type Metrics struct {
	runs                metric.Int64Counter
	runDuration         metric.Float64Histogram
	resourcesDiscovered metric.Int64Gauge
	changeEvents        metric.Int64Counter
	stateOperations     metric.Int64Counter
}

// NewMetrics creates daemon metrics on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runs, err := meter.Int64Counter(
		"ecinventory.daemon.runs",
		metric.WithDescription("Number of scan runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"ecinventory.daemon.run.duration",
		metric.WithDescription("Duration of scan runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	resourcesDiscovered, err := meter.Int64Gauge(
		"ecinventory.resources.discovered",
		metric.WithDescription("Number of ElastiCache resources discovered"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	changeEvents, err := meter.Int64Counter(
		"ecinventory.change_events",
		metric.WithDescription("Number of resource change events detected"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	stateOperations, err := meter.Int64Counter(
		"ecinventory.state.operations",
		metric.WithDescription("Number of state store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runs:                runs,
		runDuration:         runDuration,
		resourcesDiscovered: resourcesDiscovered,
		changeEvents:        changeEvents,
		stateOperations:     stateOperations,
	}, nil
}

// RecordRun records one finished run. saveErr is the error returned with
// the result, if any.
func (m *Metrics) RecordRun(ctx context.Context, result *orchestrator.Result, incremental bool, saveErr error) {
	status := emitter.Outcome(result)
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.runDuration.Record(ctx, result.Duration().Seconds(),
		metric.WithAttributes(attribute.String("status", status)))

	type key struct {
		typ    resource.Type
		region string
	}
	counts := make(map[key]int64)
	for _, r := range result.Resources {
		counts[key{r.Type, r.Region}]++
	}
	for k, n := range counts {
		m.resourcesDiscovered.Record(ctx, n, metric.WithAttributes(
			attribute.String("resource.type", string(k.typ)),
			attribute.String("cloud.provider", "aws"),
			attribute.String("cloud.region", k.region),
		))
	}

	if result.Delta != nil && !result.Interrupted {
		m.recordChanges(ctx, resource.DeltaAdded, result.Delta.Added)
		m.recordChanges(ctx, resource.DeltaChanged, result.Delta.Changed)
		m.recordChanges(ctx, resource.DeltaRemoved, result.Delta.Removed)
	}

	if incremental {
		switch {
		case saveErr != nil:
			m.recordStateOperation(ctx, "save", "error")
		case result.StatePersisted:
			m.recordStateOperation(ctx, "save", "success")
		default:
			m.recordStateOperation(ctx, "save", "skipped")
		}
	}
}

// RecordRunError records a run that produced no result.
func (m *Metrics) RecordRunError(ctx context.Context) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
}

func (m *Metrics) recordChanges(ctx context.Context, kind resource.DeltaKind, ids []resource.Identity) {
	for _, id := range ids {
		m.changeEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("change.type", string(kind)),
			attribute.String("resource.type", string(id.Type)),
			attribute.String("cloud.region", id.Region),
		))
	}
}

func (m *Metrics) recordStateOperation(ctx context.Context, operation, status string) {
	m.stateOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
