package emitter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"

	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// NewPrometheusExporter creates an OTel metric reader on a dedicated registry
// and the handler that serves it.
func NewPrometheusExporter() (*otelprom.Exporter, http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return exp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}

// Run outcomes reported on ecinventory_runs_total.
const (
	OutcomeOK          = "ok"
	OutcomePartial     = "partial"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// Outcome classifies a finished run.
func Outcome(r *orchestrator.Result) string {
	switch {
	case r.Interrupted:
		return OutcomeInterrupted
	case r.TasksFailed == 0:
		return OutcomeOK
	case r.TasksFailed < r.TasksTotal:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// PrometheusEmitter exposes the latest run as OTel metrics, scraped through
// the Prometheus exporter in daemon mode.
type PrometheusEmitter struct {
	meter metric.Meter
	tags  []string

	resourceInfo         metric.Int64ObservableGauge
	profileResources     metric.Int64ObservableGauge
	profileFailures      metric.Int64ObservableGauge
	lastRun              metric.Float64ObservableGauge
	runDuration          metric.Float64Histogram
	runsTotal            metric.Int64Counter
	resourceChangesTotal metric.Int64Counter

	// State for observable gauges
	mu        sync.RWMutex
	resources []resource.Resource
	profiles  []orchestrator.ProfileSummary
	failures  []failure.Entry
	finished  time.Time

	diffTracker *DiffTracker
}

// NewPrometheusEmitter creates a Prometheus emitter. Tag names in tags become
// tag_<name> labels on ecinventory_resource_info.
func NewPrometheusEmitter(meter metric.Meter, tags []string) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter:       meter,
		tags:        tags,
		diffTracker: NewDiffTracker(),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.resourceInfo, err = e.meter.Int64ObservableGauge(
		"ecinventory_resource_info",
		metric.WithDescription("ElastiCache resource information"),
		metric.WithInt64Callback(e.observeResources),
	)
	if err != nil {
		return fmt.Errorf("create resource_info gauge: %w", err)
	}

	e.profileResources, err = e.meter.Int64ObservableGauge(
		"ecinventory_profile_resources",
		metric.WithDescription("Resources collected per profile in the last run"),
		metric.WithInt64Callback(e.observeProfiles),
	)
	if err != nil {
		return fmt.Errorf("create profile_resources gauge: %w", err)
	}

	e.profileFailures, err = e.meter.Int64ObservableGauge(
		"ecinventory_profile_failures",
		metric.WithDescription("Failed regions per profile and failure kind in the last run"),
		metric.WithInt64Callback(e.observeFailures),
	)
	if err != nil {
		return fmt.Errorf("create profile_failures gauge: %w", err)
	}

	e.lastRun, err = e.meter.Float64ObservableGauge(
		"ecinventory_last_run_timestamp_seconds",
		metric.WithDescription("Unix time the last run finished"),
		metric.WithUnit("s"),
		metric.WithFloat64Callback(e.observeLastRun),
	)
	if err != nil {
		return fmt.Errorf("create last_run gauge: %w", err)
	}

	e.runDuration, err = e.meter.Float64Histogram(
		"ecinventory_run_duration_seconds",
		metric.WithDescription("Wall time of a scan run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create run_duration histogram: %w", err)
	}

	e.runsTotal, err = e.meter.Int64Counter(
		"ecinventory_runs_total",
		metric.WithDescription("Scan runs by outcome"),
	)
	if err != nil {
		return fmt.Errorf("create runs counter: %w", err)
	}

	e.resourceChangesTotal, err = e.meter.Int64Counter(
		"ecinventory_resource_changes_total",
		metric.WithDescription("Resource changes detected between runs"),
	)
	if err != nil {
		return fmt.Errorf("create resource_changes counter: %w", err)
	}

	return nil
}

// Emit records the run as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, result *orchestrator.Result) error {
	outcome := Outcome(result)
	e.runsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	e.runDuration.Record(ctx, result.Duration().Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))

	// A partial table would make every missing resource look removed.
	if result.Interrupted {
		return nil
	}

	failed := failedProfiles(result)
	e.countChanges(ctx, result, failed)
	e.diffTracker.Update(result.Resources, failed...)

	e.mu.Lock()
	e.resources = e.mergeResources(result, failed)
	e.profiles = result.Profiles
	e.failures = result.Failures.Entries
	e.finished = result.FinishedAt
	e.mu.Unlock()

	return nil
}

func (e *PrometheusEmitter) countChanges(ctx context.Context, result *orchestrator.Result, failed []string) {
	add := func(kind resource.DeltaKind, profile string) {
		e.resourceChangesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("profile", profile),
			attribute.String("change_type", string(kind)),
		))
	}

	if result.Delta != nil {
		for _, id := range result.Delta.Added {
			add(resource.DeltaAdded, id.Profile)
		}
		for _, id := range result.Delta.Changed {
			add(resource.DeltaChanged, id.Profile)
		}
		for _, id := range result.Delta.Removed {
			add(resource.DeltaRemoved, id.Profile)
		}
		return
	}

	// First run establishes the baseline.
	for _, c := range e.diffTracker.ComputeDiff(result.Resources, failed...) {
		add(c.Kind, c.Resource.Profile)
	}
}

// mergeResources keeps the previous resources of profiles that failed this
// run so their series do not disappear on a transient failure.
func (e *PrometheusEmitter) mergeResources(result *orchestrator.Result, failed []string) []resource.Resource {
	if len(failed) == 0 {
		return result.Resources
	}
	table := resource.NewTable()
	table.Merge(result.Resources...)
	e.mu.RLock()
	for _, r := range e.resources {
		for _, p := range failed {
			if r.Profile == p {
				if _, ok := table.Get(r.Identity); !ok {
					table.Merge(r)
				}
			}
		}
	}
	e.mu.RUnlock()
	return table.Resources()
}

func (e *PrometheusEmitter) observeResources(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.resources {
		attrs := []attribute.KeyValue{
			attribute.String("profile", r.Profile),
			attribute.String("account_id", r.AccountID),
			attribute.String("region", r.Region),
			attribute.String("type", string(r.Type)),
			attribute.String("id", r.ID),
			attribute.String("engine", r.Attr(resource.AttrEngine)),
			attribute.String("engine_version", r.Attr(resource.AttrEngineVersion)),
			attribute.String("node_types", r.Attr(resource.AttrNodeTypes)),
			attribute.String("status", r.Attr(resource.AttrStatus)),
		}
		for _, k := range e.tags {
			if v, ok := r.Tags[k]; ok {
				attrs = append(attrs, attribute.String("tag_"+labelName(k), v))
			}
		}
		o.Observe(1, metric.WithAttributes(attrs...))
	}
	return nil
}

func (e *PrometheusEmitter) observeProfiles(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range e.profiles {
		o.Observe(int64(p.Resources), metric.WithAttributes(attribute.String("profile", p.Profile)))
	}
	return nil
}

func (e *PrometheusEmitter) observeFailures(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, f := range e.failures {
		o.Observe(int64(len(f.Regions)), metric.WithAttributes(
			attribute.String("profile", f.Profile),
			attribute.String("kind", string(f.Kind)),
		))
	}
	return nil
}

func (e *PrometheusEmitter) observeLastRun(_ context.Context, o metric.Float64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.finished.IsZero() {
		o.Observe(float64(e.finished.UnixNano()) / 1e9)
	}
	return nil
}

// labelName maps a tag key onto the Prometheus label charset.
func labelName(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, k)
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
