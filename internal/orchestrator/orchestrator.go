// Package orchestrator fans scan tasks out over profiles and regions, merges
// their results and maintains the incremental state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/LeoncioXavier/elasticache-inventory/internal/collector"
	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/internal/state"
	"github.com/LeoncioXavier/elasticache-inventory/internal/telemetry"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// DefaultParallelProfiles is the default number of tasks in flight.
const DefaultParallelProfiles = 4

// ErrInvalidConfig is returned when a run is rejected before any task starts.
var ErrInvalidConfig = errors.New("invalid scan configuration")

// Collector runs one scan task.
type Collector interface {
	Collect(ctx context.Context, task collector.Task) collector.TaskResult
}

// Config is the immutable configuration of one run.
type Config struct {
	Options          collector.Options
	ParallelProfiles int
	Incremental      bool
	// Store is required when Incremental is set.
	Store state.Store
}

func (c Config) validate(profiles, regions []string) error {
	switch {
	case len(profiles) == 0:
		return fmt.Errorf("%w: at least one profile required", ErrInvalidConfig)
	case len(regions) == 0:
		return fmt.Errorf("%w: at least one region required", ErrInvalidConfig)
	case !c.Options.IncludeClusters && !c.Options.IncludeReplicationGroups:
		return fmt.Errorf("%w: at least one resource type required", ErrInvalidConfig)
	case c.ParallelProfiles < 1:
		return fmt.Errorf("%w: parallel profiles must be positive (got %d)", ErrInvalidConfig, c.ParallelProfiles)
	case c.Incremental && c.Store == nil:
		return fmt.Errorf("%w: incremental mode requires a state store", ErrInvalidConfig)
	}
	return nil
}

// Orchestrator runs scans.
type Orchestrator struct {
	collector Collector
	telemetry *telemetry.Provider
	logger    zerolog.Logger
	now       func() time.Time
	newRunID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTelemetry sets the telemetry provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(o *Orchestrator) { o.telemetry = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID replaces the run id generator.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New creates an Orchestrator.
func New(c Collector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collector: c,
		telemetry: telemetry.Noop(),
		logger:    log.Logger.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run scans every (profile, region) pair with at most cfg.ParallelProfiles
// tasks in flight.
//
// Configuration errors and an unreadable previous state fail the run before
// any task starts. Otherwise Run always returns a Result; a non-nil error
// alongside it means the new state could not be saved.
func (o *Orchestrator) Run(ctx context.Context, profiles, regions []string, cfg Config) (*Result, error) {
	profiles = dedupe(profiles)
	regions = dedupe(regions)
	if err := cfg.validate(profiles, regions); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     o.newRunID(),
		StartedAt: o.now().UTC(),
	}
	logger := o.logger.With().Str("run_id", res.RunID).Logger()

	ctx, span := o.telemetry.StartSpan(ctx, "scan.run",
		attribute.String("run_id", res.RunID),
		attribute.Int("profiles", len(profiles)),
		attribute.Int("regions", len(regions)),
	)
	defer span.End()

	prev := state.Empty()
	if cfg.Incremental {
		var err error
		prev, err = cfg.Store.Load(ctx)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("load previous state: %w", err)
		}
		logger.Debug().Int("entries", prev.Len()).Msg("loaded previous state")
	}

	tasks := make([]collector.Task, 0, len(profiles)*len(regions))
	for _, p := range profiles {
		for _, r := range regions {
			tasks = append(tasks, collector.Task{Profile: p, Region: r, Options: cfg.Options})
		}
	}
	res.TasksTotal = len(tasks)

	logger.Info().
		Strs("profiles", profiles).
		Strs("regions", regions).
		Int("tasks", len(tasks)).
		Int("parallel", cfg.ParallelProfiles).
		Bool("incremental", cfg.Incremental).
		Msg("scan started")

	m := o.fanOut(ctx, tasks, cfg.ParallelProfiles, profiles)

	res.Interrupted = ctx.Err() != nil
	res.Resources = m.table.Resources()
	res.Profiles = m.summaries(m.table.CountByProfile())
	res.Failures = m.agg.Summary()
	res.TasksFailed = m.failed
	res.TasksSkipped = res.TasksTotal - m.completed - m.failed
	res.Warnings = m.warnings

	var saveErr error
	if cfg.Incremental {
		// An interrupted run has no Delta: skipped tasks would read as removals.
		if !res.Interrupted {
			delta := state.Diff(prev, res.Resources)
			res.Delta = &delta
		}

		switch {
		case res.Interrupted:
			logger.Warn().Msg("scan interrupted, previous state kept")
		case m.completed == 0:
			logger.Warn().Msg("no task succeeded, previous state kept")
		default:
			snap := state.Snapshot(res.Resources, res.RunID, o.now())
			if err := cfg.Store.Save(ctx, snap); err != nil {
				saveErr = fmt.Errorf("save state: %w", err)
				span.SetStatus(codes.Error, saveErr.Error())
				logger.Error().Err(err).Msg("failed to save state")
			} else {
				res.StatePersisted = true
			}
		}
	}

	res.FinishedAt = o.now().UTC()

	event := logger.Info()
	if res.TasksFailed > 0 || res.Interrupted {
		event = logger.Warn()
	}
	event.
		Int("resources", len(res.Resources)).
		Int("tasks_failed", res.TasksFailed).
		Int("tasks_skipped", res.TasksSkipped).
		Bool("interrupted", res.Interrupted).
		Bool("state_persisted", res.StatePersisted).
		Dur("duration", res.Duration()).
		Msg("scan finished")

	return res, saveErr
}

// outcome is one finished task as seen by the merger.
type outcome struct {
	result    collector.TaskResult
	abandoned bool
}

// fanOut runs tasks on a bounded pool and merges their results on a single
// goroutine. Tasks not yet started when ctx is done are skipped.
func (o *Orchestrator) fanOut(ctx context.Context, tasks []collector.Task, limit int, profiles []string) *merger {
	m := newMerger(profiles)
	results := make(chan outcome)
	merged := make(chan struct{})

	go func() {
		defer close(merged)
		for out := range results {
			m.add(out)
		}
	}()

	var g errgroup.Group
	g.SetLimit(limit)
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results <- o.runTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-merged

	return m
}

func (o *Orchestrator) runTask(ctx context.Context, task collector.Task) outcome {
	ctx, span := o.telemetry.StartSpan(ctx, "scan.task",
		attribute.String("profile", task.Profile),
		attribute.String("region", task.Region),
	)
	defer span.End()

	logger := o.logger.With().Ctx(ctx).Str("profile", task.Profile).Str("region", task.Region).Logger()
	logger.Debug().Msg("task started")

	res := o.collector.Collect(ctx, task)
	o.telemetry.RecordTaskDuration(ctx, task.Profile, task.Region, res.Duration)

	if res.OK() {
		o.telemetry.RecordResourceCount(ctx, task.Profile, task.Region, len(res.Resources))
		logger.Info().
			Int("resources", len(res.Resources)).
			Int("attempts", res.Attempts).
			Dur("duration", res.Duration).
			Msg("task completed")
		return outcome{result: res}
	}

	if ctx.Err() != nil {
		logger.Debug().Str("error", res.Failure.Message).Msg("task abandoned")
		return outcome{result: res, abandoned: true}
	}

	span.SetStatus(codes.Error, res.Failure.Message)
	o.telemetry.RecordFailure(ctx, task.Profile, task.Region, string(res.Failure.Kind))
	logger.Warn().
		Str("kind", string(res.Failure.Kind)).
		Str("code", res.Failure.Code).
		Int("attempts", res.Attempts).
		Str("error", res.Failure.Message).
		Msg("task failed")
	return outcome{result: res}
}

// dedupe trims, drops empty values and removes duplicates, keeping the
// first occurrence.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// merger owns the run's shared state. Only the merge goroutine calls add.
type merger struct {
	table     *resource.Table
	agg       *failure.Aggregator
	order     []string
	ok        map[string][]string
	failedBy  map[string][]string
	warnings  []string
	completed int
	failed    int
}

func newMerger(profiles []string) *merger {
	return &merger{
		table:    resource.NewTable(),
		agg:      failure.NewAggregator(),
		order:    profiles,
		ok:       make(map[string][]string),
		failedBy: make(map[string][]string),
	}
}

func (m *merger) add(out outcome) {
	r := out.result
	if out.abandoned {
		return
	}
	if !r.OK() {
		m.failed++
		m.agg.Add(*r.Failure)
		m.failedBy[r.Task.Profile] = append(m.failedBy[r.Task.Profile], r.Task.Region)
		return
	}
	m.completed++
	m.table.Merge(r.Resources...)
	m.ok[r.Task.Profile] = append(m.ok[r.Task.Profile], r.Task.Region)
	for _, w := range r.Warnings {
		m.warnings = append(m.warnings, r.Task.String()+": "+w)
	}
}
