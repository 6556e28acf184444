// Package daemon runs the scan on an interval.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeoncioXavier/elasticache-inventory/internal/emitter"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
)

// Runner runs one scan.
type Runner interface {
	Run(ctx context.Context, profiles, regions []string, cfg orchestrator.Config) (*orchestrator.Result, error)
}

// ProfileSource returns the profiles to scan. It is called before every run
// so newly configured profiles are picked up.
type ProfileSource func() ([]string, error)

// StaticProfiles returns a fixed profile list.
func StaticProfiles(profiles ...string) ProfileSource {
	return func() ([]string, error) { return profiles, nil }
}

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Profiles ProfileSource
	Regions  []string
	Scan     orchestrator.Config
}

// Daemon runs scans on an interval and hands every result to an emitter.
type Daemon struct {
	runner    Runner
	emitter   emitter.Emitter
	metrics   *Metrics
	logger    zerolog.Logger
	cfg       Config
	startTime time.Time

	runCount atomic.Int64
	mu       sync.RWMutex
	last     *orchestrator.Result
	lastErr  error
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithMetrics records daemon metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// New creates a daemon.
func New(runner Runner, emit emitter.Emitter, cfg Config, opts ...Option) (*Daemon, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("daemon interval must be positive (got %s)", cfg.Interval)
	}
	if cfg.Profiles == nil {
		return nil, errors.New("daemon requires a profile source")
	}
	d := &Daemon{
		runner:    runner,
		emitter:   emit,
		cfg:       cfg,
		startTime: time.Now(),
		logger:    log.Logger.With().Str("component", "daemon").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start runs a scan immediately and then on every tick until ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.cfg.Interval).Msg("daemon started")

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("scan run failed")
		}
		select {
		case <-ctx.Done():
			d.logger.Info().Int64("runs", d.runCount.Load()).Msg("daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs one scan and emits its result. The result is returned even
// when emitting or saving state failed.
func (d *Daemon) RunOnce(ctx context.Context) (*orchestrator.Result, error) {
	d.runCount.Add(1)

	profiles, err := d.cfg.Profiles()
	if err != nil {
		err = fmt.Errorf("discover profiles: %w", err)
		d.record(nil, err)
		return nil, err
	}

	result, runErr := d.runner.Run(ctx, profiles, d.cfg.Regions, d.cfg.Scan)
	if result == nil {
		d.record(nil, runErr)
		return nil, runErr
	}

	var emitErr error
	if d.emitter != nil {
		if emitErr = d.emitter.Emit(ctx, result); emitErr != nil {
			emitErr = fmt.Errorf("emit result: %w", emitErr)
		}
	}

	err = errors.Join(runErr, emitErr)
	d.record(result, err)
	if d.metrics != nil {
		d.metrics.RecordRun(ctx, result, d.cfg.Scan.Incremental, runErr)
	}
	return result, err
}

func (d *Daemon) record(result *orchestrator.Result, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if result != nil {
		d.last = result
	}
	d.lastErr = err
	if result == nil && err != nil && d.metrics != nil {
		d.metrics.RecordRunError(context.Background())
	}
}

// LastResult returns the result of the most recent completed run.
func (d *Daemon) LastResult() *orchestrator.Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Runs:   d.runCount.Load(),
	}
	if d.last != nil {
		h.LastRunID = d.last.RunID
		h.LastRunAt = d.last.FinishedAt
		h.LastOutcome = emitter.Outcome(d.last)
		h.FailedProfiles = d.last.Failures.Profiles()
	}
	if d.lastErr != nil {
		h.Status = "degraded"
		h.LastError = d.lastErr.Error()
	}
	return h
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status      string    `json:"status"`
	Uptime      int64     `json:"uptime_seconds"`
	Runs        int64     `json:"runs"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitzero"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`

	FailedProfiles []string `json:"failed_profiles,omitempty"`
}

// RunCount returns total runs started
func (d *Daemon) RunCount() int64 {
	return d.runCount.Load()
}

// HealthHandler serves Health as JSON.
func (d *Daemon) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Health())
	})
}
