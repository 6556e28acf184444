package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/LeoncioXavier/elasticache-inventory/internal/awsclient"
	"github.com/LeoncioXavier/elasticache-inventory/internal/collector"
	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
	"github.com/LeoncioXavier/elasticache-inventory/internal/daemon"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/internal/state"
	"github.com/LeoncioXavier/elasticache-inventory/internal/telemetry"
)

// engine is the wired scan stack for one process.
type engine struct {
	cfg          *config.Config
	telemetry    *telemetry.Provider
	orchestrator *orchestrator.Orchestrator
	store        state.Store
	scan         orchestrator.Config
}

// newEngine wires telemetry, AWS clients, the collector, the orchestrator and
// the state store from cfg. Extra readers feed the metrics HTTP endpoint.
func newEngine(ctx context.Context, cfg *config.Config, readers ...sdkmetric.Reader) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tp := telemetry.Noop()
	if cfg.OTEL.Endpoint != "" || len(readers) > 0 {
		var err error
		tp, err = telemetry.NewProvider(ctx, cfg.OTEL, readers...)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	coll := collector.New(awsclient.NewProvider(),
		collector.WithRetryPolicy(cfg.Scan.Retry),
		collector.WithLimiter(collector.NewLimiter(cfg.Scan.RequestsPerSecond, cfg.Scan.Burst)),
		collector.WithTelemetry(tp),
		collector.WithLogger(log.Logger.With().Str("component", "collector").Logger()),
	)

	e := &engine{
		cfg:       cfg,
		telemetry: tp,
		orchestrator: orchestrator.New(coll,
			orchestrator.WithTelemetry(tp),
			orchestrator.WithLogger(log.Logger.With().Str("component", "orchestrator").Logger()),
		),
		scan: orchestrator.Config{
			Options:          scanOptions(cfg.Scan),
			ParallelProfiles: cfg.Scan.ParallelProfiles,
			Incremental:      cfg.Scan.Incremental,
		},
	}

	if cfg.Scan.Incremental {
		store, err := state.Open(cfg.State.Backend, cfg.StatePath())
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("open state: %w", err)
		}
		e.store = store
		e.scan.Store = store
	}
	return e, nil
}

// run scans once with the configured profiles.
func (e *engine) run(ctx context.Context) (*orchestrator.Result, error) {
	profiles, err := profileSource(e.cfg)()
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	return e.orchestrator.Run(ctx, profiles, e.cfg.AWS.Regions, e.scan)
}

func (e *engine) Close(ctx context.Context) error {
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	errs = append(errs, e.telemetry.Shutdown(ctx))
	return errors.Join(errs...)
}

func scanOptions(s config.ScanConfig) collector.Options {
	return collector.Options{
		IncludeClusters:          s.ClustersEnabled(),
		IncludeReplicationGroups: s.IncludeReplicationGroups,
		NodeInfo:                 s.NodeInfo,
		Tags:                     s.Tags,
		IncludeTags:              s.IncludeTags,
		ExcludeTags:              s.ExcludeTags,
	}
}

// profileSource returns the configured profiles, or every profile in the
// shared config files when none are configured.
func profileSource(cfg *config.Config) daemon.ProfileSource {
	if len(cfg.AWS.Profiles) > 0 {
		return daemon.StaticProfiles(cfg.AWS.Profiles...)
	}
	return awsclient.DiscoverProfiles
}
