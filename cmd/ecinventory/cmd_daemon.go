package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/LeoncioXavier/elasticache-inventory/internal/daemon"
	"github.com/LeoncioXavier/elasticache-inventory/internal/emitter"
)

var (
	daemonOpts        scanFlags
	daemonInterval    time.Duration
	daemonMetricsAddr string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Scan on an interval and serve Prometheus metrics",
	Long: `Run ecinventory continuously.

The daemon scans immediately and then on every interval, logs changes,
rewrites the reports in the output directory and exposes the inventory as
Prometheus metrics.

Endpoints:
- /metrics  Prometheus metrics (resource info, failures, changes)
- /healthz  JSON health of the last run

Shuts down gracefully on SIGTERM/SIGINT.`,
	Example: `  ecinventory daemon -r us-east-1,eu-west-1
  ecinventory daemon -r us-east-1 --interval 15m --metrics-addr :2112
  ecinventory daemon -c ecinventory.yaml --incremental`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonOpts.register(daemonCmd)
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Scan interval (default 1h)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Metrics and health listen address (default :9090)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	daemonOpts.apply(cmd, cfg)
	if cmd.Flags().Changed("interval") {
		cfg.Daemon.Interval = daemonInterval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}

	closer, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx := cmd.Context()

	exporter, metricsHandler, err := emitter.NewPrometheusExporter()
	if err != nil {
		return err
	}
	eng, err := newEngine(ctx, cfg, exporter)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	prom, err := emitter.NewPrometheusEmitter(eng.telemetry.Meter(), cfg.Scan.Tags)
	if err != nil {
		return err
	}
	emit := emitter.NewMultiEmitter(
		emitter.NewLogEmitter(),
		prom,
		emitter.NewFileEmitter(cfg.Output.Dir, cfg.Scan.Tags),
	)
	defer func() { _ = emit.Close() }()

	metrics, err := daemon.NewMetrics(eng.telemetry.Meter())
	if err != nil {
		return fmt.Errorf("init daemon metrics: %w", err)
	}
	d, err := daemon.New(eng.orchestrator, emit, daemon.Config{
		Interval: cfg.Daemon.Interval,
		Profiles: profileSource(cfg),
		Regions:  cfg.AWS.Regions,
		Scan:     eng.scan,
	}, daemon.WithMetrics(metrics))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/healthz", d.HealthHandler())
	srv := &http.Server{
		Addr:              cfg.Daemon.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			log.Info().Str("addr", srv.Addr).Msg("serving metrics and health")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}
