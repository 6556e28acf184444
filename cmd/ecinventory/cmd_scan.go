package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/LeoncioXavier/elasticache-inventory/internal/emitter"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
)

var (
	scanOpts scanFlags
	scanJSON bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan ElastiCache resources once",
	Long: `Scan ElastiCache clusters and replication groups in every profile and region.

Writes elasticache_report.csv to the output directory, scan_failures.json
when a profile failed, and scan_errors.log with every warning. Profiles
with an expired SSO session are reported with the login command to run.`,
	Example: `  ecinventory scan --regions us-east-1,eu-west-1
  ecinventory scan -r us-east-1 --profiles prod,staging --tags Team,Service
  ecinventory scan -r us-east-1 --include-replication-groups --node-info
  ecinventory scan -r us-east-1 --incremental --state-backend bolt
  ecinventory scan -c ecinventory.yaml --json > result.json`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanOpts.register(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the result as JSON and write scan_result.json")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	scanOpts.apply(cmd, cfg)

	closer, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	result, runErr := eng.run(ctx)
	if result == nil {
		return runErr
	}

	var fileOpts []emitter.FileOption
	if scanJSON {
		fileOpts = append(fileOpts, emitter.WithResultJSON())
	}
	emit := emitter.NewMultiEmitter(
		emitter.NewLogEmitter(),
		emitter.NewFileEmitter(cfg.Output.Dir, cfg.Scan.Tags, fileOpts...),
	)
	defer func() { _ = emit.Close() }()

	// Reports of an interrupted run are still written.
	emitErr := emit.Emit(context.WithoutCancel(ctx), result)

	out := cmd.OutOrStdout()
	if scanJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		renderSummary(out, result)
	}

	return scanError(result, errors.Join(runErr, emitErr))
}

// scanError decides the exit status: partial failures are reported, not
// fatal; a run where nothing succeeded is.
func scanError(r *orchestrator.Result, err error) error {
	switch {
	case err != nil:
		return err
	case r.Interrupted:
		return errors.New("scan interrupted")
	case r.TasksTotal > 0 && r.TasksFailed == r.TasksTotal:
		return fmt.Errorf("all %d scan tasks failed", r.TasksTotal)
	}
	return nil
}
