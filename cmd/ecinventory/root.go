package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
	"github.com/LeoncioXavier/elasticache-inventory/internal/logging"
)

var (
	version = "0.1.0"

	configPath string
	logLevel   string
	logFormat  string
	outputDir  string

	rootCmd = &cobra.Command{
		Use:   "ecinventory",
		Short: "ElastiCache inventory across AWS profiles and regions",
		Long: `ecinventory - ElastiCache inventory scanner

Scans ElastiCache clusters and replication groups across every AWS profile
and region, reports per-profile failures with actionable guidance and, in
incremental mode, what was added, changed or removed since the last run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`ecinventory {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: console, json")
	flags.StringVarP(&outputDir, "output-dir", "o", "", "Directory for reports, state and the error log")
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	return cfg, nil
}

// setupLogging installs the global logger. With errorLog set, warnings and
// errors also go to the rotating error log in the output directory.
func setupLogging(cfg *config.Config, errorLog bool) (io.Closer, error) {
	opts := logging.Options{Config: cfg.Log, Out: os.Stderr}
	if errorLog {
		opts.ErrorLogPath = cfg.OutputPath(logging.ErrorLogName)
	}
	_, closer, err := logging.Setup(opts)
	return closer, err
}
