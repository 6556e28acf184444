// Package config handles YAML configuration for ecinventory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeoncioXavier/elasticache-inventory/internal/retry"
)

// Config is the root configuration structure.
type Config struct {
	AWS    AWSConfig    `yaml:"aws"`
	Scan   ScanConfig   `yaml:"scan"`
	State  StateConfig  `yaml:"state"`
	Output OutputConfig `yaml:"output"`
	Log    LogConfig    `yaml:"log"`
	OTEL   OTELConfig   `yaml:"otel"`
	Daemon DaemonConfig `yaml:"daemon"`
}

// AWSConfig holds AWS settings. An empty profile list means every profile
// found in the shared config files.
type AWSConfig struct {
	Regions  []string `yaml:"regions"`
	Profiles []string `yaml:"profiles"`
}

// ScanConfig holds scan settings.
type ScanConfig struct {
	Tags                     []string          `yaml:"tags"`
	IncludeClusters          *bool             `yaml:"include_clusters"`
	IncludeReplicationGroups bool              `yaml:"include_replication_groups"`
	NodeInfo                 bool              `yaml:"node_info"`
	ParallelProfiles         int               `yaml:"parallel_profiles"`
	Incremental              bool              `yaml:"incremental"`
	RequestsPerSecond        float64           `yaml:"requests_per_second"`
	Burst                    int               `yaml:"burst"`
	IncludeTags              map[string]string `yaml:"include_tags"`
	ExcludeTags              map[string]string `yaml:"exclude_tags"`
	Retry                    retry.Policy      `yaml:"retry"`
}

// ClustersEnabled reports whether cache clusters are scanned.
func (s ScanConfig) ClustersEnabled() bool {
	return s.IncludeClusters == nil || *s.IncludeClusters
}

// StateConfig holds incremental state settings.
type StateConfig struct {
	Backend string `yaml:"backend"`
	File    string `yaml:"file"`
}

// OutputConfig holds output settings.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	ServiceName string        `yaml:"service_name"`
	Traces      TracesConfig  `yaml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DaemonConfig holds periodic scan settings.
type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// State backends.
const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := newConfig()
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML config file. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// newConfig seeds the retry policy before decoding, so an explicit zero
// (jitter: 0) survives.
func newConfig() *Config {
	return &Config{Scan: ScanConfig{Retry: retry.DefaultPolicy()}}
}

func applyDefaults(cfg *Config) {
	if len(cfg.Scan.Tags) == 0 {
		cfg.Scan.Tags = []string{"Team"}
	}
	if cfg.Scan.ParallelProfiles == 0 {
		cfg.Scan.ParallelProfiles = 4
	}
	if cfg.Scan.RequestsPerSecond > 0 && cfg.Scan.Burst == 0 {
		cfg.Scan.Burst = 1
	}
	applyRetryDefaults(&cfg.Scan.Retry)
	if cfg.State.Backend == "" {
		cfg.State.Backend = BackendJSON
	}
	if cfg.State.File == "" {
		cfg.State.File = DefaultStateFile(cfg.State.Backend)
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "."
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.FileMaxSizeMB == 0 {
		cfg.Log.FileMaxSizeMB = 10
	}
	if cfg.Log.FileMaxBackups == 0 {
		cfg.Log.FileMaxBackups = 3
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "ecinventory"
	}
	if cfg.Daemon.Interval == 0 {
		cfg.Daemon.Interval = time.Hour
	}
	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
}

func applyRetryDefaults(p *retry.Policy) {
	d := retry.DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval == 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.Multiplier == 0 {
		p.Multiplier = d.Multiplier
	}
}

// DefaultStateFile returns the state file name used for backend.
func DefaultStateFile(backend string) string {
	if backend == BackendBolt {
		return "scan_state.db"
	}
	return "scan_state.json"
}

// SetStateBackend switches the backend. A defaulted file name follows it.
func (c *Config) SetStateBackend(backend string) {
	if c.State.File == "" || c.State.File == DefaultStateFile(c.State.Backend) {
		c.State.File = DefaultStateFile(backend)
	}
	c.State.Backend = backend
}

// StatePath returns the state artifact path. Relative files live in the
// output directory.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.State.File) {
		return c.State.File
	}
	return filepath.Join(c.Output.Dir, c.State.File)
}

// OutputPath returns name inside the output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Output.Dir, name)
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if len(c.AWS.Regions) == 0 {
		return fmt.Errorf("aws: at least one region required")
	}
	if c.Scan.ParallelProfiles < 1 {
		return fmt.Errorf("scan: parallel_profiles must be positive (got %d)", c.Scan.ParallelProfiles)
	}
	if !c.Scan.ClustersEnabled() && !c.Scan.IncludeReplicationGroups {
		return fmt.Errorf("scan: at least one resource type must be enabled")
	}
	if c.Scan.RequestsPerSecond < 0 {
		return fmt.Errorf("scan: requests_per_second must not be negative (got %v)", c.Scan.RequestsPerSecond)
	}
	if c.Scan.Retry.MaxAttempts < 1 {
		return fmt.Errorf("scan: retry.max_attempts must be at least 1 (got %d)", c.Scan.Retry.MaxAttempts)
	}
	if c.Scan.Retry.Jitter < 0 || c.Scan.Retry.Jitter > 1 {
		return fmt.Errorf("scan: retry.jitter must be between 0.0 and 1.0 (got %v)", c.Scan.Retry.Jitter)
	}
	if !slices.Contains([]string{BackendJSON, BackendBolt}, c.State.Backend) {
		return fmt.Errorf("state: unknown backend %q", c.State.Backend)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	if !slices.Contains([]string{"console", "json"}, c.Log.Format) {
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if c.Daemon.Interval < 0 {
		return fmt.Errorf("daemon: interval must not be negative (got %s)", c.Daemon.Interval)
	}
	return nil
}
