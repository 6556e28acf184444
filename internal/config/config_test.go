package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
aws:
  regions: [us-east-1, eu-west-1]
  profiles: [prod, staging]
scan:
  tags: [Team, Owner]
  include_clusters: false
  include_replication_groups: true
  node_info: true
  parallel_profiles: 8
  incremental: true
  requests_per_second: 5
  burst: 2
  exclude_tags:
    inventory: skip
  retry:
    max_attempts: 6
    initial_interval: 250ms
    max_interval: 4s
state:
  backend: bolt
output:
  dir: /tmp/inventory
otel:
  endpoint: localhost:4317
  insecure: true
  service_name: cache-inventory
  traces:
    enabled: true
    sample_rate: 1.0
  metrics:
    enabled: true
daemon:
  interval: 30m
  metrics_addr: ":9100"
log:
  level: debug
  format: json
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.AWS.Regions)
	assert.Equal(t, []string{"prod", "staging"}, cfg.AWS.Profiles)
	assert.Equal(t, []string{"Team", "Owner"}, cfg.Scan.Tags)
	assert.False(t, cfg.Scan.ClustersEnabled())
	assert.True(t, cfg.Scan.IncludeReplicationGroups)
	assert.True(t, cfg.Scan.NodeInfo)
	assert.Equal(t, 8, cfg.Scan.ParallelProfiles)
	assert.True(t, cfg.Scan.Incremental)
	assert.Equal(t, 5.0, cfg.Scan.RequestsPerSecond)
	assert.Equal(t, 2, cfg.Scan.Burst)
	assert.Equal(t, map[string]string{"inventory": "skip"}, cfg.Scan.ExcludeTags)
	assert.Equal(t, 6, cfg.Scan.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.Retry.InitialInterval)
	assert.Equal(t, 4*time.Second, cfg.Scan.Retry.MaxInterval)
	assert.Equal(t, 2.0, cfg.Scan.Retry.Multiplier)
	assert.Equal(t, BackendBolt, cfg.State.Backend)
	assert.Equal(t, filepath.Join("/tmp/inventory", "scan_state.db"), cfg.StatePath())
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.Equal(t, "cache-inventory", cfg.OTEL.ServiceName)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Daemon.Interval)
	assert.Equal(t, ":9100", cfg.Daemon.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Defaults(t *testing.T) {
	content := `
aws:
  regions: [us-east-1]
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"Team"}, cfg.Scan.Tags)
	assert.True(t, cfg.Scan.ClustersEnabled())
	assert.False(t, cfg.Scan.IncludeReplicationGroups)
	assert.False(t, cfg.Scan.NodeInfo)
	assert.Equal(t, 4, cfg.Scan.ParallelProfiles)
	assert.Equal(t, 4, cfg.Scan.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.Retry.InitialInterval)
	assert.Equal(t, 0.5, cfg.Scan.Retry.Jitter)
	assert.Zero(t, cfg.Scan.Burst)
	assert.Equal(t, BackendJSON, cfg.State.Backend)
	assert.Equal(t, "scan_state.json", cfg.StatePath())
	assert.Equal(t, "scan_failures.json", cfg.OutputPath("scan_failures.json"))
	assert.Equal(t, "ecinventory", cfg.OTEL.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, time.Hour, cfg.Daemon.Interval)
}

func TestLoad_ZeroJitterDisablesJitter(t *testing.T) {
	content := `
aws:
  regions: [us-east-1]
scan:
  retry:
    max_attempts: 3
    jitter: 0
`
	cfg, err := Load(writeTempConfig(t, content))

	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Zero(t, cfg.Scan.Retry.Jitter)
	assert.Equal(t, 3, cfg.Scan.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.Retry.InitialInterval)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "aws: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestStatePath_Absolute(t *testing.T) {
	cfg := Default()
	cfg.Output.Dir = "/out"
	cfg.State.File = "/var/lib/ecinventory/state.json"
	assert.Equal(t, "/var/lib/ecinventory/state.json", cfg.StatePath())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.AWS.Regions = []string{"us-east-1"}
		return cfg
	}
	off := false

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no regions", func(c *Config) { c.AWS.Regions = nil }, "at least one region"},
		{"zero parallelism", func(c *Config) { c.Scan.ParallelProfiles = 0 }, "parallel_profiles"},
		{"no resource types", func(c *Config) { c.Scan.IncludeClusters = &off }, "resource type"},
		{"negative rate", func(c *Config) { c.Scan.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero attempts", func(c *Config) { c.Scan.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"jitter above one", func(c *Config) { c.Scan.Retry.Jitter = 1.5 }, "jitter"},
		{"unknown backend", func(c *Config) { c.State.Backend = "sqlite" }, "unknown backend"},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }, "unknown level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "unknown format"},
		{"sample rate too high", func(c *Config) { c.OTEL.Traces.SampleRate = 1.5 }, "sample_rate"},
		{"negative interval", func(c *Config) { c.Daemon.Interval = -time.Second }, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSetStateBackend(t *testing.T) {
	cfg := Default()
	cfg.SetStateBackend(BackendBolt)
	assert.Equal(t, BackendBolt, cfg.State.Backend)
	assert.Equal(t, "scan_state.db", cfg.State.File)

	cfg.State.File = "custom.db"
	cfg.SetStateBackend(BackendJSON)
	assert.Equal(t, "custom.db", cfg.State.File, "explicit file names are kept")
}
