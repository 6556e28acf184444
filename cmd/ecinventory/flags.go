package main

import (
	"github.com/spf13/cobra"

	"github.com/LeoncioXavier/elasticache-inventory/internal/config"
)

// scanFlags are shared by scan and daemon. Only flags set on the command line
// override the config file.
type scanFlags struct {
	regions                  []string
	profiles                 []string
	tags                     []string
	includeClusters          bool
	includeReplicationGroups bool
	nodeInfo                 bool
	parallelProfiles         int
	incremental              bool
	stateBackend             string
	requestsPerSecond        float64
}

func (f *scanFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.regions, "regions", "r", nil, "Regions to scan (comma-separated)")
	flags.StringSliceVarP(&f.profiles, "profiles", "p", nil, "Profiles to scan (default: every profile in the shared config files)")
	flags.StringSliceVarP(&f.tags, "tags", "t", nil, "Tag names to collect (default: Team)")
	flags.BoolVar(&f.includeClusters, "include-clusters", true, "Scan cache clusters")
	flags.BoolVar(&f.includeReplicationGroups, "include-replication-groups", false, "Scan replication groups")
	flags.BoolVar(&f.nodeInfo, "node-info", false, "Collect per-node detail for replication groups (one extra call per member)")
	flags.IntVar(&f.parallelProfiles, "parallel-profiles", 0, "Maximum scan tasks in flight (default 4)")
	flags.BoolVar(&f.incremental, "incremental", false, "Compare against the previous run and save the new state")
	flags.StringVar(&f.stateBackend, "state-backend", "", "State backend: json, bolt")
	flags.Float64Var(&f.requestsPerSecond, "rps", 0, "Process-wide API request rate limit (0 disables)")
}

func (f *scanFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("regions") {
		cfg.AWS.Regions = f.regions
	}
	if flags.Changed("profiles") {
		cfg.AWS.Profiles = f.profiles
	}
	if flags.Changed("tags") {
		cfg.Scan.Tags = f.tags
	}
	if flags.Changed("include-clusters") {
		v := f.includeClusters
		cfg.Scan.IncludeClusters = &v
	}
	if flags.Changed("include-replication-groups") {
		cfg.Scan.IncludeReplicationGroups = f.includeReplicationGroups
	}
	if flags.Changed("node-info") {
		cfg.Scan.NodeInfo = f.nodeInfo
	}
	if flags.Changed("parallel-profiles") {
		cfg.Scan.ParallelProfiles = f.parallelProfiles
	}
	if flags.Changed("incremental") {
		cfg.Scan.Incremental = f.incremental
	}
	if flags.Changed("state-backend") {
		cfg.SetStateBackend(f.stateBackend)
	}
	if flags.Changed("rps") {
		cfg.Scan.RequestsPerSecond = f.requestsPerSecond
		if cfg.Scan.Burst == 0 {
			cfg.Scan.Burst = 1
		}
	}
}
