package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/LeoncioXavier/elasticache-inventory/internal/awsclient"
)

var profilesJSON bool

// profilesCmd represents the profiles command
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List AWS profiles found in the shared config files",
	Long: `List the profiles a scan without --profiles would cover.

Reads AWS_CONFIG_FILE and AWS_SHARED_CREDENTIALS_FILE, or ~/.aws/config and
~/.aws/credentials. The default profile is always listed.`,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.Flags().BoolVar(&profilesJSON, "json", false, "Print as a JSON array")
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	profiles, err := awsclient.DiscoverProfiles()
	if err != nil {
		return err
	}
	if profilesJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(profiles)
	}
	renderProfiles(cmd.OutOrStdout(), profiles)
	return nil
}
