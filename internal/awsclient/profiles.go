package awsclient

import (
	"fmt"
	"os"
	"slices"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-ini/ini"
)

// DefaultProfile is always part of the discovered profile set.
const DefaultProfile = "default"

// DiscoverProfiles lists the profiles defined in the shared config and
// credentials files, honouring AWS_CONFIG_FILE and
// AWS_SHARED_CREDENTIALS_FILE.
func DiscoverProfiles() ([]string, error) {
	configPath := os.Getenv("AWS_CONFIG_FILE")
	if configPath == "" {
		configPath = awsconfig.DefaultSharedConfigFilename()
	}
	credentialsPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credentialsPath == "" {
		credentialsPath = awsconfig.DefaultSharedCredentialsFilename()
	}
	return DiscoverProfilesFrom(configPath, credentialsPath)
}

// DiscoverProfilesFrom lists the profiles defined in the given files. Missing
// files are ignored. The result is deduplicated, starts with "default" and is
// otherwise sorted.
func DiscoverProfilesFrom(configPath, credentialsPath string) ([]string, error) {
	seen := map[string]bool{DefaultProfile: true}

	cfgNames, err := sectionNames(configPath)
	if err != nil {
		return nil, err
	}
	for _, name := range cfgNames {
		switch {
		case name == DefaultProfile:
		case strings.HasPrefix(name, "profile "):
			seen[strings.TrimSpace(strings.TrimPrefix(name, "profile "))] = true
		}
	}

	credNames, err := sectionNames(credentialsPath)
	if err != nil {
		return nil, err
	}
	for _, name := range credNames {
		seen[name] = true
	}

	profiles := make([]string, 0, len(seen))
	for name := range seen {
		if name != "" && name != DefaultProfile {
			profiles = append(profiles, name)
		}
	}
	slices.Sort(profiles)
	return append([]string{DefaultProfile}, profiles...), nil
}

func sectionNames(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowNonUniqueSections: true}, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var names []string
	for _, s := range f.Sections() {
		name := strings.TrimSpace(s.Name())
		if name == ini.DefaultSection {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
