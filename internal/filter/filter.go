// Package filter selects which cache resource types are scanned and which
// collected resources are kept.
package filter

import (
	"slices"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// Filter controls which resource types to scan and which resources to include.
// A nil *Filter includes everything.
type Filter struct {
	excludeTypes map[resource.Type]bool
	includeTags  map[string]string
	excludeTags  map[string]string
}

// New creates a new Filter from the provided configuration.
func New(excludeTypes []resource.Type, includeTags, excludeTags map[string]string) *Filter {
	excludeMap := make(map[resource.Type]bool)
	for _, t := range excludeTypes {
		excludeMap[t] = true
	}

	return &Filter{
		excludeTypes: excludeMap,
		includeTags:  includeTags,
		excludeTags:  excludeTags,
	}
}

// ForTypes builds the type exclusions from the two scan toggles.
func ForTypes(includeClusters, includeReplicationGroups bool, includeTags, excludeTags map[string]string) *Filter {
	var exclude []resource.Type
	if !includeClusters {
		exclude = append(exclude, resource.TypeCluster)
	}
	if !includeReplicationGroups {
		exclude = append(exclude, resource.TypeReplicationGroup)
	}
	return New(exclude, includeTags, excludeTags)
}

// ShouldScanType returns true if the given resource type should be scanned.
func (f *Filter) ShouldScanType(typ resource.Type) bool {
	if f == nil {
		return true
	}
	return !f.excludeTypes[typ]
}

// ScannedTypes returns the scanned types in a stable order.
func (f *Filter) ScannedTypes() []resource.Type {
	var out []resource.Type
	for _, t := range []resource.Type{resource.TypeReplicationGroup, resource.TypeCluster} {
		if f.ShouldScanType(t) {
			out = append(out, t)
		}
	}
	return out
}

// TagKeys returns the tag names the include/exclude rules look at, sorted.
// The collector must fetch them for the rules to apply.
func (f *Filter) TagKeys() []string {
	if f == nil {
		return nil
	}
	var keys []string
	for k := range f.includeTags {
		keys = append(keys, k)
	}
	for k := range f.excludeTags {
		if _, ok := f.includeTags[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// ShouldIncludeResource returns true if the resource passes tag filters.
func (f *Filter) ShouldIncludeResource(r resource.Resource) bool {
	if f == nil {
		return true
	}

	// Include tags: all must match
	for k, v := range f.includeTags {
		if r.Tags == nil || r.Tags[k] != v {
			return false
		}
	}

	// Exclude tags: any match excludes
	for k, v := range f.excludeTags {
		if r.Tags != nil && r.Tags[k] == v {
			return false
		}
	}

	return true
}

// FilterResources returns only resources that pass the filter.
func (f *Filter) FilterResources(resources []resource.Resource) []resource.Resource {
	if f.HasNoTagRules() {
		return resources
	}

	filtered := make([]resource.Resource, 0, len(resources))
	for _, r := range resources {
		if f.ShouldIncludeResource(r) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// HasNoTagRules returns true if no tag filters are configured.
func (f *Filter) HasNoTagRules() bool {
	return f == nil || (len(f.includeTags) == 0 && len(f.excludeTags) == 0)
}
