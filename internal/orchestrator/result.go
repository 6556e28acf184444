package orchestrator

import (
	"slices"
	"time"

	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// ProfileSummary reports the outcome of one profile across its regions.
type ProfileSummary struct {
	Profile       string   `json:"profile"`
	Resources     int      `json:"resources"`
	RegionsOK     []string `json:"regions_ok"`
	RegionsFailed []string `json:"regions_failed,omitempty"`
}

// Failed reports whether no region of the profile succeeded.
func (p ProfileSummary) Failed() bool {
	return len(p.RegionsOK) == 0 && len(p.RegionsFailed) > 0
}

// Result is the outcome of one run.
type Result struct {
	RunID          string              `json:"run_id"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     time.Time           `json:"finished_at"`
	Resources      []resource.Resource `json:"resources"`
	Profiles       []ProfileSummary    `json:"profiles"`
	Failures       failure.Summary     `json:"failures"`
	Delta          *resource.Delta     `json:"delta,omitempty"` // nil unless incremental and not interrupted
	Warnings       []string            `json:"warnings,omitempty"`
	StatePersisted bool                `json:"state_persisted"`
	Interrupted    bool                `json:"interrupted"`
	TasksTotal     int                 `json:"tasks_total"`
	TasksFailed    int                 `json:"tasks_failed"`
	TasksSkipped   int                 `json:"tasks_skipped"`
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Profile returns the summary of one profile.
func (r *Result) Profile(name string) (ProfileSummary, bool) {
	for _, p := range r.Profiles {
		if p.Profile == name {
			return p, true
		}
	}
	return ProfileSummary{}, false
}

// ResourcesFor returns the resources of one profile.
func (r *Result) ResourcesFor(profile string) []resource.Resource {
	var out []resource.Resource
	for _, res := range r.Resources {
		if res.Profile == profile {
			out = append(out, res)
		}
	}
	return out
}

// summaries lists every profile of the run, including those with no
// resources or no successful region.
func (m *merger) summaries(counts map[string]int) []ProfileSummary {
	out := make([]ProfileSummary, 0, len(m.order))
	for _, p := range m.order {
		ok := slices.Clone(m.ok[p])
		failed := slices.Clone(m.failedBy[p])
		slices.Sort(ok)
		slices.Sort(failed)
		out = append(out, ProfileSummary{
			Profile:       p,
			Resources:     counts[p],
			RegionsOK:     ok,
			RegionsFailed: failed,
		})
	}
	slices.SortFunc(out, func(a, b ProfileSummary) int {
		switch {
		case a.Profile < b.Profile:
			return -1
		case a.Profile > b.Profile:
			return 1
		}
		return 0
	})
	return out
}
