package failure

import (
	"cmp"
	"slices"
	"sync"
)

// Record is one classified failure of a scan task.
type Record struct {
	Profile  string `json:"profile"`
	Region   string `json:"region"`
	Kind     Kind   `json:"kind"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Guidance string `json:"guidance"`
}

// NewRecord classifies err for the given profile and region.
func NewRecord(profile, region string, err error) Record {
	c := Classify(err)
	return Record{
		Profile:  profile,
		Region:   region,
		Kind:     c.Kind,
		Code:     c.Code,
		Message:  c.Message,
		Guidance: Guidance(c.Kind, profile, c.Message),
	}
}

// Entry is one deduplicated (profile, kind) failure.
type Entry struct {
	Profile  string   `json:"profile"`
	Kind     Kind     `json:"kind"`
	Message  string   `json:"message"`
	Guidance string   `json:"guidance"`
	Regions  []string `json:"regions"`
	Count    int      `json:"count"`
}

// Summary is the failure table handed to report generators.
type Summary struct {
	Entries []Entry `json:"entries"`
}

// Empty reports whether no failures were recorded.
func (s Summary) Empty() bool {
	return len(s.Entries) == 0
}

// Profiles returns the distinct failed profiles in sorted order.
func (s Summary) Profiles() []string {
	var out []string
	for _, e := range s.Entries {
		if len(out) == 0 || out[len(out)-1] != e.Profile {
			out = append(out, e.Profile)
		}
	}
	return out
}

// ForProfile returns the entries of one profile.
func (s Summary) ForProfile(profile string) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Profile == profile {
			out = append(out, e)
		}
	}
	return out
}

type aggKey struct {
	profile string
	kind    Kind
}

// Aggregator collapses failures by (profile, kind).
type Aggregator struct {
	mu      sync.Mutex
	entries map[aggKey]*Entry
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[aggKey]*Entry)}
}

// Add records a failure. Of the messages seen for a (profile, kind) the
// lexically smallest is kept so the summary does not depend on arrival order.
func (a *Aggregator) Add(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := aggKey{profile: r.Profile, kind: r.Kind}
	e, ok := a.entries[k]
	if !ok {
		e = &Entry{
			Profile:  r.Profile,
			Kind:     r.Kind,
			Message:  r.Message,
			Guidance: r.Guidance,
		}
		a.entries[k] = e
	} else if r.Message < e.Message {
		e.Message = r.Message
		e.Guidance = r.Guidance
	}
	e.Count++
	if r.Region != "" && !slices.Contains(e.Regions, r.Region) {
		e.Regions = append(e.Regions, r.Region)
	}
}

// Summary returns the aggregated failures sorted by profile then kind.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		c := *e
		c.Regions = slices.Clone(e.Regions)
		slices.Sort(c.Regions)
		entries = append(entries, c)
	}
	slices.SortFunc(entries, func(x, y Entry) int {
		return cmp.Or(cmp.Compare(x.Profile, y.Profile), cmp.Compare(x.Kind, y.Kind))
	})
	return Summary{Entries: entries}
}
