package emitter

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// FieldChange is the before and after value of one attribute or tag.
type FieldChange struct {
	Previous string
	Current  string
}

// ResourceChange is one resource that differs from the previous run seen by
// the tracker, with per-field detail.
type ResourceChange struct {
	Kind     resource.DeltaKind
	Resource resource.Resource
	Previous *resource.Resource
	Fields   map[string]FieldChange
}

// DiffTracker remembers the resources of the last emitted run and reports
// field-level changes against it. The persisted state keeps only
// fingerprints, so field detail is available between runs of one process.
type DiffTracker struct {
	mu          sync.RWMutex
	previous    map[string]resource.Resource
	initialized bool
}

// NewDiffTracker creates a new diff tracker.
func NewDiffTracker() *DiffTracker {
	return &DiffTracker{
		previous: make(map[string]resource.Resource),
	}
}

// Initialized reports whether a baseline has been recorded.
func (d *DiffTracker) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// ComputeDiff compares current resources against the baseline.
// Returns nil before the first Update, an empty slice when nothing changed.
// Resources of profiles listed in skip (failed this run) are not reported
// as removed.
func (d *DiffTracker) ComputeDiff(current []resource.Resource, skip ...string) []ResourceChange {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil
	}

	currentMap := indexResources(current)
	changes := make([]ResourceChange, 0)
	changes = append(changes, d.findRemovedAndChanged(currentMap, skip)...)
	changes = append(changes, d.findAdded(currentMap)...)

	slices.SortFunc(changes, func(a, b ResourceChange) int {
		return cmp.Compare(a.Resource.Key(), b.Resource.Key())
	})
	return changes
}

func indexResources(resources []resource.Resource) map[string]resource.Resource {
	m := make(map[string]resource.Resource, len(resources))
	for _, r := range resources {
		m[r.Key()] = r
	}
	return m
}

func (d *DiffTracker) findRemovedAndChanged(currentMap map[string]resource.Resource, skip []string) []ResourceChange {
	var changes []ResourceChange
	for key, prev := range d.previous {
		prevCopy := prev
		curr, exists := currentMap[key]
		switch {
		case exists && curr.Fingerprint != prev.Fingerprint:
			changes = append(changes, ResourceChange{
				Kind:     resource.DeltaChanged,
				Resource: curr,
				Previous: &prevCopy,
				Fields:   detectChanges(prev, curr),
			})
		case !exists && !slices.Contains(skip, prev.Profile):
			changes = append(changes, ResourceChange{
				Kind:     resource.DeltaRemoved,
				Resource: prev,
				Previous: &prevCopy,
			})
		}
	}
	return changes
}

func (d *DiffTracker) findAdded(currentMap map[string]resource.Resource) []ResourceChange {
	var changes []ResourceChange
	for key, curr := range currentMap {
		if _, exists := d.previous[key]; !exists {
			changes = append(changes, ResourceChange{
				Kind:     resource.DeltaAdded,
				Resource: curr,
			})
		}
	}
	return changes
}

// Update stores the current resources as the new baseline. Resources of
// profiles in keep are carried over from the old baseline.
func (d *DiffTracker) Update(current []resource.Resource, keep ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[string]resource.Resource, len(current))
	for key, r := range d.previous {
		if slices.Contains(keep, r.Profile) {
			next[key] = r
		}
	}
	for _, r := range current {
		next[r.Key()] = r
	}
	d.previous = next
	d.initialized = true
}

// detectChanges compares attributes and tags. ScannedAt is ignored.
func detectChanges(prev, curr resource.Resource) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	diffMaps(changes, "", prev.Attrs, curr.Attrs, resource.Absent)
	diffMaps(changes, "tag.", prev.Tags, curr.Tags, "")
	return changes
}

func diffMaps(out map[string]FieldChange, prefix string, prev, curr map[string]string, missing string) {
	keys := slices.Collect(maps.Keys(prev))
	for k := range curr {
		if _, ok := prev[k]; !ok {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		p, ok := prev[k]
		if !ok {
			p = missing
		}
		c, ok := curr[k]
		if !ok {
			c = missing
		}
		if p != c {
			out[prefix+k] = FieldChange{Previous: p, Current: c}
		}
	}
}
