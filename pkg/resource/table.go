package resource

import (
	"github.com/google/btree"
)

// Table is the merged resource set of a run, ordered by identity key.
// It is not safe for concurrent use; the orchestrator merges from a single
// goroutine.
type Table struct {
	tree *btree.BTreeG[Resource]
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		tree: btree.NewG[Resource](32, func(a, b Resource) bool {
			return a.Key() < b.Key()
		}),
	}
}

// Merge inserts resources. On a key collision the resource with the smaller
// fingerprint (then earlier scan time) is kept so the outcome does not depend
// on merge order.
func (t *Table) Merge(resources ...Resource) {
	for _, r := range resources {
		if existing, ok := t.tree.Get(r); ok && !wins(r, existing) {
			continue
		}
		t.tree.ReplaceOrInsert(r)
	}
}

func wins(candidate, existing Resource) bool {
	if candidate.Fingerprint != existing.Fingerprint {
		return candidate.Fingerprint < existing.Fingerprint
	}
	return candidate.ScannedAt.Before(existing.ScannedAt)
}

// Len returns the number of resources.
func (t *Table) Len() int {
	return t.tree.Len()
}

// Get returns the resource with the given identity.
func (t *Table) Get(id Identity) (Resource, bool) {
	return t.tree.Get(Resource{Identity: id})
}

// Resources returns all resources in ascending key order.
func (t *Table) Resources() []Resource {
	out := make([]Resource, 0, t.tree.Len())
	t.tree.Ascend(func(r Resource) bool {
		out = append(out, r)
		return true
	})
	return out
}

// CountByProfile returns the number of resources per profile.
func (t *Table) CountByProfile() map[string]int {
	counts := make(map[string]int)
	t.tree.Ascend(func(r Resource) bool {
		counts[r.Profile]++
		return true
	})
	return counts
}
