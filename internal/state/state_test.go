package state

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

var (
	run1 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	run2 = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
)

func cluster(id, engineVersion string, at time.Time) resource.Resource {
	return resource.New(
		resource.Identity{Profile: "prod", Region: "us-east-1", Type: resource.TypeCluster, ID: id},
		"123456789012",
		"arn:aws:elasticache:us-east-1:123456789012:cluster:"+id,
		map[string]string{resource.AttrEngine: "redis", resource.AttrEngineVersion: engineVersion},
		map[string]string{"Team": "payments"},
		at,
	)
}

func ids(identities []resource.Identity) []string {
	out := make([]string, 0, len(identities))
	for _, i := range identities {
		out = append(out, i.ID)
	}
	return out
}

func TestDiff_EngineVersionScenario(t *testing.T) {
	prev := Snapshot([]resource.Resource{
		cluster("c1", "7.0", run1),
		cluster("c2", "7.0", run1),
		cluster("c3", "6.2", run1),
	}, "run-1", run1)

	current := []resource.Resource{
		cluster("c1", "7.0", run2),
		cluster("c2", "7.1", run2),
	}

	delta := Diff(prev, current)

	assert.Equal(t, []string{"c1"}, ids(delta.Unchanged))
	assert.Equal(t, []string{"c2"}, ids(delta.Changed))
	assert.Equal(t, []string{"c3"}, ids(delta.Removed))
	assert.Empty(t, delta.Added)
	assert.True(t, delta.HasChanges())
}

func TestDiff_EmptyBaselineAddsEverything(t *testing.T) {
	delta := Diff(Empty(), []resource.Resource{cluster("c2", "7.0", run1), cluster("c1", "7.0", run1)})

	assert.Equal(t, []string{"c1", "c2"}, ids(delta.Added))
	assert.Empty(t, delta.Changed)
	assert.Empty(t, delta.Removed)
	assert.Empty(t, delta.Unchanged)
}

func TestDiff_PartitionAndIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var before, after []resource.Resource
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("c%02d", i)
			if rng.Intn(3) > 0 {
				before = append(before, cluster(id, "7.0", run1))
			}
			if rng.Intn(3) > 0 {
				after = append(after, cluster(id, []string{"7.0", "7.1"}[rng.Intn(2)], run2))
			}
		}
		prev := Snapshot(before, "r1", run1)

		first := Diff(prev, after)
		second := Diff(prev, after)
		require.Equal(t, first, second, "diff is idempotent")

		union := map[string]bool{}
		for _, r := range before {
			union[r.Key()] = true
		}
		for _, r := range after {
			union[r.Key()] = true
		}

		seen := map[string]int{}
		for _, class := range [][]resource.Identity{first.Added, first.Changed, first.Removed, first.Unchanged} {
			for _, id := range class {
				seen[id.Key()]++
			}
		}
		require.Len(t, seen, len(union))
		for key, n := range seen {
			require.True(t, union[key])
			require.Equal(t, 1, n, "identity %s in more than one class", key)
		}
	}
}

func TestDiff_SortedOutput(t *testing.T) {
	prev := Snapshot([]resource.Resource{cluster("z", "1", run1), cluster("a", "1", run1), cluster("m", "1", run1)}, "r1", run1)

	delta := Diff(prev, nil)

	assert.Equal(t, []string{"a", "m", "z"}, ids(delta.Removed))
}

func TestSnapshot(t *testing.T) {
	r := cluster("c1", "7.0", time.Time{})
	s := Snapshot([]resource.Resource{r}, "run-9", run2)

	assert.Equal(t, Version, s.Version)
	assert.Equal(t, "run-9", s.RunID)
	assert.Equal(t, run2, s.RunAt)
	require.Len(t, s.Entries, 1)
	e := s.Entries[r.Key()]
	assert.Equal(t, r.Identity, e.Identity)
	assert.Equal(t, r.Fingerprint, e.Fingerprint)
	assert.Equal(t, run2, e.LastSeen, "zero scan time falls back to run time")
}
