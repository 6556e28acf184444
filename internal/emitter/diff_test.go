package emitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

func TestDiffTracker_FirstScan(t *testing.T) {
	tracker := NewDiffTracker()
	resources := []resource.Resource{
		makeResource("prod", "c1", "7.0", nil),
		makeResource("prod", "c2", "7.0", nil),
	}

	assert.False(t, tracker.Initialized())
	assert.Nil(t, tracker.ComputeDiff(resources), "first scan should return nil")

	tracker.Update(resources)
	assert.True(t, tracker.Initialized())
}

func TestDiffTracker_NoChanges(t *testing.T) {
	tracker := NewDiffTracker()
	resources := []resource.Resource{
		makeResource("prod", "c1", "7.0", nil),
		makeResource("prod", "c2", "7.0", nil),
	}
	tracker.Update(resources)

	diffs := tracker.ComputeDiff(resources)
	require.NotNil(t, diffs)
	assert.Empty(t, diffs, "identical resources should produce no diffs")
}

func TestDiffTracker_MixedChanges(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]resource.Resource{
		makeResource("prod", "c1", "6.2", nil),
		makeResource("prod", "c2", "7.0", nil),
		makeResource("prod", "c3", "7.0", nil),
	})

	diffs := tracker.ComputeDiff([]resource.Resource{
		makeResource("prod", "c1", "7.1", nil), // changed
		// c2 removed
		makeResource("prod", "c3", "7.0", nil), // unchanged
		makeResource("prod", "c4", "7.0", nil), // added
	})

	require.Len(t, diffs, 3)
	assert.Equal(t, "c1", diffs[0].Resource.ID)
	assert.Equal(t, resource.DeltaChanged, diffs[0].Kind)
	assert.Equal(t, FieldChange{Previous: "6.2", Current: "7.1"}, diffs[0].Fields[resource.AttrEngineVersion])
	require.NotNil(t, diffs[0].Previous)

	assert.Equal(t, "c2", diffs[1].Resource.ID)
	assert.Equal(t, resource.DeltaRemoved, diffs[1].Kind)

	assert.Equal(t, "c4", diffs[2].Resource.ID)
	assert.Equal(t, resource.DeltaAdded, diffs[2].Kind)
	assert.Nil(t, diffs[2].Previous)
}

func TestDiffTracker_TagChanges(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]resource.Resource{
		makeResource("prod", "c1", "7.0", map[string]string{"Team": "core", "Env": "prod"}),
	})

	diffs := tracker.ComputeDiff([]resource.Resource{
		makeResource("prod", "c1", "7.0", map[string]string{"Team": "payments"}),
	})

	require.Len(t, diffs, 1)
	assert.Equal(t, map[string]FieldChange{
		"tag.Team": {Previous: "core", Current: "payments"},
		"tag.Env":  {Previous: "prod", Current: ""},
	}, diffs[0].Fields)
}

func TestDiffTracker_SkipsFailedProfiles(t *testing.T) {
	tracker := NewDiffTracker()
	tracker.Update([]resource.Resource{
		makeResource("prod", "c1", "7.0", nil),
		makeResource("stale", "s1", "7.0", nil),
	})

	current := []resource.Resource{makeResource("prod", "c1", "7.0", nil)}
	diffs := tracker.ComputeDiff(current, "stale")
	assert.Empty(t, diffs, "resources of a failed profile are not removals")

	tracker.Update(current, "stale")
	diffs = tracker.ComputeDiff(current)
	require.Len(t, diffs, 1)
	assert.Equal(t, "s1", diffs[0].Resource.ID)
	assert.Equal(t, resource.DeltaRemoved, diffs[0].Kind)
}
