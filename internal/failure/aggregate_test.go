package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	r := NewRecord("stale", "us-east-1", apiError("ExpiredToken"))

	assert.Equal(t, "stale", r.Profile)
	assert.Equal(t, "us-east-1", r.Region)
	assert.Equal(t, KindCredentialExpired, r.Kind)
	assert.Equal(t, "ExpiredToken", r.Code)
	assert.Contains(t, r.Guidance, "aws sso login --profile stale")
}

func TestAggregator_DeduplicatesByProfileAndKind(t *testing.T) {
	agg := NewAggregator()
	for _, region := range []string{"us-east-1", "eu-west-1", "sa-east-1"} {
		agg.Add(NewRecord("stale", region, apiError("ExpiredToken")))
	}
	agg.Add(NewRecord("stale", "us-east-1", apiError("AccessDenied")))
	agg.Add(NewRecord("dev", "us-east-1", apiError("Throttling")))

	summary := agg.Summary()
	require.Len(t, summary.Entries, 3)

	assert.Equal(t, "dev", summary.Entries[0].Profile)
	assert.Equal(t, KindThrottled, summary.Entries[0].Kind)

	assert.Equal(t, "stale", summary.Entries[1].Profile)
	assert.Equal(t, KindAccessDenied, summary.Entries[1].Kind)

	expired := summary.Entries[2]
	assert.Equal(t, KindCredentialExpired, expired.Kind)
	assert.Equal(t, []string{"eu-west-1", "sa-east-1", "us-east-1"}, expired.Regions)
	assert.Equal(t, 3, expired.Count)

	assert.Equal(t, []string{"dev", "stale"}, summary.Profiles())
	assert.Len(t, summary.ForProfile("stale"), 2)
}

func TestAggregator_SameRegionTwice(t *testing.T) {
	agg := NewAggregator()
	agg.Add(NewRecord("prod", "us-east-1", apiError("Throttling")))
	agg.Add(NewRecord("prod", "us-east-1", apiError("ThrottlingException")))

	summary := agg.Summary()
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, []string{"us-east-1"}, summary.Entries[0].Regions)
	assert.Equal(t, 2, summary.Entries[0].Count)
}

func TestAggregator_OrderIndependent(t *testing.T) {
	records := []Record{
		NewRecord("prod", "us-east-1", apiError("Throttling")),
		NewRecord("prod", "eu-west-1", apiError("ThrottlingException")),
		NewRecord("dev", "us-east-1", apiError("AccessDenied")),
	}

	forward := NewAggregator()
	for _, r := range records {
		forward.Add(r)
	}
	backward := NewAggregator()
	for i := len(records) - 1; i >= 0; i-- {
		backward.Add(records[i])
	}

	assert.Equal(t, forward.Summary(), backward.Summary())
}

func TestSummary_Empty(t *testing.T) {
	assert.True(t, NewAggregator().Summary().Empty())
}
