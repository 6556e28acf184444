package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func byMessage(lines []map[string]any, msg string) []map[string]any {
	var out []map[string]any
	for _, l := range lines {
		if l["message"] == msg {
			out = append(out, l)
		}
	}
	return out
}

func TestLogEmitter_SummaryAndFailures(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitterWith(zerolog.New(&buf))

	result := withFailure(makeResult(makeResource("prod", "c1", "7.0", nil)), "stale")
	require.NoError(t, e.Emit(context.Background(), result))

	lines := logLines(t, &buf)
	summary := byMessage(lines, "scan summary")
	require.Len(t, summary, 1)
	assert.EqualValues(t, 1, summary[0]["resources"])
	assert.EqualValues(t, 1, summary[0]["tasks_failed"])

	var failed []map[string]any
	for _, l := range lines {
		if l["level"] == "warn" {
			failed = append(failed, l)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "stale", failed[0]["profile"])
	assert.Equal(t, "credential_expired", failed[0]["kind"])
	assert.Contains(t, failed[0]["message"], "aws sso login --profile stale")
	assert.Equal(t, "token expired", failed[0]["error"])
}

func TestLogEmitter_ChangesBetweenRuns(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitterWith(zerolog.New(&buf))
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, makeResult(makeResource("prod", "c1", "6.2", nil))))
	assert.Empty(t, byMessage(logLines(t, &buf), "resource changed"), "first run is the baseline")

	buf.Reset()
	require.NoError(t, e.Emit(ctx, makeResult(makeResource("prod", "c1", "7.0", nil))))

	changes := byMessage(logLines(t, &buf), "resource changed")
	require.Len(t, changes, 1)
	assert.Equal(t, "c1", changes[0]["id"])
	assert.Equal(t, "changed", changes[0]["change"])
	assert.Equal(t, "6.2", changes[0]["engine_version.from"])
	assert.Equal(t, "7.0", changes[0]["engine_version.to"])
}

func TestLogEmitter_UsesPersistedDelta(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitterWith(zerolog.New(&buf))

	removed := resource.Identity{Profile: "prod", Region: "us-east-1", Type: resource.TypeCluster, ID: "c3"}
	result := makeResult(makeResource("prod", "c1", "7.0", nil))
	result.Delta = &resource.Delta{
		Unchanged: []resource.Identity{result.Resources[0].Identity},
		Removed:   []resource.Identity{removed},
	}
	result.StatePersisted = true

	require.NoError(t, e.Emit(context.Background(), result))

	lines := logLines(t, &buf)
	summary := byMessage(lines, "scan summary")
	require.Len(t, summary, 1)
	assert.EqualValues(t, 1, summary[0]["removed"])
	assert.Equal(t, true, summary[0]["state_persisted"])

	changes := byMessage(lines, "resource changed")
	require.Len(t, changes, 1)
	assert.Equal(t, "c3", changes[0]["id"])
	assert.Equal(t, "removed", changes[0]["change"])
}

func TestLogEmitter_InterruptedRunSkipsChanges(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogEmitterWith(zerolog.New(&buf))
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, makeResult(
		makeResource("prod", "c1", "7.0", nil),
		makeResource("prod", "c2", "7.0", nil),
	)))
	buf.Reset()

	partial := makeResult(makeResource("prod", "c1", "7.0", nil))
	partial.Interrupted = true
	require.NoError(t, e.Emit(ctx, partial))
	assert.Empty(t, byMessage(logLines(t, &buf), "resource changed"))
	assert.NoError(t, e.Close())
}
