package emitter

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// LogEmitter writes a run summary, one event per failed profile and one event
// per changed resource.
type LogEmitter struct {
	logger  zerolog.Logger
	tracker *DiffTracker
}

// NewLogEmitter creates a log emitter on the global logger.
func NewLogEmitter() *LogEmitter {
	return NewLogEmitterWith(log.Logger)
}

// NewLogEmitterWith creates a log emitter on the given logger.
func NewLogEmitterWith(l zerolog.Logger) *LogEmitter {
	return &LogEmitter{
		logger:  l.With().Str("component", "emitter").Logger(),
		tracker: NewDiffTracker(),
	}
}

// Emit logs the result.
func (e *LogEmitter) Emit(_ context.Context, result *orchestrator.Result) error {
	logger := e.logger.With().Str("run_id", result.RunID).Logger()

	event := logger.Info().
		Int("resources", len(result.Resources)).
		Int("profiles", len(result.Profiles)).
		Int("tasks_total", result.TasksTotal).
		Int("tasks_failed", result.TasksFailed).
		Bool("interrupted", result.Interrupted).
		Dur("duration", result.Duration())
	if result.Delta != nil {
		counts := result.Delta.Counts()
		event = event.
			Int("added", counts[resource.DeltaAdded]).
			Int("changed", counts[resource.DeltaChanged]).
			Int("removed", counts[resource.DeltaRemoved]).
			Int("unchanged", counts[resource.DeltaUnchanged]).
			Bool("state_persisted", result.StatePersisted)
	}
	event.Msg("scan summary")

	for _, f := range result.Failures.Entries {
		logger.Warn().
			Str("profile", f.Profile).
			Str("kind", string(f.Kind)).
			Strs("regions", f.Regions).
			Str("error", f.Message).
			Msg(f.Guidance)
	}

	if result.Interrupted {
		return nil
	}

	failed := failedProfiles(result)
	if result.Delta != nil {
		e.logDelta(logger, result)
	} else {
		for _, c := range e.tracker.ComputeDiff(result.Resources, failed...) {
			e.logChange(logger, c)
		}
	}
	e.tracker.Update(result.Resources, failed...)
	return nil
}

// logDelta logs the persisted-state delta, enriched with field detail when
// the tracker saw the previous run.
func (e *LogEmitter) logDelta(logger zerolog.Logger, result *orchestrator.Result) {
	var detail map[string]ResourceChange
	if e.tracker.Initialized() {
		detail = make(map[string]ResourceChange)
		for _, c := range e.tracker.ComputeDiff(result.Resources) {
			detail[c.Resource.Key()] = c
		}
	}

	groups := []struct {
		kind resource.DeltaKind
		ids  []resource.Identity
	}{
		{resource.DeltaAdded, result.Delta.Added},
		{resource.DeltaChanged, result.Delta.Changed},
		{resource.DeltaRemoved, result.Delta.Removed},
	}
	for _, g := range groups {
		kind := g.kind
		for _, id := range g.ids {
			c, ok := detail[id.Key()]
			if !ok {
				c = ResourceChange{Kind: kind, Resource: resource.Resource{Identity: id}}
			}
			c.Kind = kind
			e.logChange(logger, c)
		}
	}
}

func (e *LogEmitter) logChange(logger zerolog.Logger, c ResourceChange) {
	event := logger.Info().
		Str("profile", c.Resource.Profile).
		Str("region", c.Resource.Region).
		Str("type", string(c.Resource.Type)).
		Str("id", c.Resource.ID).
		Str("change", string(c.Kind))
	for field, fc := range c.Fields {
		event = event.
			Str(field+".from", fc.Previous).
			Str(field+".to", fc.Current)
	}
	event.Msg("resource changed")
}

// Close is a no-op.
func (e *LogEmitter) Close() error {
	return nil
}

func failedProfiles(result *orchestrator.Result) []string {
	var out []string
	for _, p := range result.Profiles {
		if len(p.RegionsFailed) > 0 {
			out = append(out, p.Profile)
		}
	}
	return out
}
