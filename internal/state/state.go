// Package state persists per-run resource fingerprints and classifies the
// difference between two runs.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// Version is the current state format version.
const Version = 1

// ErrCorrupt is returned when a persisted state cannot be decoded.
var ErrCorrupt = errors.New("state artifact is corrupt")

// Entry is the last known fingerprint of one resource.
type Entry struct {
	resource.Identity
	Fingerprint string    `json:"fingerprint"`
	LastSeen    time.Time `json:"last_seen"`
}

// ScanState maps identity keys to their last known fingerprint.
type ScanState struct {
	Version int              `json:"version"`
	RunID   string           `json:"run_id,omitempty"`
	RunAt   time.Time        `json:"run_at"`
	Entries map[string]Entry `json:"entries"`
}

// Empty returns the baseline used when no state has been persisted.
func Empty() ScanState {
	return ScanState{Version: Version, Entries: map[string]Entry{}}
}

// Len returns the number of entries.
func (s ScanState) Len() int {
	return len(s.Entries)
}

// normalize re-keys entries by identity and rejects unknown versions.
func (s ScanState) normalize() (ScanState, error) {
	if s.Version > Version {
		return ScanState{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, s.Version)
	}
	entries := make(map[string]Entry, len(s.Entries))
	for key, e := range s.Entries {
		if e.ID == "" {
			return ScanState{}, fmt.Errorf("%w: entry %q has no identity", ErrCorrupt, key)
		}
		entries[e.Key()] = e
	}
	s.Version = Version
	s.Entries = entries
	return s, nil
}

// Store loads and saves the scan state artifact.
type Store interface {
	// Load returns the persisted state, or Empty() when none exists.
	Load(ctx context.Context) (ScanState, error)
	// Save replaces the persisted state wholesale.
	Save(ctx context.Context, s ScanState) error
	Close() error
}

// Diff classifies every identity in prev and current. Each identity lands in
// exactly one class; fingerprints are compared for exact equality. Duplicate
// identities in current are resolved the same way resource.Table does.
func Diff(prev ScanState, current []resource.Resource) resource.Delta {
	table := resource.NewTable()
	table.Merge(current...)

	var delta resource.Delta
	seen := make(map[string]bool, table.Len())

	for _, r := range table.Resources() {
		key := r.Key()
		seen[key] = true
		old, ok := prev.Entries[key]
		switch {
		case !ok:
			delta.Added = append(delta.Added, r.Identity)
		case old.Fingerprint == r.Fingerprint:
			delta.Unchanged = append(delta.Unchanged, r.Identity)
		default:
			delta.Changed = append(delta.Changed, r.Identity)
		}
	}

	removed := make([]string, 0)
	for key := range prev.Entries {
		if !seen[key] {
			removed = append(removed, key)
		}
	}
	slices.Sort(removed)
	for _, key := range removed {
		delta.Removed = append(delta.Removed, prev.Entries[key].Identity)
	}

	return delta
}

// Snapshot builds the state to persist after a run.
func Snapshot(current []resource.Resource, runID string, now time.Time) ScanState {
	s := ScanState{
		Version: Version,
		RunID:   runID,
		RunAt:   now.UTC(),
		Entries: make(map[string]Entry, len(current)),
	}
	table := resource.NewTable()
	table.Merge(current...)
	for _, r := range table.Resources() {
		seen := r.ScannedAt
		if seen.IsZero() {
			seen = now
		}
		s.Entries[r.Key()] = Entry{
			Identity:    r.Identity,
			Fingerprint: r.Fingerprint,
			LastSeen:    seen.UTC(),
		}
	}
	return s
}
