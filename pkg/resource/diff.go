package resource

// DeltaKind is the classification of one identity between two runs.
type DeltaKind string

const (
	// DeltaAdded indicates a resource absent from the previous run.
	DeltaAdded DeltaKind = "added"
	// DeltaChanged indicates a resource whose fingerprint differs.
	DeltaChanged DeltaKind = "changed"
	// DeltaRemoved indicates a resource that disappeared since the previous run.
	DeltaRemoved DeltaKind = "removed"
	// DeltaUnchanged indicates a resource with an identical fingerprint.
	DeltaUnchanged DeltaKind = "unchanged"
)

// Delta partitions identities into the four change classes.
// Each slice is sorted by Identity.Key.
type Delta struct {
	Added     []Identity `json:"added"`
	Changed   []Identity `json:"changed"`
	Removed   []Identity `json:"removed"`
	Unchanged []Identity `json:"unchanged"`
}

// Counts returns the number of identities per class.
func (d Delta) Counts() map[DeltaKind]int {
	return map[DeltaKind]int{
		DeltaAdded:     len(d.Added),
		DeltaChanged:   len(d.Changed),
		DeltaRemoved:   len(d.Removed),
		DeltaUnchanged: len(d.Unchanged),
	}
}

// HasChanges reports whether anything was added, changed or removed.
func (d Delta) HasChanges() bool {
	return len(d.Added)+len(d.Changed)+len(d.Removed) > 0
}
