package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/LeoncioXavier/elasticache-inventory/internal/failure"
	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// renderSummary writes the console summary of a run.
func renderSummary(w io.Writer, r *orchestrator.Result) {
	fmt.Fprintf(w, "\nElastiCache inventory  run %s  (%s)\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "   %d resources, %d/%d tasks failed", len(r.Resources), r.TasksFailed, r.TasksTotal)
	if r.TasksSkipped > 0 {
		fmt.Fprintf(w, ", %d skipped", r.TasksSkipped)
	}
	fmt.Fprintln(w)
	if r.Interrupted {
		fmt.Fprintln(w, text.FgYellow.Sprint("   Interrupted: partial results, state not saved"))
	}

	drawProfilesTable(w, r.Profiles)
	if r.Delta != nil {
		drawDeltaTable(w, r)
	}
	if !r.Failures.Empty() {
		drawFailuresTable(w, r.Failures)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, text.FgYellow.Sprintf("\n%d warnings (see the error log)", len(r.Warnings)))
	}
}

func drawProfilesTable(w io.Writer, profiles []orchestrator.ProfileSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Profile", "Resources", "Regions OK", "Regions Failed"})

	total := 0
	for _, p := range profiles {
		total += p.Resources
		failed := strings.Join(p.RegionsFailed, ", ")
		if p.Failed() {
			failed = text.FgRed.Sprint(failed)
		}
		t.AppendRow(table.Row{p.Profile, p.Resources, len(p.RegionsOK), failed})
	}
	t.AppendFooter(table.Row{"Total", total, "", ""})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func drawDeltaTable(w io.Writer, r *orchestrator.Result) {
	counts := r.Delta.Counts()
	fmt.Fprintln(w, "\nChanges since the previous run")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Added", "Changed", "Removed", "Unchanged", "State Saved"})
	t.AppendRow(table.Row{
		text.FgGreen.Sprint(counts[resource.DeltaAdded]),
		text.FgYellow.Sprint(counts[resource.DeltaChanged]),
		text.FgRed.Sprint(counts[resource.DeltaRemoved]),
		counts[resource.DeltaUnchanged],
		r.StatePersisted,
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if !r.Delta.HasChanges() {
		return
	}
	changes := table.NewWriter()
	changes.SetOutputMirror(w)
	changes.AppendHeader(table.Row{"Change", "Profile", "Region", "Type", "ID"})
	for _, g := range []struct {
		kind resource.DeltaKind
		ids  []resource.Identity
	}{
		{resource.DeltaAdded, r.Delta.Added},
		{resource.DeltaChanged, r.Delta.Changed},
		{resource.DeltaRemoved, r.Delta.Removed},
	} {
		for _, id := range g.ids {
			changes.AppendRow(table.Row{g.kind, id.Profile, id.Region, id.Type, id.ID})
		}
	}
	changes.SetStyle(table.StyleRounded)
	changes.Render()
}

func drawFailuresTable(w io.Writer, s failure.Summary) {
	fmt.Fprintln(w, "\n"+text.FgRed.Sprint("Failed profiles"))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Profile", "Kind", "Regions", "Guidance"})
	for _, e := range s.Entries {
		t.AppendRow(table.Row{e.Profile, e.Kind, strings.Join(e.Regions, ", "), e.Guidance})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderProfiles(w io.Writer, profiles []string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Profile"})
	for i, p := range profiles {
		t.AppendRow(table.Row{i + 1, p})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
