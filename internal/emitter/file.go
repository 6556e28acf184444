package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
	"github.com/LeoncioXavier/elasticache-inventory/pkg/resource"
)

// Output file names inside the output directory.
const (
	ReportFile   = "elasticache_report.csv"
	FailuresFile = "scan_failures.json"
	ResultFile   = "scan_result.json"
)

// FileEmitter writes the inventory report, the failure report and optionally
// the full result into a directory.
type FileEmitter struct {
	dir        string
	tags       []string
	withResult bool
}

// FileOption configures a FileEmitter.
type FileOption func(*FileEmitter)

// WithResultJSON also writes the full result as JSON.
func WithResultJSON() FileOption {
	return func(e *FileEmitter) { e.withResult = true }
}

// NewFileEmitter creates a file emitter. Tag names in tags become report
// columns.
func NewFileEmitter(dir string, tags []string, opts ...FileOption) *FileEmitter {
	e := &FileEmitter{dir: dir, tags: tags}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit writes the files. The failure report is removed when the run had no
// failures so a stale one is never mistaken for the current run.
func (e *FileEmitter) Emit(ctx context.Context, result *orchestrator.Result) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := writeAtomic(ctx, e.path(ReportFile), []byte(RenderCSV(result.Resources, e.tags))); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if result.Failures.Empty() {
		if err := os.Remove(e.path(FailuresFile)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove failure report: %w", err)
		}
	} else if err := writeJSON(ctx, e.path(FailuresFile), result.Failures.Entries); err != nil {
		return fmt.Errorf("write failure report: %w", err)
	}

	if e.withResult {
		if err := writeJSON(ctx, e.path(ResultFile), result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return nil
}

// Close is a no-op.
func (e *FileEmitter) Close() error {
	return nil
}

func (e *FileEmitter) path(name string) string {
	return filepath.Join(e.dir, name)
}

// ReportHeader returns the CSV header for the given tag columns.
func ReportHeader(tags []string) table.Row {
	row := table.Row{"Profile", "AccountId", "Region", "ResourceType", "Id", "ARN"}
	for _, k := range resource.AttrKeys {
		row = append(row, k)
	}
	for _, t := range tags {
		row = append(row, "tag:"+t)
	}
	return row
}

// RenderCSV renders resources in key order as CSV.
func RenderCSV(resources []resource.Resource, tags []string) string {
	t := table.NewWriter()
	t.AppendHeader(ReportHeader(tags))
	for _, r := range resources {
		row := table.Row{r.Profile, r.AccountID, r.Region, string(r.Type), r.ID, r.ARN}
		for _, k := range resource.AttrKeys {
			row = append(row, r.Attr(k))
		}
		for _, tag := range tags {
			v := r.Tags[tag]
			if v == "" {
				v = resource.Absent
			}
			row = append(row, v)
		}
		t.AppendRow(row)
	}
	return t.RenderCSV() + "\n"
}

func writeJSON(ctx context.Context, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeAtomic(ctx, path, append(data, '\n'))
}

// writeAtomic replaces path through a temp file in the same directory.
func writeAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}
