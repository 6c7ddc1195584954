package output

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/ingest"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/sweep"
)

var countHeaders = []string{"Rows", "Created", "Skipped", "Merged", "Create Failed", "Merge Failed", "Lookup Failed", "Invalid"}

func countCells(c ingest.Counts) []string {
	return []string{
		strconv.Itoa(c.Rows),
		strconv.Itoa(c.Created),
		strconv.Itoa(c.Skipped),
		strconv.Itoa(c.Merged),
		strconv.Itoa(c.CreateFailed),
		strconv.Itoa(c.MergeFailed),
		strconv.Itoa(c.LookupFailed),
		strconv.Itoa(c.Invalid),
	}
}

func rightAligned(leading, n int) []Align {
	align := make([]Align, leading+n)
	for i := range align {
		if i < leading {
			align[i] = AlignLeft
		} else {
			align[i] = AlignRight
		}
	}
	return align
}

// IngestTable renders per-file counts followed by a total row. The wide
// variant adds the per-file duration and read error.
func IngestTable(r *ingest.Result, wide bool) Data {
	headers := append([]string{"File"}, countHeaders...)
	if wide {
		headers = append(headers, "Duration", "Error")
	}

	rows := make([][]string, 0, len(r.Files)+1)
	for _, f := range r.Files {
		row := append([]string{f.Path}, countCells(f.Counts)...)
		if wide {
			row = append(row, f.Duration.Round(time.Millisecond).String(), f.Error)
		}
		rows = append(rows, row)
	}

	total := append([]string{"TOTAL"}, countCells(r.Counts)...)
	if wide {
		total = append(total, r.Duration.Round(time.Millisecond).String(), "")
	}
	rows = append(rows, total)

	return Data{
		Headers:         headers,
		Rows:            rows,
		ColumnAlignment: rightAligned(1, len(headers)-1),
	}
}

// SweepGroup is the serializable view of one duplicate group.
type SweepGroup struct {
	Key        string       `json:"key" yaml:"key"`
	Canonical  records.ID   `json:"canonical" yaml:"canonical"`
	Duplicates []records.ID `json:"duplicates" yaml:"duplicates"`
}

// SweepReport is the serializable view of a sweep result.
type SweepReport struct {
	DryRun     bool                  `json:"dry_run" yaml:"dry_run"`
	Scanned    int                   `json:"scanned" yaml:"scanned"`
	Unresolved int                   `json:"unresolved" yaml:"unresolved"`
	Groups     []SweepGroup          `json:"groups" yaml:"groups"`
	Deleted    []records.ID          `json:"deleted" yaml:"deleted"`
	Failed     map[records.ID]string `json:"failed,omitempty" yaml:"failed,omitempty"`
	Duration   time.Duration         `json:"duration" yaml:"duration"`
}

// NewSweepReport converts a sweep result for output.
func NewSweepReport(r *sweep.Result) SweepReport {
	report := SweepReport{
		DryRun:     r.DryRun,
		Scanned:    r.Scanned,
		Unresolved: r.Unresolved,
		Groups:     make([]SweepGroup, 0, len(r.Groups)),
		Deleted:    slices.Clone(r.Deleted),
		Duration:   r.Duration,
	}
	slices.Sort(report.Deleted)
	for _, g := range r.Groups {
		report.Groups = append(report.Groups, SweepGroup{
			Key:        g.Key,
			Canonical:  g.Canonical.ID,
			Duplicates: g.DuplicateIDs(),
		})
	}
	if len(r.Failed) > 0 {
		report.Failed = make(map[records.ID]string, len(r.Failed))
		for id, err := range r.Failed {
			report.Failed[id] = err.Error()
		}
	}
	return report
}

// SweepTable renders one row per duplicate group with the fate of each
// duplicate.
func SweepTable(r SweepReport, wide bool) Data {
	headers := []string{"Key", "Canonical", "Duplicates", "Status"}
	if wide {
		headers = append(headers, "Error")
	}

	rows := make([][]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		ids := make([]string, len(g.Duplicates))
		for i, id := range g.Duplicates {
			ids[i] = id.String()
		}
		status, errs := groupStatus(r, g)
		row := []string{g.Key, g.Canonical.String(), strings.Join(ids, ", "), status}
		if wide {
			row = append(row, strings.Join(errs, "; "))
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows}
}

func groupStatus(r SweepReport, g SweepGroup) (string, []string) {
	if r.DryRun {
		return "planned", nil
	}
	var errs []string
	for _, id := range g.Duplicates {
		if msg, ok := r.Failed[id]; ok {
			errs = append(errs, fmt.Sprintf("%s: %s", id, msg))
		}
	}
	switch {
	case len(errs) == 0:
		return "deleted", nil
	case len(errs) == len(g.Duplicates):
		return "failed", errs
	default:
		return "partial", errs
	}
}

// SweepSummary is a one-line description of a sweep.
func SweepSummary(r SweepReport) string {
	planned := 0
	for _, g := range r.Groups {
		planned += len(g.Duplicates)
	}
	if r.DryRun {
		return fmt.Sprintf("dry run: %d records scanned, %d groups, %d duplicates would be deleted, %d without key",
			r.Scanned, len(r.Groups), planned, r.Unresolved)
	}
	return fmt.Sprintf("%d records scanned, %d groups, %d deleted, %d failed, %d without key",
		r.Scanned, len(r.Groups), len(r.Deleted), len(r.Failed), r.Unresolved)
}

// RunsTable lists journaled runs.
func RunsTable(runs []journal.Run, wide bool) Data {
	headers := []string{"Run", "Kind", "Mode", "Started", "Summary"}
	if wide {
		headers = append(headers, "Finished")
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := run.ID
		if !wide && len(id) > 13 {
			id = id[:13]
		}
		row := []string{id, run.Kind, run.Mode, run.StartedAt.Local().Format(time.DateTime), run.Summary}
		if wide {
			row = append(row, run.FinishedAt.Local().Format(time.DateTime))
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows}
}

// FailuresTable lists the failures recorded for a run.
func FailuresTable(failures []journal.Failure, wide bool) Data {
	headers := []string{"File", "Line", "Key", "Status", "Error"}
	if wide {
		headers = append(headers, "Targets", "Failed")
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		line := ""
		if f.Line > 0 {
			line = strconv.Itoa(f.Line)
		}
		row := []string{f.File, line, f.Key, f.Status, f.Error}
		if wide {
			row = append(row, strings.Join(f.Targets, ", "), strings.Join(f.Failed, ", "))
		}
		rows = append(rows, row)
	}
	return Data{
		Headers:         headers,
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// MappingTable lists the match key and the mapped fields.
func MappingTable(m *mapping.Mapping) Data {
	rows := [][]string{
		{"(match) " + m.Match.Primary.Column, m.Match.Primary.FieldID.String(), "primary key", "", ""},
	}
	if alt := m.Match.Alternate; alt != nil {
		id := ""
		if alt.FieldID != 0 {
			id = alt.FieldID.String()
		}
		rows = append(rows, []string{"(match) " + alt.Column, id, "alternate key", "", ""})
	}
	for _, f := range m.Fields {
		column := f.Column
		if f.Type == mapping.TypeConstant {
			column = fmt.Sprintf("= %v", f.Value)
		}
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.Backfill {
			flags = append(flags, "backfill")
		}
		def := ""
		if f.Default != nil {
			def = fmt.Sprint(f.Default)
		}
		rows = append(rows, []string{column, f.FieldID.String(), string(f.Type), strings.Join(flags, ","), def})
	}
	return Data{
		Headers:         []string{"Column", "Field ID", "Type", "Flags", "Default"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}
