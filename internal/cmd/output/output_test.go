package output

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/canonical"
	"github.com/agentstation/recordsync/pkg/ingest"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/sweep"
)

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "wide", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDetectFormatExplicit(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
}

func TestTableFormatterData(t *testing.T) {
	var buf bytes.Buffer
	data := Data{
		Headers:         []string{"Name", "Count"},
		Rows:            [][]string{{"alpha", "1"}, {"beta", "22"}},
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, data))
	out := buf.String()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "22")
}

func TestTableFormatterStructSlice(t *testing.T) {
	type row struct {
		RunID  string `json:"run_id"`
		Hidden string `json:"-"`
		Count  int
	}
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, []row{{RunID: "r1", Hidden: "secret", Count: 3}}))
	out := buf.String()
	assert.Contains(t, out, "r1")
	assert.NotContains(t, out, "secret")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON).Format(&buf, map[string]int{"created": 2}))
	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["created"])
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatYAML).Format(&buf, ingest.Counts{Rows: 3, Created: 1}))
	assert.Contains(t, buf.String(), "rows: 3")
	assert.Contains(t, buf.String(), "created: 1")
}

func TestIngestTable(t *testing.T) {
	r := &ingest.Result{
		Counts: ingest.Counts{Rows: 3, Created: 2, Skipped: 1},
		Files: []ingest.FileResult{
			{Path: "a.csv", Counts: ingest.Counts{Rows: 2, Created: 2}},
			{Path: "b.csv", Counts: ingest.Counts{Rows: 1, Skipped: 1}, Error: "boom"},
		},
	}

	data := IngestTable(r, false)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, []string{"a.csv", "2", "2", "0", "0", "0", "0", "0", "0"}, data.Rows[0])
	assert.Equal(t, "TOTAL", data.Rows[2][0])
	assert.Len(t, data.ColumnAlignment, len(data.Headers))

	wide := IngestTable(r, true)
	assert.Equal(t, "boom", wide.Rows[1][len(wide.Headers)-1])
}

func TestSweepReport(t *testing.T) {
	res := &sweep.Result{
		Scanned:    5,
		Unresolved: 1,
		Groups: []canonical.Group{
			{Key: "k1", Canonical: records.Remote{ID: "1"}, Duplicates: []records.Remote{{ID: "2"}, {ID: "3"}}},
			{Key: "k2", Canonical: records.Remote{ID: "5"}, Duplicates: []records.Remote{{ID: "4"}}},
		},
		Deleted: []records.ID{"3", "2"},
		Failed:  map[records.ID]error{"4": stderrors.New("gone")},
	}

	report := NewSweepReport(res)
	want := SweepReport{
		Scanned:    5,
		Unresolved: 1,
		Groups: []SweepGroup{
			{Key: "k1", Canonical: "1", Duplicates: []records.ID{"2", "3"}},
			{Key: "k2", Canonical: "5", Duplicates: []records.ID{"4"}},
		},
		Deleted: []records.ID{"2", "3"},
		Failed:  map[records.ID]string{"4": "gone"},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("NewSweepReport mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "5 records scanned, 2 groups, 2 deleted, 1 failed, 1 without key", SweepSummary(report))

	data := SweepTable(report, true)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, []string{"k1", "1", "2, 3", "deleted", ""}, data.Rows[0])
	assert.Equal(t, "failed", data.Rows[1][3])
	assert.Equal(t, "4: gone", data.Rows[1][4])
}

func TestSweepReportDryRun(t *testing.T) {
	report := NewSweepReport(&sweep.Result{
		Scanned: 2,
		DryRun:  true,
		Groups:  []canonical.Group{{Key: "k", Canonical: records.Remote{ID: "1"}, Duplicates: []records.Remote{{ID: "2"}}}},
	})
	assert.Equal(t, "planned", SweepTable(report, false).Rows[0][3])
	assert.Contains(t, SweepSummary(report), "1 duplicates would be deleted")
}

func TestRunsAndFailuresTables(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	runs := RunsTable([]journal.Run{{ID: "0190f0c2-7b1a-7000-8000-000000000000", Kind: "ingest", Mode: "import", StartedAt: started, Summary: "ok"}}, false)
	require.Len(t, runs.Rows, 1)
	assert.Equal(t, "0190f0c2-7b1a", runs.Rows[0][0])

	failures := FailuresTable([]journal.Failure{{File: "a.csv", Line: 4, Key: "1 main st", Status: "merge_failed", Failed: []string{"9"}}}, true)
	require.Len(t, failures.Rows, 1)
	assert.Equal(t, "4", failures.Rows[0][1])
	assert.Equal(t, "9", failures.Rows[0][6])
}

func TestMappingTable(t *testing.T) {
	m := mapping.Default()
	data := MappingTable(m)
	require.NotEmpty(t, data.Rows)
	assert.Equal(t, "(match) "+m.Match.Primary.Column, data.Rows[0][0])
	assert.Len(t, data.Rows, len(m.Fields)+2)
}

func TestWriteRemediation(t *testing.T) {
	run := journal.Run{
		ID:      "run-1",
		Kind:    "ingest",
		Mode:    "backfill",
		Counts:  map[string]int{"merged": 4, "merge_failed": 1},
		Summary: "5 rows from 1 files",
	}
	failures := []journal.Failure{
		{File: "a.csv", Line: 3, Key: "1 main st", Status: "merge_failed", Targets: []string{"A", "B"}, Failed: []string{"B"}, Error: "update failed | timeout"},
		{File: "a.csv", Line: 9, Status: "invalid", Error: "Beds: not an integer"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRemediation(&buf, run, failures))
	out := buf.String()
	assert.Contains(t, out, "# Run run-1")
	assert.Contains(t, out, "## invalid (1)")
	assert.Contains(t, out, "## merge_failed (1)")
	assert.Contains(t, out, "a.csv:3")
	assert.Contains(t, out, "timeout")
	assert.Less(t, strings.Index(out, "## invalid"), strings.Index(out, "## merge_failed"))
}

func TestWriteRemediationNoFailures(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRemediation(&buf, journal.Run{ID: "r", Kind: "sweep"}, nil))
	assert.Contains(t, buf.String(), "None.")
}
