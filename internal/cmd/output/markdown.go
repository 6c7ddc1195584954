package output

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	md "github.com/nao1215/markdown"

	"github.com/agentstation/recordsync/internal/journal"
)

// WriteRemediation writes a markdown worksheet listing every failure of a
// run, grouped by status, for manual follow-up.
func WriteRemediation(w io.Writer, run journal.Run, failures []journal.Failure) error {
	doc := md.NewMarkdown(w)
	doc.H1(fmt.Sprintf("Run %s", run.ID))

	details := []string{
		"Kind: " + run.Kind,
		"Started: " + run.StartedAt.UTC().Format(time.RFC3339),
		"Finished: " + run.FinishedAt.UTC().Format(time.RFC3339),
	}
	if run.Mode != "" {
		details = append(details, "Mode: "+run.Mode)
	}
	doc.BulletList(details...)
	doc.PlainText(run.Summary).LF()

	counts := make([][]string, 0, len(run.Counts))
	for _, k := range slices.Sorted(maps.Keys(run.Counts)) {
		counts = append(counts, []string{k, fmt.Sprint(run.Counts[k])})
	}
	doc.Table(md.TableSet{Header: []string{"Outcome", "Count"}, Rows: counts})

	if len(failures) == 0 {
		doc.H2("Failures").PlainText("None.")
		return doc.Build()
	}

	byStatus := make(map[string][]journal.Failure)
	for _, f := range failures {
		byStatus[f.Status] = append(byStatus[f.Status], f)
	}
	for _, status := range slices.Sorted(maps.Keys(byStatus)) {
		group := byStatus[status]
		doc.H2(fmt.Sprintf("%s (%d)", status, len(group)))

		rows := make([][]string, 0, len(group))
		for _, f := range group {
			location := f.File
			if f.Line > 0 {
				location = fmt.Sprintf("%s:%d", f.File, f.Line)
			}
			rows = append(rows, []string{
				location,
				f.Key,
				strings.Join(f.Targets, ", "),
				strings.Join(f.Failed, ", "),
				markdownCell(f.Error),
			})
		}
		doc.Table(md.TableSet{
			Header: []string{"Location", "Key", "Targets", "Failed", "Error"},
			Rows:   rows,
		})
	}
	return doc.Build()
}

// markdownCell keeps a value on one table row.
func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
