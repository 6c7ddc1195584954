package ingest

import (
	"github.com/agentstation/recordsync/internal/journal"
	pkgingest "github.com/agentstation/recordsync/pkg/ingest"
	"github.com/agentstation/recordsync/pkg/reconciler"
	"github.com/agentstation/recordsync/pkg/records"
)

// Record saves the run summary and every row needing follow-up.
func Record(j *journal.Journal, result *pkgingest.Result) error {
	c := result.Counts
	run := journal.Run{
		ID:         result.RunID,
		Kind:       "ingest",
		Mode:       string(result.Mode),
		StartedAt:  result.StartedAt,
		FinishedAt: result.StartedAt.Add(result.Duration),
		Counts: map[string]int{
			"rows":          c.Rows,
			"created":       c.Created,
			"skipped":       c.Skipped,
			"merged":        c.Merged,
			"create_failed": c.CreateFailed,
			"merge_failed":  c.MergeFailed,
			"lookup_failed": c.LookupFailed,
			"invalid":       c.Invalid,
			"failed":        c.Failed,
			"files_failed":  result.FilesFailed(),
		},
		Summary: result.Summary(),
	}
	if err := j.SaveRun(run); err != nil {
		return err
	}

	for _, f := range result.Files {
		if f.Err == nil {
			continue
		}
		if err := j.RecordFailure(journal.Failure{
			RunID:  result.RunID,
			File:   f.Path,
			Status: "unreadable",
			Error:  f.Error,
		}); err != nil {
			return err
		}
	}
	for _, o := range result.Failures {
		if err := j.RecordFailure(failure(result.RunID, o)); err != nil {
			return err
		}
	}
	return nil
}

func failure(runID string, o reconciler.Outcome) journal.Failure {
	f := journal.Failure{
		RunID:   runID,
		File:    o.File,
		Line:    o.Line,
		Key:     o.Key,
		Status:  string(o.Status),
		Targets: ids(o.Targets),
		Failed:  ids(o.Failed),
		Error:   o.Reason,
	}
	if o.Err != nil {
		f.Error = o.Err.Error()
	}
	if o.LookupFailed && !o.Status.Failed() {
		// The row went ahead without a duplicate check and may now be a duplicate.
		f.Status = string(o.Status) + " (lookup failed)"
		if o.Created != "" {
			f.Targets = []string{o.Created.String()}
		}
	}
	return f
}

func ids(in []records.ID) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}
