// Package sweep implements the sweep command.
package sweep

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/cmd/output"
	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/records"
	pkgsweep "github.com/agentstation/recordsync/pkg/sweep"
)

// NewCommand creates the sweep command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "sweep",
		GroupID: "core",
		Short:   "Delete duplicate remote records, keeping the earliest of each key",
		Long: `Sweep lists every record in the remote app, groups records by match key and
deletes all but the canonical record of each group. The canonical record is the
earliest created one; on equal creation times the higher revision wins.

Records without a usable key are never deleted. Use --dry-run to see the plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), app.Logger())

			m, err := app.Mapping()
			if err != nil {
				return err
			}
			resolver, err := m.Resolver()
			if err != nil {
				return err
			}
			store, err := app.Store(ctx)
			if err != nil {
				return err
			}
			det, err := app.Detector(ctx)
			if err != nil {
				return err
			}
			j, err := app.Journal()
			if err != nil {
				return err
			}

			runID := journal.NewRunID()
			started := time.Now()
			ctx = logging.WithRunID(ctx, runID)

			result, err := pkgsweep.New(det, store, resolver,
				pkgsweep.WithDryRun(dryRun),
				pkgsweep.WithWorkers(app.Settings().Workers),
			).Sweep(ctx)
			if err != nil {
				return err
			}

			report := output.NewSweepReport(result)
			if err := Record(j, runID, started, report); err != nil {
				return err
			}

			format := output.DetectFormat(app.OutputFormat())
			w := cmd.OutOrStdout()
			if err := output.Write(w, format, report, output.SweepTable(report, format == output.FormatWide)); err != nil {
				return err
			}
			if format.IsTable() {
				fmt.Fprintf(w, "\nrun %s: %s\n", runID, output.SweepSummary(report))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned deletions without deleting")

	return cmd
}

// Record saves the sweep summary and every failed deletion.
func Record(j *journal.Journal, runID string, started time.Time, report output.SweepReport) error {
	planned := 0
	for _, g := range report.Groups {
		planned += len(g.Duplicates)
	}
	mode := ""
	if report.DryRun {
		mode = "dry-run"
	}
	run := journal.Run{
		ID:         runID,
		Kind:       "sweep",
		Mode:       mode,
		StartedAt:  started,
		FinishedAt: started.Add(report.Duration),
		Counts: map[string]int{
			"scanned":       report.Scanned,
			"unresolved":    report.Unresolved,
			"groups":        len(report.Groups),
			"planned":       planned,
			"deleted":       len(report.Deleted),
			"delete_failed": len(report.Failed),
		},
		Summary: output.SweepSummary(report),
	}
	if err := j.SaveRun(run); err != nil {
		return err
	}

	keys := make(map[records.ID]string)
	for _, g := range report.Groups {
		for _, id := range g.Duplicates {
			keys[id] = g.Key
		}
	}
	for _, id := range slices.Sorted(maps.Keys(report.Failed)) {
		if err := j.RecordFailure(journal.Failure{
			RunID:   runID,
			Key:     keys[id],
			Status:  "delete_failed",
			Targets: []string{id.String()},
			Error:   report.Failed[id],
		}); err != nil {
			return err
		}
	}
	return nil
}
