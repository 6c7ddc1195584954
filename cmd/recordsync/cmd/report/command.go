// Package report implements the report command.
package report

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/cmd/output"
	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
)

// Detail is a run together with its recorded failures.
type Detail struct {
	Run      journal.Run       `json:"run" yaml:"run"`
	Failures []journal.Failure `json:"failures" yaml:"failures"`
}

// NewCommand creates the report command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var (
		limit    int
		markdown string
	)

	cmd := &cobra.Command{
		Use:     "report [run-id]",
		GroupID: "management",
		Short:   "List past runs or show the rows a run could not process",
		Long: `Without arguments, report lists the most recent runs from the run journal.
With a run ID (or a unique prefix of one) it shows the run's counts and every
row or record that needs manual follow-up.`,
		Example: `  recordsync report
  recordsync report 0190f0c2
  recordsync report 0190f0c2 -o json
  recordsync report 0190f0c2 --markdown followup.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := app.Journal()
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			wide := format == output.FormatWide
			w := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := j.Runs(limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 && format.IsTable() {
					fmt.Fprintln(w, "No runs recorded")
					return nil
				}
				return output.Write(w, format, runs, output.RunsTable(runs, wide))
			}

			run, err := j.Run(args[0])
			if err != nil {
				return err
			}
			failures, err := j.Failures(run.ID)
			if err != nil {
				return err
			}
			if markdown != "" {
				return writeMarkdown(cmd, markdown, *run, failures)
			}

			detail := Detail{Run: *run, Failures: failures}
			if !format.IsTable() {
				return output.Write(w, format, detail, output.Data{})
			}

			fmt.Fprintf(w, "run %s (%s", run.ID, run.Kind)
			if run.Mode != "" {
				fmt.Fprintf(w, ", %s", run.Mode)
			}
			fmt.Fprintf(w, ")\n%s\n%s\n\n", formatCounts(run.Counts), run.Summary)
			if len(failures) == 0 {
				fmt.Fprintln(w, "No failures recorded")
				return nil
			}
			return output.Write(w, format, failures, output.FailuresTable(failures, wide))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list (0 for all)")
	cmd.Flags().StringVar(&markdown, "markdown", "", "write a run's failures as a markdown worksheet to this file (- for stdout)")

	return cmd
}

func writeMarkdown(cmd *cobra.Command, path string, run journal.Run, failures []journal.Failure) error {
	if path == "-" {
		return output.WriteRemediation(cmd.OutOrStdout(), run, failures)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, constants.FilePermissions)
	if err != nil {
		return errors.WrapIO("create", path, err)
	}
	if err := output.WriteRemediation(f, run, failures); err != nil {
		_ = f.Close()
		return errors.WrapIO("write", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.WrapIO("close", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d failures to %s\n", len(failures), path)
	return nil
}

func formatCounts(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
