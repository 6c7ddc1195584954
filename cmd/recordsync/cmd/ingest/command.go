// Package ingest implements the ingest command.
package ingest

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/cmd/output"
	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/internal/source"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	pkgingest "github.com/agentstation/recordsync/pkg/ingest"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/reconciler"
)

// Flags holds the ingest command flags.
type Flags struct {
	Mode         string
	Dir          string
	Watch        bool
	StrictLookup bool
	Workers      int
}

// NewCommand creates the ingest command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "ingest",
		GroupID: "core",
		Short:   "Create remote records from the CSV files in the input directory",
		Long: `Ingest reads every CSV file in the input directory and reconciles each row
against the remote app using the match key from the field mapping.

  import    rows whose key already exists are skipped (default)
  backfill  backfill fields are merged into every existing duplicate

Rows without a usable key are always created. Failed rows are recorded in the
run journal; see "recordsync report".`,
		Example: `  recordsync ingest
  recordsync ingest --mode backfill --dir ./exports
  recordsync ingest --watch -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, flags)
		},
	}

	flags.register(cmd.Flags())

	return cmd
}

func (f *Flags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Mode, "mode", string(reconciler.ModeImport), "reconciliation mode: import or backfill")
	fs.StringVar(&f.Dir, "dir", "", "input directory (default from config input_dir)")
	fs.BoolVar(&f.Watch, "watch", false, "keep running and ingest files as they appear")
	fs.BoolVar(&f.StrictLookup, "strict-lookup", false, "fail rows whose duplicate lookup fails instead of creating them")
	fs.IntVar(&f.Workers, "workers", 0, "rows processed concurrently per file (default from config workers)")
}

func run(cmd *cobra.Command, app appcontext.Interface, flags *Flags) error {
	ctx := logging.WithLogger(cmd.Context(), app.Logger())

	mode, err := reconciler.ParseMode(flags.Mode)
	if err != nil {
		return err
	}
	settings := app.Settings()
	dir := flags.Dir
	if dir == "" {
		dir = settings.InputDir
	}
	workers := flags.Workers
	if workers == 0 {
		workers = settings.Workers
	}
	if workers < 1 {
		return &errors.ValidationError{Field: "workers", Value: workers, Message: "must be at least 1"}
	}

	m, err := app.Mapping()
	if err != nil {
		return err
	}
	resolver, err := m.Resolver()
	if err != nil {
		return err
	}
	// Store authenticates; failure aborts the run before any file is read.
	store, err := app.Store(ctx)
	if err != nil {
		return err
	}
	det, err := app.Detector(ctx)
	if err != nil {
		return err
	}
	rec, err := reconciler.New(store, det, resolver, m,
		reconciler.WithMode(mode),
		reconciler.WithStrictLookup(flags.StrictLookup),
	)
	if err != nil {
		return err
	}
	j, err := app.Journal()
	if err != nil {
		return err
	}

	r := &runner{
		cmd:     cmd,
		app:     app,
		rec:     rec,
		journal: j,
		opts:    []pkgingest.Option{pkgingest.WithDir(dir), pkgingest.WithWorkers(workers)},
	}

	ing, err := r.ingester()
	if err != nil {
		return err
	}
	result, err := ing.Run(ctx)
	if err != nil {
		return err
	}
	if err := r.finish(result); err != nil {
		return err
	}

	if !flags.Watch {
		return nil
	}
	return source.Directory{Path: dir}.Watch(ctx, constants.WatchDebounce, func(ctx context.Context, files []string) {
		ing, err := r.ingester()
		if err != nil {
			app.Logger().Error().Err(err).Msg("Cannot start ingestion")
			return
		}
		if err := r.finish(ing.IngestFiles(ctx, files)); err != nil {
			app.Logger().Error().Err(err).Msg("Cannot record run")
		}
	})
}

type runner struct {
	cmd     *cobra.Command
	app     appcontext.Interface
	rec     reconciler.Reconciler
	journal *journal.Journal
	opts    []pkgingest.Option
}

// ingester returns an Ingester tagged with a fresh run ID.
func (r *runner) ingester() (*pkgingest.Ingester, error) {
	opts := append([]pkgingest.Option{pkgingest.WithRunID(journal.NewRunID())}, r.opts...)
	return pkgingest.New(r.rec, opts...)
}

// finish journals and prints a run result.
func (r *runner) finish(result *pkgingest.Result) error {
	if err := Record(r.journal, result); err != nil {
		return err
	}

	format := output.DetectFormat(r.app.OutputFormat())
	w := r.cmd.OutOrStdout()
	if err := output.Write(w, format, result, output.IngestTable(result, format == output.FormatWide)); err != nil {
		return err
	}
	if format.IsTable() {
		fmt.Fprintf(w, "\nrun %s: %s\n", result.RunID, result.Summary())
	}
	return nil
}
