// Package ingest drives a reconciliation run over a directory of CSV files.
//
// Files are processed one after another. Within a file, rows are handed to a
// bounded worker pool; the reader blocks when the pool is full, and a file is
// finished only after every dispatched row has completed.
package ingest

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/recordsync/internal/source"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/reconciler"
)

// Ingester runs ingestion passes.
type Ingester struct {
	rec  reconciler.Reconciler
	opts *Options
	mu   sync.Mutex // serializes Observer calls
}

// New creates an Ingester.
func New(rec reconciler.Reconciler, opts ...Option) (*Ingester, error) {
	o := Defaults().Apply(opts...)
	if o.Workers < 1 {
		return nil, &errors.ValidationError{Field: "Workers", Value: o.Workers, Message: "must be at least 1"}
	}
	return &Ingester{rec: rec, opts: o}, nil
}

// Options returns the effective options.
func (i *Ingester) Options() Options {
	return *i.opts
}

// Run ingests every CSV file in the input directory. It fails only when the
// directory cannot be listed; unreadable files are reported per file.
func (i *Ingester) Run(ctx context.Context) (*Result, error) {
	if err := i.opts.Validate(); err != nil {
		return nil, err
	}
	ctx = i.runContext(ctx)

	files, err := source.Directory{Path: i.opts.Dir}.Files(ctx)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info().
		Str("dir", i.opts.Dir).
		Int("files", len(files)).
		Str("mode", string(i.rec.Mode())).
		Msg("Starting ingestion")

	return i.IngestFiles(ctx, files), nil
}

// IngestFiles ingests the given files in order.
func (i *Ingester) IngestFiles(ctx context.Context, files []string) *Result {
	ctx = i.runContext(ctx)
	result := &Result{
		RunID:     i.opts.RunID,
		Mode:      i.rec.Mode(),
		StartedAt: time.Now(),
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		fr, failures := i.ingestFile(ctx, path)
		result.Files = append(result.Files, fr)
		result.Counts.Merge(fr.Counts)
		result.Failures = append(result.Failures, failures...)
	}

	result.Duration = time.Since(result.StartedAt)
	logging.FromContext(ctx).Info().
		Int("created", result.Counts.Created).
		Int("skipped", result.Counts.Skipped).
		Int("merged", result.Counts.Merged).
		Int("failed", result.Counts.Failures()).
		Dur("duration", result.Duration).
		Msg("Ingestion finished")
	return result
}

func (i *Ingester) runContext(ctx context.Context) context.Context {
	if i.opts.RunID != "" && logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, i.opts.RunID)
	}
	return ctx
}

func (i *Ingester) ingestFile(ctx context.Context, path string) (FileResult, []reconciler.Outcome) {
	start := time.Now()
	ctx = logging.WithFile(ctx, path)
	logger := logging.FromContext(ctx)
	fr := FileResult{Path: path}

	r, err := source.Open(path)
	if err != nil {
		fr.Err, fr.Error = err, err.Error()
		logger.Error().Err(err).Msg("Cannot read file")
		return fr, nil
	}
	defer func() { _ = r.Close() }()

	logger.Info().Msg("Processing file")

	var (
		mu       sync.Mutex
		failures []reconciler.Outcome
	)
	g := new(errgroup.Group)
	g.SetLimit(i.opts.Workers)

	for ctx.Err() == nil {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fr.Err, fr.Error = err, err.Error()
			logger.Error().Err(err).Msg("Aborting file after read error")
			break
		}

		g.Go(func() error {
			out := i.rec.Process(ctx, row)

			mu.Lock()
			fr.Counts.Add(out)
			if out.Status.Failed() || out.LookupFailed {
				failures = append(failures, out)
			}
			mu.Unlock()

			i.observe(out)
			return nil
		})
	}
	// Rows never fail the group; Wait is the barrier for in-flight rows.
	_ = g.Wait()

	fr.Duration = time.Since(start)
	logger.Info().
		Int("rows", fr.Counts.Rows).
		Dur("duration", fr.Duration).
		Msg("Finished file")
	return fr, failures
}

func (i *Ingester) observe(out reconciler.Outcome) {
	if i.opts.Observer == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.opts.Observer(out)
}
