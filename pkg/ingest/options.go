package ingest

import (
	"os"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/reconciler"
)

// Observer receives every row outcome. Calls are serialized.
type Observer func(reconciler.Outcome)

// Options controls an ingestion run.
type Options struct {
	Dir      string   // Input directory scanned for CSV files
	Workers  int      // Rows reconciled concurrently per file
	RunID    string   // Identifier attached to logs and the journal
	Observer Observer // Optional per-row callback
}

// Option is a function that configures ingest Options.
type Option func(*Options)

// Apply applies the given options.
func (o *Options) Apply(opts ...Option) *Options {
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Defaults returns the default ingest options.
func Defaults() *Options {
	return &Options{
		Dir:     constants.DefaultInputDir,
		Workers: constants.DefaultWorkers,
	}
}

// WithDir sets the input directory.
func WithDir(dir string) Option {
	return func(o *Options) {
		o.Dir = dir
	}
}

// WithWorkers bounds concurrent rows per file.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithRunID tags the run.
func WithRunID(id string) Option {
	return func(o *Options) {
		o.RunID = id
	}
}

// WithObserver installs a per-row callback.
func WithObserver(fn Observer) Option {
	return func(o *Options) {
		o.Observer = fn
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.Workers < 1 {
		return &errors.ValidationError{
			Field:   "Workers",
			Value:   o.Workers,
			Message: "must be at least 1",
		}
	}
	if o.Dir == "" {
		return &errors.ValidationError{
			Field:   "Dir",
			Message: "input directory is required",
		}
	}
	info, err := os.Stat(o.Dir)
	if err != nil {
		return &errors.ValidationError{
			Field:   "Dir",
			Value:   o.Dir,
			Message: err.Error(),
		}
	}
	if !info.IsDir() {
		return &errors.ValidationError{
			Field:   "Dir",
			Value:   o.Dir,
			Message: "not a directory",
		}
	}
	return nil
}
