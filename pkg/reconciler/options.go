package reconciler

import (
	"github.com/agentstation/recordsync/pkg/errors"
)

type options struct {
	mode         Mode
	strictLookup bool
}

func defaultOptions() *options {
	return &options{mode: ModeImport}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithMode sets the reconciliation mode.
func WithMode(mode Mode) Option {
	return func(o *options) error {
		if mode != ModeImport && mode != ModeBackfill {
			return &errors.ValidationError{
				Field:   "mode",
				Value:   mode,
				Message: "must be import or backfill",
			}
		}
		o.mode = mode
		return nil
	}
}

// WithStrictLookup marks rows as lookup_failed when the duplicate lookup fails
// instead of creating them.
func WithStrictLookup(strict bool) Option {
	return func(o *options) error {
		o.strictLookup = strict
		return nil
	}
}
