// Package sweep removes duplicate remote records. It enumerates the whole
// collection, groups records by match key, keeps the canonical record of each
// group and deletes the rest. Records without a key are never deleted.
package sweep

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentstation/recordsync/pkg/canonical"
	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

// Lister enumerates every remote record.
type Lister interface {
	All(ctx context.Context) ([]records.Remote, error)
}

// Options controls a sweep.
type Options struct {
	DryRun  bool // Report planned deletions without deleting
	Workers int  // Concurrent deletions
}

// Option is a function that configures sweep Options.
type Option func(*Options)

// WithDryRun reports planned deletions without performing them.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithWorkers bounds concurrent deletions.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// Defaults returns the default sweep options.
func Defaults() *Options {
	return &Options{Workers: constants.DefaultWorkers}
}

// Result summarizes a sweep.
type Result struct {
	Scanned    int               // Records enumerated
	Unresolved int               // Records without a match key
	Groups     []canonical.Group // Groups with at least one duplicate
	Deleted    []records.ID      // Duplicates removed
	Failed     map[records.ID]error
	DryRun     bool
	Duration   time.Duration
}

// Planned returns every duplicate ID scheduled for deletion.
func (r *Result) Planned() []records.ID {
	var ids []records.ID
	for _, g := range r.Groups {
		ids = append(ids, g.DuplicateIDs()...)
	}
	return ids
}

// Sweeper runs dedup sweeps.
type Sweeper struct {
	lister   Lister
	store    records.Store
	resolver *matchkey.Resolver
	opts     *Options
}

// New creates a Sweeper.
func New(lister Lister, store records.Store, resolver *matchkey.Resolver, opts ...Option) *Sweeper {
	o := Defaults()
	for _, opt := range opts {
		opt(o)
	}
	return &Sweeper{lister: lister, store: store, resolver: resolver, opts: o}
}

// Sweep enumerates, groups and deletes duplicates. It returns an error only
// when enumeration fails, in which case nothing is deleted. Individual delete
// failures are reported in the result and do not stop other deletions.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx = logging.WithOperation(ctx, "sweep")
	logger := logging.FromContext(ctx)

	all, err := s.lister.All(ctx)
	if err != nil {
		return nil, err
	}

	groups, unresolved := canonical.GroupByKey(all, s.resolver)
	result := &Result{
		Scanned:    len(all),
		Unresolved: len(unresolved),
		Groups:     groups,
		Failed:     make(map[records.ID]error),
		DryRun:     s.opts.DryRun,
	}

	planned := result.Planned()
	logger.Info().
		Int("scanned", result.Scanned).
		Int("unresolved", result.Unresolved).
		Int("groups", len(result.Groups)).
		Int("duplicates", len(planned)).
		Bool("dry_run", s.opts.DryRun).
		Msg("Sweep planned")

	if !s.opts.DryRun {
		s.delete(ctx, planned, result)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (s *Sweeper) delete(ctx context.Context, ids []records.ID, result *Result) {
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			result.Failed[id] = errors.ErrCanceled
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := s.store.Delete(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			logger := logging.FromContext(logging.WithRecord(ctx, id.String()))
			if err != nil {
				result.Failed[id] = err
				logger.Error().Err(err).Msg("Failed to delete duplicate")
				return nil
			}
			result.Deleted = append(result.Deleted, id)
			logger.Debug().Msg("Deleted duplicate")
			return nil
		})
	}
	_ = g.Wait()
}
