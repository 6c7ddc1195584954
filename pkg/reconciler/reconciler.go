// Package reconciler decides, for each input row, whether to create a remote
// record, skip it, or merge backfill fields into existing duplicates, and then
// carries the decision out.
package reconciler

import (
	"context"
	"strings"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

// Finder looks up remote records sharing a match key.
type Finder interface {
	FindMatches(ctx context.Context, key matchkey.Key) ([]records.ID, error)
}

// PayloadBuilder turns a row into create and merge payloads.
type PayloadBuilder interface {
	CreatePayload(raw records.Raw) (records.Payload, error)
	BackfillPayload(raw records.Raw) (records.Payload, error)
}

// Reconciler processes rows against the remote store.
type Reconciler interface {
	// Process reconciles a single row. Failures are reported in the outcome.
	Process(ctx context.Context, row records.Row) Outcome
	// Mode returns the configured mode.
	Mode() Mode
}

type reconciler struct {
	store    records.Store
	finder   Finder
	resolver *matchkey.Resolver
	builder  PayloadBuilder
	opts     *options
}

// New creates a Reconciler.
func New(store records.Store, finder Finder, resolver *matchkey.Resolver, builder PayloadBuilder, opts ...Option) (Reconciler, error) {
	if store == nil || finder == nil || resolver == nil || builder == nil {
		return nil, &errors.ValidationError{Field: "reconciler", Message: "store, finder, resolver and builder are required"}
	}
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	return &reconciler{store: store, finder: finder, resolver: resolver, builder: builder, opts: o}, nil
}

func (r *reconciler) Mode() Mode {
	return r.opts.mode
}

func (r *reconciler) Process(ctx context.Context, row records.Row) Outcome {
	out := Outcome{File: row.File, Line: row.Line}

	key, hasKey := r.resolver.FromRaw(row.Values)
	if hasKey {
		out.Key = key.Value
	}
	ctx = logging.WithRow(ctx, row.Line, out.Key)
	logger := logging.FromContext(ctx)

	var matches []records.ID
	if hasKey {
		var err error
		matches, err = r.finder.FindMatches(ctx, key)
		if err != nil {
			out.LookupFailed = true
			if r.opts.strictLookup {
				out.Status = StatusLookupFailed
				out.Reason = "duplicate lookup failed"
				out.Err = err
				logger.Error().Err(err).Msg("Duplicate lookup failed")
				return out
			}
			logger.Warn().Err(err).Msg("Duplicate lookup failed, treating row as new")
			matches = nil
		}
	}

	decision := Decide(hasKey, matches, r.opts.mode)
	out.Action = decision.Action
	out.Targets = decision.Targets

	switch decision.Action {
	case ActionSkip:
		out.Status = StatusSkipped
		out.Reason = "duplicate"
		logger.Info().Int("matches", len(matches)).Msg("Skipping duplicate row")
	case ActionMergeUpdate:
		r.merge(ctx, row, &out)
	default:
		r.create(ctx, row, &out)
	}
	return out
}

func (r *reconciler) create(ctx context.Context, row records.Row, out *Outcome) {
	logger := logging.FromContext(ctx)

	payload, err := r.builder.CreatePayload(row.Values)
	if err != nil {
		r.invalid(ctx, row, out, err)
		return
	}

	rec, err := r.store.Create(ctx, payload)
	if err != nil {
		out.Status = StatusCreateFailed
		out.Reason = "create failed"
		out.Err = err
		logger.Error().Err(err).Msg("Failed to create record")
		return
	}

	out.Status = StatusCreated
	out.Created = rec.ID
	logger.Info().Str("record_id", rec.ID.String()).Msg("Created record")
}

func (r *reconciler) merge(ctx context.Context, row records.Row, out *Outcome) {
	logger := logging.FromContext(ctx)

	payload, err := r.builder.BackfillPayload(row.Values)
	if err != nil {
		r.invalid(ctx, row, out, err)
		return
	}
	if len(payload) == 0 {
		out.Action = ActionSkip
		out.Status = StatusSkipped
		out.Reason = "nothing to backfill"
		logger.Info().Msg("Row has no backfill values")
		return
	}

	var errs []error
	for _, id := range out.Targets {
		if _, err := r.store.Update(ctx, id, payload); err != nil {
			out.Failed = append(out.Failed, id)
			errs = append(errs, errors.WrapResource("update", "record", id.String(), err))
			logging.FromContext(logging.WithRecord(ctx, id.String())).
				Error().Err(err).Msg("Failed to merge into record")
		}
	}

	if len(out.Failed) > 0 {
		out.Status = StatusMergeFailed
		out.Reason = "update failed for " + joinIDs(out.Failed)
		out.Err = errors.Join(errs...)
		return
	}
	out.Status = StatusMerged
	logger.Info().
		Int("targets", len(out.Targets)).
		Int("fields", len(payload)).
		Msg("Merged backfill fields")
}

func (r *reconciler) invalid(ctx context.Context, row records.Row, out *Outcome, err error) {
	var ire *errors.InvalidRecordError
	if errors.As(err, &ire) {
		ire.Path, ire.Line = row.File, row.Line
	}
	out.Status = StatusInvalid
	out.Reason = err.Error()
	out.Err = err
	logging.FromContext(ctx).Warn().Err(err).Msg("Invalid row")
}

func joinIDs(ids []records.ID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return strings.Join(s, ",")
}
