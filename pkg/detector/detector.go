// Package detector finds remote records that share a match key with an input
// row, and enumerates the whole remote collection for the dedup sweep.
package detector

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

// Detector queries a records.Store for duplicates.
type Detector struct {
	store    records.Store
	resolver *matchkey.Resolver

	queryLimit   int
	pageSize     int
	queryRetries uint64
	retryBase    time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithQueryLimit caps the number of records a single match lookup returns.
func WithQueryLimit(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.queryLimit = n
		}
	}
}

// WithPageSize sets the page size used by All.
func WithPageSize(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.pageSize = n
		}
	}
}

// WithQueryRetries retries failed queries with exponential backoff.
// Zero disables retries. Mutations are never retried here.
func WithQueryRetries(n int, base time.Duration) Option {
	return func(d *Detector) {
		if n > 0 {
			d.queryRetries = uint64(n)
		}
		if base > 0 {
			d.retryBase = base
		}
	}
}

// New creates a Detector.
func New(store records.Store, resolver *matchkey.Resolver, opts ...Option) *Detector {
	d := &Detector{
		store:      store,
		resolver:   resolver,
		queryLimit: constants.DefaultQueryLimit,
		pageSize:   constants.DefaultPageSize,
		retryBase:  constants.RetryBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindMatches returns the IDs of remote records whose key equals key.
//
// On failure it returns an empty set together with a RemoteUnavailable error.
// Callers that treat a failed lookup as "no matches" can ignore the error
// after counting it.
func (d *Detector) FindMatches(ctx context.Context, key matchkey.Key) ([]records.ID, error) {
	filter := records.Filter{key.FieldID: key.Raw}

	var found []records.Remote
	err := d.withRetry(ctx, func(ctx context.Context) error {
		var err error
		found, err = d.store.Query(ctx, filter, d.queryLimit, 0)
		return err
	})
	if err != nil {
		if !errors.IsRemoteUnavailable(err) {
			err = errors.WrapAPI("query", filter.String(), err)
		}
		return []records.ID{}, err
	}

	// Remote text filters may match substrings; only exact key matches count.
	mode := d.resolver.Normalization()
	ids := make([]records.ID, 0, len(found))
	for _, rec := range found {
		if matchkey.Normalize(rec.Text(key.FieldID), mode) == key.Value {
			ids = append(ids, rec.ID)
		}
	}

	logging.FromContext(ctx).Debug().
		Str("filter", filter.String()).
		Int("returned", len(found)).
		Int("matches", len(ids)).
		Msg("Duplicate lookup")
	return ids, nil
}

// All pages through every remote record until an empty page is returned.
func (d *Detector) All(ctx context.Context) ([]records.Remote, error) {
	var all []records.Remote
	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page []records.Remote
		err := d.withRetry(ctx, func(ctx context.Context) error {
			var err error
			page, err = d.store.Query(ctx, nil, d.pageSize, offset)
			return err
		})
		if err != nil {
			return nil, errors.WrapResource("list", "records", "", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		offset += len(page)

		logging.FromContext(ctx).Debug().
			Int("offset", offset).
			Int("fetched", len(all)).
			Msg("Fetched page")
	}
	return all, nil
}

func (d *Detector) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if d.queryRetries == 0 {
		return fn(ctx)
	}
	backoff := retry.WithCappedDuration(constants.MaxRetryBackoff,
		retry.WithMaxRetries(d.queryRetries, retry.NewExponential(d.retryBase)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
