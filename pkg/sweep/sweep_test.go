package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/pkg/detector"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/records/memory"
)

const addressField records.FieldID = 267139876

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(id, key string, offset time.Duration, revision int) records.Remote {
	r := records.Remote{ID: records.ID(id), CreatedOn: base.Add(offset), Revision: revision}
	if key != "" {
		r.Fields = map[records.FieldID][]any{addressField: {map[string]any{"value": key}}}
	}
	return r
}

// fiveRecords holds three K1 records at distinct times and two K2 records
// created at the same instant with revisions 2 and 7.
func fiveRecords() []records.Remote {
	return []records.Remote{
		rec("1", "K1", 0, 0),
		rec("2", "K1", time.Hour, 0),
		rec("3", "K1", 2*time.Hour, 0),
		rec("4", "K2", 0, 2),
		rec("5", "K2", 0, 7),
	}
}

func newSweeper(t *testing.T, store *memory.Store, opts ...Option) *Sweeper {
	t.Helper()
	resolver, err := matchkey.New(matchkey.Field{Column: "Address", FieldID: addressField})
	require.NoError(t, err)
	return New(detector.New(store, resolver, detector.WithPageSize(2)), store, resolver, opts...)
}

func TestSweepDeletesLaterDuplicates(t *testing.T) {
	store := memory.New(memory.WithRecords(fiveRecords()...))

	result, err := newSweeper(t, store).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Scanned)
	assert.ElementsMatch(t, []records.ID{"2", "3", "4"}, result.Deleted)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 2, store.Len())

	_, ok := store.Get("1")
	assert.True(t, ok, "earliest K1 survives")
	_, ok = store.Get("5")
	assert.True(t, ok, "higher revision K2 survives")
}

func TestSweepNeverDeletesUnresolvedRecords(t *testing.T) {
	recs := append(fiveRecords(), rec("6", "", 0, 0), rec("7", "", time.Hour, 0), rec("8", "  ", 0, 0))
	store := memory.New(memory.WithRecords(recs...))

	result, err := newSweeper(t, store).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Unresolved)
	for _, id := range []records.ID{"6", "7", "8"} {
		_, ok := store.Get(id)
		assert.True(t, ok, "record %s must not be deleted", id)
		assert.NotContains(t, result.Deleted, id)
	}
}

func TestSweepDryRun(t *testing.T) {
	store := memory.New(memory.WithRecords(fiveRecords()...))

	result, err := newSweeper(t, store, WithDryRun(true)).Sweep(context.Background())
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.ElementsMatch(t, []records.ID{"2", "3", "4"}, result.Planned())
	assert.Empty(t, result.Deleted)
	assert.Equal(t, 5, store.Len())
	assert.Equal(t, 0, store.Calls(memory.OpDelete))
}

func TestSweepContinuesPastDeleteFailures(t *testing.T) {
	store := memory.New(
		memory.WithRecords(fiveRecords()...),
		memory.WithFault(func(op memory.Op, id records.ID) error {
			if op == memory.OpDelete && id == "2" {
				return errors.New("locked")
			}
			return nil
		}),
	)

	result, err := newSweeper(t, store, WithWorkers(1)).Sweep(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []records.ID{"3", "4"}, result.Deleted)
	require.Contains(t, result.Failed, records.ID("2"))
	assert.Equal(t, 3, store.Len())
}

func TestSweepEnumerationFailureDeletesNothing(t *testing.T) {
	queries := 0
	store := memory.New(
		memory.WithRecords(fiveRecords()...),
		memory.WithFault(func(op memory.Op, _ records.ID) error {
			if op == memory.OpQuery {
				queries++
				if queries == 2 {
					return errors.New("page failed")
				}
			}
			return nil
		}),
	)

	result, err := newSweeper(t, store).Sweep(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 0, store.Calls(memory.OpDelete))
	assert.Equal(t, 5, store.Len())
}

func TestSweepNoDuplicates(t *testing.T) {
	store := memory.New(memory.WithRecords(rec("1", "A", 0, 0), rec("2", "B", 0, 0)))

	result, err := newSweeper(t, store).Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Groups)
	assert.Empty(t, result.Deleted)
}
