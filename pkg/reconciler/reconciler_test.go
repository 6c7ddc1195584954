package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/pkg/detector"
	pkgerrors "github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
	"github.com/agentstation/recordsync/pkg/mapping"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/records/memory"
)

const (
	fieldAddress records.FieldID = 100
	fieldCity    records.FieldID = 101
	fieldBeds    records.FieldID = 102
	fieldPhone   records.FieldID = 103
	fieldEmail   records.FieldID = 104
)

const testMapping = `
match:
  primary: {column: Address, field_id: 100}
fields:
  - {column: Address, field_id: 100, type: text}
  - {column: City, field_id: 101, type: text}
  - {column: Beds, field_id: 102, type: integer}
  - {column: Primary Phone1, field_id: 103, type: phone, backfill: true}
  - {column: Primary Email1, field_id: 104, type: email, backfill: true}
`

type fixture struct {
	store *memory.Store
	rec   Reconciler
}

func newFixture(t *testing.T, store *memory.Store, opts ...Option) fixture {
	t.Helper()
	m, err := mapping.Parse([]byte(testMapping))
	require.NoError(t, err)
	resolver, err := m.Resolver()
	require.NoError(t, err)

	rec, err := New(store, detector.New(store, resolver), resolver, m, opts...)
	require.NoError(t, err)
	return fixture{store: store, rec: rec}
}

func existing(id, addr string) records.Remote {
	return records.Remote{
		ID:        records.ID(id),
		CreatedOn: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Fields: map[records.FieldID][]any{
			fieldAddress: {addr},
			fieldCity:    {"Old City"},
		},
	}
}

func row(values records.Raw) records.Row {
	return records.Row{File: "leads.csv", Line: 2, Values: values}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		hasKey  bool
		matches []records.ID
		mode    Mode
		want    Action
	}{
		{"no key import", false, []records.ID{"1"}, ModeImport, ActionCreate},
		{"no key backfill", false, nil, ModeBackfill, ActionCreate},
		{"no matches import", true, nil, ModeImport, ActionCreate},
		{"no matches backfill", true, []records.ID{}, ModeBackfill, ActionCreate},
		{"matches import", true, []records.ID{"1", "2"}, ModeImport, ActionSkip},
		{"matches backfill", true, []records.ID{"1", "2"}, ModeBackfill, ActionMergeUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.hasKey, tt.matches, tt.mode)
			assert.Equal(t, tt.want, d.Action)
			if tt.want == ActionMergeUpdate {
				assert.Equal(t, tt.matches, d.Targets)
			}
		})
	}
}

func TestCreateNewRow(t *testing.T) {
	f := newFixture(t, memory.New())

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "123 Main St", "City": "Springfield"}))

	assert.Equal(t, StatusCreated, out.Status)
	assert.Equal(t, ActionCreate, out.Action)
	require.NotEmpty(t, out.Created)

	created, ok := f.store.Get(out.Created)
	require.True(t, ok)
	assert.Equal(t, "123 Main St", created.Text(fieldAddress))
	assert.Equal(t, "Springfield", created.Text(fieldCity))
	assert.Equal(t, 1, f.store.Calls(memory.OpQuery))
}

func TestBlankKeyCreatesWithoutLookup(t *testing.T) {
	f := newFixture(t, memory.New(memory.WithRecords(existing("1", "anything"))))

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "  ", "City": "Nowhere"}))

	assert.Equal(t, StatusCreated, out.Status)
	assert.Empty(t, out.Key)
	assert.Equal(t, 0, f.store.Calls(memory.OpQuery))
	assert.Equal(t, 2, f.store.Len())
}

func TestImportSkipsDuplicates(t *testing.T) {
	f := newFixture(t, memory.New(memory.WithRecords(existing("1", "123 Main St"))))

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "123 Main St", "City": "Springfield"}))

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, []records.ID{"1"}, out.Targets)
	assert.Equal(t, 0, f.store.Calls(memory.OpCreate))
	assert.Equal(t, 0, f.store.Calls(memory.OpUpdate))
}

func TestBackfillMergesIntoEveryMatch(t *testing.T) {
	f := newFixture(t,
		memory.New(memory.WithRecords(existing("A", "123 Main St"), existing("B", "123 Main St"))),
		WithMode(ModeBackfill),
	)

	out := f.rec.Process(context.Background(), row(records.Raw{
		"Address":        "123 Main St",
		"City":           "Springfield",
		"Beds":           "4",
		"Primary Phone1": "555-0100",
	}))

	require.Equal(t, StatusMerged, out.Status)
	assert.ElementsMatch(t, []records.ID{"A", "B"}, out.Targets)
	assert.Equal(t, 2, f.store.Calls(memory.OpUpdate))

	for _, id := range []records.ID{"A", "B"} {
		rec, ok := f.store.Get(id)
		require.True(t, ok)
		assert.Equal(t, "555-0100", rec.Text(fieldPhone))
		assert.Equal(t, "Old City", rec.Text(fieldCity), "non-backfill fields are untouched")
		_, hasBeds := rec.Fields[fieldBeds]
		assert.False(t, hasBeds)
		_, hasEmail := rec.Fields[fieldEmail]
		assert.False(t, hasEmail, "blank backfill cells are not written")
		assert.Equal(t, 1, rec.Revision)
	}
}

func TestBackfillWithNothingToWriteSkips(t *testing.T) {
	f := newFixture(t,
		memory.New(memory.WithRecords(existing("A", "123 Main St"))),
		WithMode(ModeBackfill),
	)

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "123 Main St", "City": "Springfield"}))

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Equal(t, "nothing to backfill", out.Reason)
	assert.Equal(t, 0, f.store.Calls(memory.OpUpdate))
}

func TestPartialMergeFailure(t *testing.T) {
	store := memory.New(
		memory.WithRecords(existing("A", "K"), existing("B", "K")),
		memory.WithFault(func(op memory.Op, id records.ID) error {
			if op == memory.OpUpdate && id == "B" {
				return errors.New("server error")
			}
			return nil
		}),
	)
	f := newFixture(t, store, WithMode(ModeBackfill))

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "K", "Primary Phone1": "555"}))

	assert.Equal(t, StatusMergeFailed, out.Status)
	assert.Equal(t, []records.ID{"B"}, out.Failed)
	assert.Contains(t, out.Reason, "B")
	assert.True(t, pkgerrors.IsRemoteUnavailable(out.Err))

	a, _ := store.Get("A")
	assert.Equal(t, "555", a.Text(fieldPhone))
}

func TestCreateFailureIsReported(t *testing.T) {
	store := memory.New(memory.WithFault(func(op memory.Op, _ records.ID) error {
		if op == memory.OpCreate {
			return errors.New("503")
		}
		return nil
	}))
	f := newFixture(t, store)

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "1 New Rd"}))

	assert.Equal(t, StatusCreateFailed, out.Status)
	assert.True(t, out.Status.Failed())
	assert.Error(t, out.Err)
}

func TestLookupFailure(t *testing.T) {
	failingQueries := func() *memory.Store {
		return memory.New(
			memory.WithRecords(existing("1", "123 Main St")),
			memory.WithFault(func(op memory.Op, _ records.ID) error {
				if op == memory.OpQuery {
					return errors.New("timeout")
				}
				return nil
			}),
		)
	}

	t.Run("degrades to create", func(t *testing.T) {
		f := newFixture(t, failingQueries())
		out := f.rec.Process(context.Background(), row(records.Raw{"Address": "123 Main St"}))

		assert.Equal(t, StatusCreated, out.Status)
		assert.True(t, out.LookupFailed)
		assert.Equal(t, 2, f.store.Len())
	})

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, failingQueries(), WithStrictLookup(true))
		out := f.rec.Process(context.Background(), row(records.Raw{"Address": "123 Main St"}))

		assert.Equal(t, StatusLookupFailed, out.Status)
		assert.True(t, pkgerrors.IsRemoteUnavailable(out.Err))
		assert.Equal(t, 1, f.store.Len())
	})
}

func TestInvalidRow(t *testing.T) {
	f := newFixture(t, memory.New())

	out := f.rec.Process(context.Background(), row(records.Raw{"Address": "9 Elm", "Beds": "many"}))

	assert.Equal(t, StatusInvalid, out.Status)
	assert.True(t, pkgerrors.IsInvalidRecord(out.Err))
	assert.Contains(t, out.Reason, "leads.csv:2")
	assert.Equal(t, 0, f.store.Calls(memory.OpCreate))
}

func TestProcessLogsRowContext(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)
	f := newFixture(t, memory.New())

	f.rec.Process(ctx, row(records.Raw{"Address": "5 Oak"}))

	tl.AssertContains(t, `"match_key":"5 Oak"`)
	tl.AssertContains(t, "Created record")
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	assert.True(t, pkgerrors.IsValidationError(err))

	_, err = ParseMode("merge")
	assert.Error(t, err)
	mode, err := ParseMode("Backfill")
	require.NoError(t, err)
	assert.Equal(t, ModeBackfill, mode)
}
