package sweep

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/internal/appcontext"
	"github.com/agentstation/recordsync/internal/journal"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/records/memory"
)

const addressField records.FieldID = 267139876

func seeded(fault memory.FaultFunc) *memory.Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := func(id, addr string, offset time.Duration, rev int) records.Remote {
		fields := map[records.FieldID][]any{}
		if addr != "" {
			fields[addressField] = []any{addr}
		}
		return records.Remote{ID: records.ID(id), Fields: fields, CreatedOn: base.Add(offset), Revision: rev}
	}
	opts := []memory.Option{memory.WithRecords(
		rec("1", "K1", 0, 1),
		rec("2", "K1", time.Hour, 1),
		rec("3", "K1", 2*time.Hour, 1),
		rec("4", "K2", 0, 2),
		rec("5", "K2", 0, 5),
		rec("6", "", 0, 1),
	)}
	if fault != nil {
		opts = append(opts, memory.WithFault(fault))
	}
	return memory.New(opts...)
}

func run(t *testing.T, store *memory.Store, j *journal.Journal, args ...string) (string, error) {
	t.Helper()
	app := &appcontext.Mock{
		StoreFunc:        func(context.Context) (records.Store, error) { return store, nil },
		JournalFunc:      func() (*journal.Journal, error) { return j, nil },
		SettingsFunc:     func() appcontext.Settings { return appcontext.Settings{Workers: 2} },
		OutputFormatFunc: func() string { return "table" },
	}
	var out bytes.Buffer
	cmd := NewCommand(app)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(t.TempDir() + "/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSweepDeletesDuplicates(t *testing.T) {
	store := seeded(nil)
	j := openJournal(t)

	out, err := run(t, store, j)
	require.NoError(t, err)

	for _, id := range []records.ID{"2", "3", "4"} {
		_, ok := store.Get(id)
		assert.False(t, ok, "record %s should be deleted", id)
	}
	for _, id := range []records.ID{"1", "5", "6"} {
		_, ok := store.Get(id)
		assert.True(t, ok, "record %s should survive", id)
	}
	assert.Contains(t, out, "6 records scanned, 2 groups, 3 deleted, 0 failed, 1 without key")

	runs, err := j.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sweep", runs[0].Kind)
	assert.Equal(t, 3, runs[0].Counts["deleted"])
}

func TestSweepDryRunDeletesNothing(t *testing.T) {
	store := seeded(nil)
	j := openJournal(t)

	out, err := run(t, store, j, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, 6, store.Len())
	assert.Equal(t, 0, store.Calls(memory.OpDelete))
	assert.Contains(t, out, "3 duplicates would be deleted")

	runs, err := j.Runs(0)
	require.NoError(t, err)
	assert.Equal(t, "dry-run", runs[0].Mode)
}

func TestSweepJournalsFailedDeletes(t *testing.T) {
	store := seeded(func(op memory.Op, id records.ID) error {
		if op == memory.OpDelete && id == "3" {
			return stderrors.New("locked")
		}
		return nil
	})
	j := openJournal(t)

	_, err := run(t, store, j)
	require.NoError(t, err)

	runs, err := j.Runs(1)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].Counts["delete_failed"])
	failures, err := j.Failures(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "delete_failed", failures[0].Status)
	assert.Equal(t, []string{"3"}, failures[0].Targets)
	assert.Equal(t, "K1", failures[0].Key)
}

func TestSweepEnumerationFailureDeletesNothing(t *testing.T) {
	store := seeded(func(op memory.Op, _ records.ID) error {
		if op == memory.OpQuery {
			return stderrors.New("down")
		}
		return nil
	})
	j := openJournal(t)

	_, err := run(t, store, j)
	require.Error(t, err)
	assert.Equal(t, 0, store.Calls(memory.OpDelete))
}
