package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/recordsync/pkg/errors"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestNewRunIDIsTimeOrdered(t *testing.T) {
	a := NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := NewRunID()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestRunsRoundTrip(t *testing.T) {
	j := openTemp(t)

	var ids []string
	for i := range 3 {
		id := NewRunID()
		ids = append(ids, id)
		require.NoError(t, j.SaveRun(Run{
			ID:        id,
			Kind:      "ingest",
			Mode:      "import",
			StartedAt: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
			Counts:    map[string]int{"created": i},
		}))
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := j.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, 2, runs[0].Counts["created"])

	runs, err = j.Runs(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	run, err := j.Run(ids[1])
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counts["created"])
}

func TestRunLookup(t *testing.T) {
	j := openTemp(t)
	require.NoError(t, j.SaveRun(Run{ID: "abc-1", Kind: "sweep"}))
	require.NoError(t, j.SaveRun(Run{ID: "abd-2", Kind: "ingest"}))

	run, err := j.Run("abc")
	require.NoError(t, err)
	assert.Equal(t, "sweep", run.Kind)

	_, err = j.Run("ab")
	assert.True(t, pkgerrors.IsValidationError(err), "ambiguous prefix")

	_, err = j.Run("zzz")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = j.Run("")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestFailures(t *testing.T) {
	j := openTemp(t)

	require.NoError(t, j.RecordFailure(Failure{RunID: "r1", File: "a.csv", Line: 2, Status: "invalid", Error: "bad beds"}))
	require.NoError(t, j.RecordFailure(Failure{RunID: "r1", File: "a.csv", Line: 9, Status: "merge_failed", Failed: []string{"7"}}))
	require.NoError(t, j.RecordFailure(Failure{RunID: "r2", Status: "delete_failed"}))

	failures, err := j.Failures("r1")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, 2, failures[0].Line)
	assert.Equal(t, []string{"7"}, failures[1].Failed)

	failures, err = j.Failures("missing")
	require.NoError(t, err)
	assert.Empty(t, failures)

	assert.Error(t, j.RecordFailure(Failure{}))
	assert.Error(t, j.SaveRun(Run{}))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.SaveRun(Run{ID: "r1", Kind: "ingest"}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	run, err := j.Run("r1")
	require.NoError(t, err)
	assert.Equal(t, "ingest", run.Kind)
}
