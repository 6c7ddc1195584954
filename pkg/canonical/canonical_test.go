package canonical

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

const addressField records.FieldID = 267139876

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func rec(id string, key string, offset time.Duration, revision int) records.Remote {
	r := records.Remote{ID: records.ID(id), CreatedOn: base.Add(offset), Revision: revision}
	if key != "" {
		r.Fields = map[records.FieldID][]any{addressField: {map[string]any{"value": key}}}
	}
	return r
}

func resolver(t *testing.T) *matchkey.Resolver {
	t.Helper()
	r, err := matchkey.New(matchkey.Field{Column: "Address", FieldID: addressField})
	require.NoError(t, err)
	return r
}

func TestCanonicalizeEarliestWins(t *testing.T) {
	recs := []records.Remote{
		rec("30", "K1", 2*time.Hour, 0),
		rec("10", "K1", 0, 0),
		rec("20", "K1", time.Hour, 0),
	}

	g, err := Canonicalize(recs)
	require.NoError(t, err)
	assert.Equal(t, records.ID("10"), g.Canonical.ID)
	assert.Equal(t, []records.ID{"20", "30"}, g.DuplicateIDs())
	assert.Equal(t, 3, g.Size())

	assert.Equal(t, records.ID("30"), recs[0].ID, "input must not be reordered")
}

func TestCanonicalizeEqualTimestampsHigherRevisionWins(t *testing.T) {
	g, err := Canonicalize([]records.Remote{
		rec("1", "K2", 0, 3),
		rec("2", "K2", 0, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, records.ID("2"), g.Canonical.ID)
	assert.Equal(t, []records.ID{"1"}, g.DuplicateIDs())
}

func TestCanonicalizeFullTieLowerIDWins(t *testing.T) {
	g, err := Canonicalize([]records.Remote{
		rec("100", "K", 0, 1),
		rec("99", "K", 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, records.ID("99"), g.Canonical.ID)
}

func TestCanonicalizePermutationInvariant(t *testing.T) {
	recs := []records.Remote{
		rec("1", "K", 0, 1),
		rec("2", "K", 0, 4),
		rec("3", "K", time.Minute, 0),
		rec("4", "K", -time.Minute, 0),
		rec("5", "K", 0, 4),
	}
	want, err := Canonicalize(recs)
	require.NoError(t, err)
	assert.Equal(t, records.ID("4"), want.Canonical.ID)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		shuffled := append([]records.Remote(nil), recs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Canonicalize(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want.Canonical.ID, got.Canonical.ID)
		assert.Equal(t, want.DuplicateIDs(), got.DuplicateIDs())
	}
}

func TestCanonicalizeSingleAndEmpty(t *testing.T) {
	g, err := Canonicalize([]records.Remote{rec("7", "K", 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, records.ID("7"), g.Canonical.ID)
	assert.Empty(t, g.Duplicates)

	_, err = Canonicalize(nil)
	assert.True(t, pkgerrors.IsValidationError(err))
}

func TestGroupByKey(t *testing.T) {
	recs := []records.Remote{
		rec("1", "K1", 0, 0),
		rec("2", "K1", time.Hour, 0),
		rec("3", "K1", 2*time.Hour, 0),
		rec("4", "K2", 0, 2),
		rec("5", "K2", 0, 7),
		rec("6", "", 0, 0),
		rec("7", "Solo", 3*time.Hour, 0),
	}

	groups, unresolved := GroupByKey(recs, resolver(t))

	require.Len(t, unresolved, 1)
	assert.Equal(t, records.ID("6"), unresolved[0].ID)

	require.Len(t, groups, 2)
	byKey := map[string]Group{}
	for _, g := range groups {
		byKey[g.Key] = g
	}
	assert.Equal(t, records.ID("1"), byKey["K1"].Canonical.ID)
	assert.Equal(t, []records.ID{"2", "3"}, byKey["K1"].DuplicateIDs())
	assert.Equal(t, records.ID("5"), byKey["K2"].Canonical.ID)
	assert.Equal(t, []records.ID{"4"}, byKey["K2"].DuplicateIDs())
	assert.NotContains(t, byKey, "Solo")
}

func TestGroupByKeyDistinctKeysYieldNoGroups(t *testing.T) {
	groups, unresolved := GroupByKey([]records.Remote{
		rec("1", "Solo", 0, 0),
		rec("2", "Other", time.Hour, 0),
	}, resolver(t))

	assert.Empty(t, groups)
	assert.Empty(t, unresolved)
}
