// Package canonical chooses which record in a group of duplicates survives.
//
// The canonical record is the earliest created one. When creation times are
// equal the record with the higher revision wins, and when both are equal the
// lower ID wins so the choice never depends on input order.
package canonical

import (
	"cmp"
	"slices"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

// Group is a set of remote records sharing one match key.
type Group struct {
	// Key is the normalized match key shared by every member.
	Key string
	// Canonical is the record that survives.
	Canonical records.Remote
	// Duplicates are the remaining members in canonical order.
	Duplicates []records.Remote
}

// Size returns the number of records in the group.
func (g Group) Size() int {
	return 1 + len(g.Duplicates)
}

// DuplicateIDs returns the IDs of the non-canonical members.
func (g Group) DuplicateIDs() []records.ID {
	ids := make([]records.ID, len(g.Duplicates))
	for i, d := range g.Duplicates {
		ids[i] = d.ID
	}
	return ids
}

// Compare orders two records for canonicalization. It returns a negative
// number when a should come before b.
func Compare(a, b records.Remote) int {
	if c := a.CreatedOn.Compare(b.CreatedOn); c != 0 {
		return c
	}
	// Higher revision first.
	if c := cmp.Compare(b.Revision, a.Revision); c != 0 {
		return c
	}
	// Remote IDs are decimal strings, so shorter sorts lower.
	if c := cmp.Compare(len(a.ID), len(b.ID)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Canonicalize orders recs and splits them into the canonical record and its
// duplicates. The input slice is not modified.
func Canonicalize(recs []records.Remote) (Group, error) {
	if len(recs) == 0 {
		return Group{}, errors.NewValidationError("records", nil, "cannot canonicalize an empty group")
	}
	sorted := slices.Clone(recs)
	slices.SortStableFunc(sorted, Compare)
	return Group{Canonical: sorted[0], Duplicates: sorted[1:]}, nil
}

// GroupByKey partitions recs by their resolved match key and canonicalizes
// every key shared by two or more records. Keys held by a single record are
// not duplicates and produce no group. Records without a key are returned
// separately and never grouped.
// Groups are ordered by the creation order of their canonical record.
func GroupByKey(recs []records.Remote, resolver *matchkey.Resolver) ([]Group, []records.Remote) {
	buckets := make(map[string][]records.Remote)
	var keys []string
	var unresolved []records.Remote

	for _, rec := range recs {
		key, ok := resolver.FromRemote(rec)
		if !ok {
			unresolved = append(unresolved, rec)
			continue
		}
		if _, seen := buckets[key.Value]; !seen {
			keys = append(keys, key.Value)
		}
		buckets[key.Value] = append(buckets[key.Value], rec)
	}

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		if len(buckets[k]) < 2 {
			continue
		}
		g, err := Canonicalize(buckets[k])
		if err != nil {
			continue // buckets are never empty
		}
		g.Key = k
		groups = append(groups, g)
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return Compare(a.Canonical, b.Canonical)
	})
	return groups, unresolved
}
