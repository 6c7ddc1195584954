package reconciler

import (
	"github.com/agentstation/recordsync/pkg/records"
)

// Status is the terminal state of a processed row.
type Status string

// Row statuses.
const (
	StatusCreated      Status = "created"
	StatusSkipped      Status = "skipped"
	StatusMerged       Status = "merged"
	StatusCreateFailed Status = "create_failed"
	StatusMergeFailed  Status = "merge_failed"
	StatusLookupFailed Status = "lookup_failed"
	StatusInvalid      Status = "invalid"
)

// Failed reports whether the status needs manual follow-up.
func (s Status) Failed() bool {
	switch s {
	case StatusCreateFailed, StatusMergeFailed, StatusLookupFailed, StatusInvalid:
		return true
	}
	return false
}

// Outcome describes what happened to one row.
type Outcome struct {
	File   string
	Line   int
	Key    string // empty when the row had no key
	Action Action
	Status Status

	// Targets are the matched records for skip and merge decisions.
	Targets []records.ID
	// Created is the ID of the record created for the row.
	Created records.ID
	// Failed lists merge targets whose update failed.
	Failed []records.ID
	// LookupFailed is set when the duplicate lookup failed, even if the row
	// went on to be created.
	LookupFailed bool

	Reason string
	Err    error
}
