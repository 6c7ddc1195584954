package reconciler

import (
	"strings"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
)

// Mode selects what happens to a row whose key already exists remotely.
type Mode string

const (
	// ModeImport skips rows that already exist.
	ModeImport Mode = "import"
	// ModeBackfill merges backfill fields into every existing match.
	ModeBackfill Mode = "backfill"
)

// ParseMode validates a mode name. Empty means import.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeImport:
		return ModeImport, nil
	case ModeBackfill:
		return ModeBackfill, nil
	default:
		return "", errors.NewValidationError("mode", s, "must be import or backfill")
	}
}

// Action is the reconciliation decision for a row.
type Action int

const (
	// ActionCreate creates a new remote record.
	ActionCreate Action = iota
	// ActionSkip leaves the remote untouched.
	ActionSkip
	// ActionMergeUpdate writes backfill fields onto every matched record.
	ActionMergeUpdate
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionMergeUpdate:
		return "merge_update"
	default:
		return "create"
	}
}

// Decision is an action plus the records it targets.
type Decision struct {
	Action  Action
	Targets []records.ID
}

// Decide applies the reconciliation policy. hasKey reports whether the row
// produced a match key; matches are the remote records sharing it.
//
//	no key             -> create
//	no matches         -> create
//	matches, import    -> skip
//	matches, backfill  -> merge update on every match
func Decide(hasKey bool, matches []records.ID, mode Mode) Decision {
	if !hasKey || len(matches) == 0 {
		return Decision{Action: ActionCreate}
	}
	if mode == ModeBackfill {
		return Decision{Action: ActionMergeUpdate, Targets: matches}
	}
	return Decision{Action: ActionSkip, Targets: matches}
}
