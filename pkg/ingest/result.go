package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/recordsync/pkg/reconciler"
)

// Counts tallies row outcomes.
type Counts struct {
	Rows         int `json:"rows" yaml:"rows"`
	Created      int `json:"created" yaml:"created"`
	Skipped      int `json:"skipped" yaml:"skipped"`
	Merged       int `json:"merged" yaml:"merged"`
	CreateFailed int `json:"create_failed" yaml:"create_failed"`
	MergeFailed  int `json:"merge_failed" yaml:"merge_failed"`
	LookupFailed int `json:"lookup_failed" yaml:"lookup_failed"`
	Invalid      int `json:"invalid" yaml:"invalid"`

	// Failed counts rows with a failed final status, each row once.
	// LookupFailed is a separate tally that also includes rows which were
	// created or failed to create after the lookup error.
	Failed int `json:"failed" yaml:"failed"`
}

// Add counts one outcome.
func (c *Counts) Add(o reconciler.Outcome) {
	c.Rows++
	if o.Status.Failed() {
		c.Failed++
	}
	switch o.Status {
	case reconciler.StatusCreated:
		c.Created++
	case reconciler.StatusSkipped:
		c.Skipped++
	case reconciler.StatusMerged:
		c.Merged++
	case reconciler.StatusCreateFailed:
		c.CreateFailed++
	case reconciler.StatusMergeFailed:
		c.MergeFailed++
	case reconciler.StatusInvalid:
		c.Invalid++
	}
	if o.LookupFailed {
		c.LookupFailed++
	}
}

// Merge adds other into c.
func (c *Counts) Merge(other Counts) {
	c.Rows += other.Rows
	c.Created += other.Created
	c.Skipped += other.Skipped
	c.Merged += other.Merged
	c.CreateFailed += other.CreateFailed
	c.MergeFailed += other.MergeFailed
	c.LookupFailed += other.LookupFailed
	c.Invalid += other.Invalid
	c.Failed += other.Failed
}

// Failures returns the number of rows that ended in a failed status.
func (c Counts) Failures() int {
	return c.Failed
}

// FileResult is the outcome of one input file.
type FileResult struct {
	Path     string        `json:"path" yaml:"path"`
	Counts   Counts        `json:"counts" yaml:"counts"`
	Err      error         `json:"-" yaml:"-"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Result is the outcome of an ingestion run.
type Result struct {
	RunID     string          `json:"run_id" yaml:"run_id"`
	Mode      reconciler.Mode `json:"mode" yaml:"mode"`
	StartedAt time.Time       `json:"started_at" yaml:"started_at"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
	Counts    Counts          `json:"counts" yaml:"counts"`
	Files     []FileResult    `json:"files" yaml:"files"`

	// Failures holds outcomes of rows that need manual follow-up.
	Failures []reconciler.Outcome `json:"-" yaml:"-"`
}

// FilesFailed returns the number of files aborted by a read error.
func (r *Result) FilesFailed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	c := r.Counts
	parts := []string{
		fmt.Sprintf("%d rows from %d files", c.Rows, len(r.Files)),
		fmt.Sprintf("%d created, %d skipped, %d merged", c.Created, c.Skipped, c.Merged),
	}
	if c.Failed > 0 {
		strict := c.Failed - c.CreateFailed - c.MergeFailed - c.Invalid
		parts = append(parts, fmt.Sprintf("%d failed (create %d, merge %d, lookup %d, invalid %d)",
			c.Failed, c.CreateFailed, c.MergeFailed, strict, c.Invalid))
	}
	if c.LookupFailed > 0 {
		parts = append(parts, fmt.Sprintf("%d lookups failed", c.LookupFailed))
	}
	if n := r.FilesFailed(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d files unreadable", n))
	}
	return strings.Join(parts, "; ")
}
