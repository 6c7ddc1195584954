// Package journal persists run summaries and per-row failures in a local
// bbolt database so failed rows can be remediated after a run.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
)

var (
	bucketRuns     = []byte("runs")
	bucketFailures = []byte("failures")
)

// Run is the summary of one ingest or sweep run.
type Run struct {
	ID         string         `json:"id" yaml:"id"`
	Kind       string         `json:"kind" yaml:"kind"` // ingest or sweep
	Mode       string         `json:"mode,omitempty" yaml:"mode,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	Counts     map[string]int `json:"counts" yaml:"counts"`
	Summary    string         `json:"summary" yaml:"summary"`
}

// Failure is a row or record that needs manual follow-up.
type Failure struct {
	RunID   string   `json:"run_id" yaml:"run_id"`
	File    string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line    int      `json:"line,omitempty" yaml:"line,omitempty"`
	Key     string   `json:"key,omitempty" yaml:"key,omitempty"`
	Status  string   `json:"status" yaml:"status"`
	Targets []string `json:"targets,omitempty" yaml:"targets,omitempty"`
	Failed  []string `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Journal is a bbolt-backed run journal.
type Journal struct {
	db   *bbolt.DB
	path string
}

// NewRunID returns a new time-ordered run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", filepath.Dir(path), err)
	}
	db, err := bbolt.Open(path, constants.SecureFilePermissions, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}

	j := &Journal{db: db, path: path}
	if err := j.initBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) initBuckets() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketFailures} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.WrapResource("create", "bucket", string(name), err)
			}
		}
		return nil
	})
}

// SaveRun stores or replaces a run summary.
func (j *Journal) SaveRun(run Run) error {
	if run.ID == "" {
		return errors.NewValidationError("id", run.ID, "run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return errors.WrapParse("json", "run", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
	})
}

// Run returns one run. A unique prefix of the ID is accepted.
func (j *Journal) Run(id string) (*Run, error) {
	var (
		run     *Run
		matches int
	)
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		prefix := []byte(id)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			matches++
			run = &Run{}
			if err := json.Unmarshal(v, run); err != nil {
				return errors.WrapParse("json", "run "+string(k), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case matches == 0 || id == "":
		return nil, errors.NewNotFoundError("run", id)
	case matches > 1:
		return nil, errors.NewValidationError("id", id, "ambiguous run id prefix")
	}
	return run, nil
}

// Runs returns up to limit runs, newest first. limit <= 0 returns all.
func (j *Journal) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return errors.WrapParse("json", "run "+string(k), err)
			}
			runs = append(runs, r)
		}
		return nil
	})
	return runs, err
}

// RecordFailure appends a failure to its run.
func (j *Journal) RecordFailure(f Failure) error {
	if f.RunID == "" {
		return errors.NewValidationError("run_id", f.RunID, "run id is required")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return errors.WrapParse("json", "failure", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketFailures).CreateBucketIfNotExists([]byte(f.RunID))
		if err != nil {
			return errors.WrapResource("create", "bucket", f.RunID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

// Failures returns the failures recorded for a run in the order they were recorded.
func (j *Journal) Failures(runID string) ([]Failure, error) {
	var failures []Failure
	err := j.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFailures).Bucket([]byte(runID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var f Failure
			if err := json.Unmarshal(v, &f); err != nil {
				return errors.WrapParse("json", "failure", err)
			}
			failures = append(failures, f)
			return nil
		})
	})
	return failures, err
}

// DefaultPath returns the journal location under the user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(constants.StateDirName, constants.DefaultJournalFile)
	}
	return filepath.Join(home, constants.StateDirName, constants.DefaultJournalFile)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
