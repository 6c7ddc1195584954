// Package memory provides an in-memory records.Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
)

// Op names a store operation for fault injection and call accounting.
type Op string

// Store operations.
const (
	OpCreate Op = "create"
	OpQuery  Op = "query"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// FaultFunc returns a non-nil error to make an operation fail.
// id is empty for create and query.
type FaultFunc func(op Op, id records.ID) error

// Option is a function that configures a Store
type Option func(*Store)

// WithClock sets the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithFault installs a fault injector.
func WithFault(fault FaultFunc) Option {
	return func(s *Store) {
		s.fault = fault
	}
}

// WithRecords seeds the store. Seeded records keep their IDs, timestamps, and revisions.
func WithRecords(recs ...records.Remote) Option {
	return func(s *Store) {
		for _, r := range recs {
			s.put(r)
		}
	}
}

// Store is a concurrency-safe in-memory implementation of records.Store.
// Query matches filter values by exact equality of a field's first value.
type Store struct {
	mu      sync.RWMutex
	records map[records.ID]records.Remote
	order   []records.ID
	nextID  int
	now     func() time.Time
	fault   FaultFunc
	calls   map[Op]int
}

var _ records.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[records.ID]records.Remote),
		nextID:  1,
		now:     time.Now,
		calls:   make(map[Op]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) put(r records.Remote) {
	if _, exists := s.records[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.records[r.ID] = copyRecord(r)
}

func (s *Store) enter(op Op, id records.ID) error {
	s.calls[op]++
	if s.fault != nil {
		if err := s.fault(op, id); err != nil {
			return errors.WrapAPI(string(op), "memory", err)
		}
	}
	return nil
}

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, payload records.Payload) (*records.Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpCreate, ""); err != nil {
		return nil, err
	}

	id := s.allocateID()
	rec := records.Remote{
		ID:        id,
		Fields:    make(map[records.FieldID][]any, len(payload)),
		CreatedOn: s.now(),
		Revision:  0,
	}
	for field, v := range payload {
		rec.Fields[field] = records.NormalizeValues(v)
	}
	s.put(rec)

	out := copyRecord(rec)
	return &out, nil
}

func (s *Store) allocateID() records.ID {
	for {
		id := records.ID(strconv.Itoa(s.nextID))
		s.nextID++
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

// Query implements records.Store.
func (s *Store) Query(ctx context.Context, filter records.Filter, limit, offset int) ([]records.Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpQuery, ""); err != nil {
		return nil, err
	}

	var matched []records.Remote
	for _, id := range s.order {
		rec := s.records[id]
		if matches(rec, filter) {
			matched = append(matched, rec)
		}
	}

	if offset >= len(matched) {
		return []records.Remote{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]records.Remote, len(matched))
	for i, rec := range matched {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func matches(rec records.Remote, filter records.Filter) bool {
	for field, want := range filter {
		if rec.Text(field) != want {
			return false
		}
	}
	return true
}

// Update implements records.Store.
func (s *Store) Update(ctx context.Context, id records.ID, payload records.Payload) (*records.Remote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpUpdate, id); err != nil {
		return nil, err
	}

	rec, ok := s.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("record", id.String())
	}
	rec = copyRecord(rec)
	for field, v := range payload {
		rec.Fields[field] = records.NormalizeValues(v)
	}
	rec.Revision++
	s.records[id] = rec

	out := copyRecord(rec)
	return &out, nil
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id records.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpDelete, id); err != nil {
		return err
	}

	if _, ok := s.records[id]; !ok {
		return errors.NewNotFoundError("record", id.String())
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of a stored record.
func (s *Store) Get(id records.ID) (records.Remote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return records.Remote{}, false
	}
	return copyRecord(rec), true
}

// All returns copies of every stored record in insertion order.
func (s *Store) All() []records.Remote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]records.Remote, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRecord(s.records[id]))
	}
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Calls returns how many times an operation was invoked, including failed calls.
func (s *Store) Calls(op Op) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// String summarizes the store for test failure messages.
func (s *Store) String() string {
	return fmt.Sprintf("memory.Store{records: %d}", s.Len())
}

func copyRecord(r records.Remote) records.Remote {
	out := r
	out.Fields = make(map[records.FieldID][]any, len(r.Fields))
	for field, values := range r.Fields {
		out.Fields[field] = append([]any(nil), values...)
	}
	return out
}
