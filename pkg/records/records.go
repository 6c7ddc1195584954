// Package records defines the record shapes exchanged between the input
// source, the reconciliation engine, and the remote record service, plus the
// Store contract every remote adapter implements.
package records

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ID is the opaque, server-assigned identifier of a remote record.
type ID string

// String returns the identifier as a string.
func (id ID) String() string {
	return string(id)
}

// FieldID identifies a field on the remote service.
type FieldID int64

// String returns the field id in decimal form.
func (f FieldID) String() string {
	return strconv.FormatInt(int64(f), 10)
}

// Raw maps column names to values for a single input row.
type Raw map[string]string

// Get returns the value of a column, or "" when absent.
func (r Raw) Get(column string) string {
	return r[column]
}

// Row is a Raw record together with where it came from.
type Row struct {
	File   string
	Line   int
	Values Raw
}

// Remote is a record as stored by the remote service.
type Remote struct {
	ID        ID                `json:"id" yaml:"id"`
	Fields    map[FieldID][]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	CreatedOn time.Time         `json:"created_on" yaml:"created_on"`
	Revision  int               `json:"revision" yaml:"revision"`
}

// Value returns the first value stored for a field.
func (r Remote) Value(field FieldID) (any, bool) {
	values := r.Fields[field]
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

// Text returns the first value of a field rendered as a string.
// Object values are unwrapped through their "value" key.
func (r Remote) Text(field FieldID) string {
	v, ok := r.Value(field)
	if !ok {
		return ""
	}
	return textOf(v)
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		return textOf(t["value"])
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Payload maps field ids to the values sent on create or update.
type Payload map[FieldID]any

// Fields returns the field ids of the payload in ascending order.
func (p Payload) Fields() []FieldID {
	return slices.Sorted(maps.Keys(p))
}

// Filter restricts a query to records whose fields carry the given values.
type Filter map[FieldID]string

// String renders the filter for logs.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for id, v := range f {
		parts = append(parts, id.String()+"="+v)
	}
	return strings.Join(parts, ",")
}

// Store is the contract the reconciliation engine needs from the remote service.
// No operation is retried by implementations; callers own retry policy.
type Store interface {
	// Create stores a new record built from payload.
	Create(ctx context.Context, payload Payload) (*Remote, error)

	// Query returns at most limit records matching filter, skipping offset records.
	// An empty filter matches every record.
	Query(ctx context.Context, filter Filter, limit, offset int) ([]Remote, error)

	// Update writes payload onto an existing record. Fields absent from payload are untouched.
	Update(ctx context.Context, id ID, payload Payload) (*Remote, error)

	// Delete removes a record.
	Delete(ctx context.Context, id ID) error
}

// NormalizeValues turns a payload value into the value list a record stores.
func NormalizeValues(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out
	default:
		return []any{v}
	}
}
