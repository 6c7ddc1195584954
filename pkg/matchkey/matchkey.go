// Package matchkey derives the identity key used to decide whether an input
// row and a remote record describe the same thing. The key is taken from a
// primary field (a property address) and falls back to an alternate field.
// Blank values never form a key.
package matchkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
)

// Normalization controls how a field value is turned into a key.
type Normalization string

const (
	// NormalizeExact compares values byte for byte.
	NormalizeExact Normalization = "exact"
	// NormalizeFold applies NFKC, Unicode case folding, and whitespace collapsing.
	NormalizeFold Normalization = "fold"
	// NormalizeAddress is NormalizeFold with punctuation removed.
	NormalizeAddress Normalization = "address"
)

// ParseNormalization validates a normalization name. Empty means exact.
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case "", NormalizeExact:
		return NormalizeExact, nil
	case NormalizeFold, NormalizeAddress:
		return n, nil
	default:
		return "", errors.NewValidationError("normalize", s, "must be one of: exact, fold, address")
	}
}

// Source tells which configured field a key came from.
type Source int

const (
	// SourcePrimary means the primary field supplied the key.
	SourcePrimary Source = iota
	// SourceAlternate means the primary field was blank and the alternate supplied the key.
	SourceAlternate
)

// String returns the source name.
func (s Source) String() string {
	if s == SourceAlternate {
		return "alternate"
	}
	return "primary"
}

// Field names where a key lives on each side: a CSV column and a remote field id.
type Field struct {
	Column  string          `yaml:"column" json:"column"`
	FieldID records.FieldID `yaml:"field_id,omitempty" json:"field_id,omitempty"`
}

// IsZero reports whether the field is unset.
func (f Field) IsZero() bool {
	return f.Column == "" && f.FieldID == 0
}

// Key is a resolved match key.
type Key struct {
	// Value is the normalized key used for equality.
	Value string
	// Raw is the field value as found, used to build remote filters.
	Raw string
	// Source is the configured field that supplied the key.
	Source Source
	// FieldID is the remote field the key is stored in.
	FieldID records.FieldID
}

// Resolver derives keys from input rows and remote records.
type Resolver struct {
	primary   Field
	alternate Field
	normalize Normalization
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAlternate sets the fallback field consulted when the primary is blank.
func WithAlternate(f Field) Option {
	return func(r *Resolver) {
		r.alternate = f
	}
}

// WithNormalization sets the normalization mode.
func WithNormalization(n Normalization) Option {
	return func(r *Resolver) {
		r.normalize = n
	}
}

// New creates a Resolver keyed on primary.
func New(primary Field, opts ...Option) (*Resolver, error) {
	if primary.Column == "" || primary.FieldID == 0 {
		return nil, errors.NewValidationError("match.primary", primary, "column and field_id are required")
	}
	r := &Resolver{primary: primary, normalize: NormalizeExact}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := ParseNormalization(string(r.normalize)); err != nil {
		return nil, err
	}
	return r, nil
}

// Primary returns the primary field.
func (r *Resolver) Primary() Field {
	return r.primary
}

// Alternate returns the alternate field, which may be zero.
func (r *Resolver) Alternate() Field {
	return r.alternate
}

// Normalization returns the configured normalization mode.
func (r *Resolver) Normalization() Normalization {
	return r.normalize
}

// FromRaw resolves the key of an input row. ok is false when the row has no key.
func (r *Resolver) FromRaw(raw records.Raw) (Key, bool) {
	if v := raw.Get(r.primary.Column); !isBlank(v) {
		return r.key(v, SourcePrimary, r.primary.FieldID), true
	}
	if r.alternate.Column != "" {
		if v := raw.Get(r.alternate.Column); !isBlank(v) {
			return r.key(v, SourceAlternate, r.alternateFieldID()), true
		}
	}
	return Key{}, false
}

// FromRemote resolves the key of a remote record. ok is false when the record has no key.
func (r *Resolver) FromRemote(rec records.Remote) (Key, bool) {
	if v := rec.Text(r.primary.FieldID); !isBlank(v) {
		return r.key(v, SourcePrimary, r.primary.FieldID), true
	}
	if id := r.alternate.FieldID; id != 0 {
		if v := rec.Text(id); !isBlank(v) {
			return r.key(v, SourceAlternate, id), true
		}
	}
	return Key{}, false
}

// alternateFieldID is the remote field holding alternate keys. Without its own
// field id the alternate value is looked up in the primary field.
func (r *Resolver) alternateFieldID() records.FieldID {
	if r.alternate.FieldID != 0 {
		return r.alternate.FieldID
	}
	return r.primary.FieldID
}

func (r *Resolver) key(v string, src Source, field records.FieldID) Key {
	return Key{Value: Normalize(v, r.normalize), Raw: v, Source: src, FieldID: field}
}

// Normalize applies a normalization mode to a value.
func Normalize(v string, mode Normalization) string {
	switch mode {
	case NormalizeFold:
		return fold(v)
	case NormalizeAddress:
		return collapse(strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
				return r
			}
			return ' '
		}, fold(v)))
	default:
		return v
	}
}

func fold(v string) string {
	// Casers carry state and are not safe for concurrent use.
	return collapse(cases.Fold().String(norm.NFKC.String(v)))
}

func collapse(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
