// Package mapping describes how CSV columns become remote record fields.
//
// A mapping is a YAML document validated against an embedded JSON Schema. It
// names the match key fields and lists every remote field with its type and
// options. The built-in default reproduces the property lead app layout.
package mapping

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/matchkey"
	"github.com/agentstation/recordsync/pkg/records"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed default.yaml
var defaultYAML []byte

const schemaURL = "https://recordsync.local/mapping.schema.json"

// Type is the kind of a mapped field.
type Type string

// Field types.
const (
	TypeText     Type = "text"
	TypeInteger  Type = "integer"
	TypeNumber   Type = "number"
	TypePhone    Type = "phone"
	TypeEmail    Type = "email"
	TypeCategory Type = "category"
	TypeDate     Type = "date"
	TypeConstant Type = "constant"
)

// Field maps one CSV column (or a constant) onto a remote field.
type Field struct {
	Column    string           `yaml:"column,omitempty" json:"column,omitempty"`
	FieldID   records.FieldID  `yaml:"field_id" json:"field_id"`
	Type      Type             `yaml:"type" json:"type"`
	Required  bool             `yaml:"required,omitempty" json:"required,omitempty"`
	Backfill  bool             `yaml:"backfill,omitempty" json:"backfill,omitempty"`
	Default   any              `yaml:"default,omitempty" json:"default,omitempty"`
	Value     any              `yaml:"value,omitempty" json:"value,omitempty"`
	PhoneType string           `yaml:"phone_type,omitempty" json:"phone_type,omitempty"`
	EmailType string           `yaml:"email_type,omitempty" json:"email_type,omitempty"`
	Options   map[string]int64 `yaml:"options,omitempty" json:"options,omitempty"`
	Layout    string           `yaml:"layout,omitempty" json:"layout,omitempty"`
}

// Match configures the match key.
type Match struct {
	Primary    matchkey.Field  `yaml:"primary" json:"primary"`
	Alternate  *matchkey.Field `yaml:"alternate,omitempty" json:"alternate,omitempty"`
	Normalize  string          `yaml:"normalize,omitempty" json:"normalize,omitempty"`
	QueryLimit int             `yaml:"query_limit,omitempty" json:"query_limit,omitempty"`
}

// Mapping is a complete field mapping.
type Mapping struct {
	Match  Match   `yaml:"match" json:"match"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Default returns the built-in mapping.
func Default() *Mapping {
	m, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in mapping is invalid: %v", err))
	}
	return m
}

// DefaultYAML returns the built-in mapping document.
func DefaultYAML() []byte {
	return bytes.Clone(defaultYAML)
}

// Load reads and validates a mapping file.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, errors.NewConfigError("mapping", path, err)
	}
	return m, nil
}

// LoadOrDefault loads path when it exists and falls back to the built-in mapping otherwise.
func LoadOrDefault(path string) (*Mapping, bool, error) {
	if path == "" {
		return Default(), true, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), true, nil
	}
	m, err := Load(path)
	return m, false, err
}

// Parse validates a YAML mapping document and decodes it.
func Parse(data []byte) (*Mapping, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ValidateDocument checks a YAML mapping document against the mapping schema.
func ValidateDocument(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return errors.WrapParse("yaml", "", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return errors.WrapParse("json", "", err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(inst); err != nil {
		return errors.WrapValidation("mapping", err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, errors.WrapParse("json", "schema.json", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, errors.WrapParse("json", "schema.json", err)
	}
	return c.Compile(schemaURL)
}

// Validate checks rules the schema cannot express.
func (m *Mapping) Validate() error {
	seen := make(map[records.FieldID]bool, len(m.Fields))
	for _, f := range m.Fields {
		if seen[f.FieldID] {
			return errors.NewValidationError("fields", f.FieldID, fmt.Sprintf("field_id %d is mapped more than once", f.FieldID))
		}
		seen[f.FieldID] = true

		if f.Type == TypeCategory && len(f.Options) == 0 {
			return errors.NewValidationError("fields", f.FieldID, "category fields need options")
		}
		if f.Backfill && f.Type == TypeConstant {
			return errors.NewValidationError("fields", f.FieldID, "constant fields cannot be backfilled")
		}
	}
	if _, err := matchkey.ParseNormalization(m.Match.Normalize); err != nil {
		return err
	}
	return nil
}

// Resolver builds the match key resolver described by the mapping.
func (m *Mapping) Resolver() (*matchkey.Resolver, error) {
	norm, err := matchkey.ParseNormalization(m.Match.Normalize)
	if err != nil {
		return nil, err
	}
	opts := []matchkey.Option{matchkey.WithNormalization(norm)}
	if m.Match.Alternate != nil {
		opts = append(opts, matchkey.WithAlternate(*m.Match.Alternate))
	}
	return matchkey.New(m.Match.Primary, opts...)
}

// QueryLimit returns the duplicate lookup limit.
func (m *Mapping) QueryLimit() int {
	if m.Match.QueryLimit > 0 {
		return m.Match.QueryLimit
	}
	return constants.DefaultQueryLimit
}

// BackfillFields returns the ids of fields a merge update may write.
func (m *Mapping) BackfillFields() []records.FieldID {
	var ids []records.FieldID
	for _, f := range m.Fields {
		if f.Backfill {
			ids = append(ids, f.FieldID)
		}
	}
	return ids
}

// Columns returns the distinct CSV columns the mapping reads, in mapping order.
func (m *Mapping) Columns() []string {
	var cols []string
	seen := map[string]bool{}
	for _, f := range m.Fields {
		if f.Column != "" && !seen[f.Column] {
			seen[f.Column] = true
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// Marshal renders the mapping as YAML.
func (m *Mapping) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
