package mapping

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
)

const (
	defaultPhoneType = "mobile"
	defaultEmailType = "other"
	remoteDateLayout = "2006-01-02 15:04:05"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
}

// CreatePayload builds the full payload for a new record from a row.
//
// Blank cells fall back to the field default or are omitted. A blank required
// cell, or a non-blank value that cannot be converted, is an InvalidRecord error.
func (m *Mapping) CreatePayload(raw records.Raw) (records.Payload, error) {
	payload := make(records.Payload, len(m.Fields))
	for _, f := range m.Fields {
		if f.Type == TypeConstant {
			payload[f.FieldID] = f.Value
			continue
		}

		cell := raw.Get(f.Column)
		if isBlank(cell) {
			switch {
			case f.Required:
				return nil, errors.NewInvalidRecordError(f.Column, cell, "required column is blank")
			case f.Default != nil:
				payload[f.FieldID] = f.defaultValue()
			}
			continue
		}

		v, err := f.convert(cell)
		if err != nil {
			return nil, err
		}
		payload[f.FieldID] = v
	}
	return payload, nil
}

// BackfillPayload builds the merge update payload for a row. Only fields marked
// for backfill with a non-blank cell are included; defaults never apply.
func (m *Mapping) BackfillPayload(raw records.Raw) (records.Payload, error) {
	payload := make(records.Payload)
	for _, f := range m.Fields {
		if !f.Backfill || f.Type == TypeConstant {
			continue
		}
		cell := raw.Get(f.Column)
		if isBlank(cell) {
			continue
		}
		v, err := f.convert(cell)
		if err != nil {
			return nil, err
		}
		payload[f.FieldID] = v
	}
	return payload, nil
}

func (f Field) convert(cell string) (any, error) {
	switch f.Type {
	case TypeInteger:
		return parseInteger(f.Column, cell)
	case TypeNumber:
		return parseNumber(f.Column, cell)
	case TypePhone:
		return typedValue(cmp.Or(f.PhoneType, defaultPhoneType), strings.TrimSpace(cell)), nil
	case TypeEmail:
		return typedValue(cmp.Or(f.EmailType, defaultEmailType), strings.TrimSpace(cell)), nil
	case TypeCategory:
		return f.category(cell)
	case TypeDate:
		return f.date(cell)
	default:
		return cell, nil
	}
}

func (f Field) defaultValue() any {
	switch f.Type {
	case TypePhone:
		return typedValue(cmp.Or(f.PhoneType, defaultPhoneType), fmt.Sprint(f.Default))
	case TypeEmail:
		return typedValue(cmp.Or(f.EmailType, defaultEmailType), fmt.Sprint(f.Default))
	default:
		return f.Default
	}
}

func (f Field) category(cell string) (any, error) {
	v := strings.TrimSpace(cell)
	if id, ok := f.Options[v]; ok {
		return id, nil
	}
	for label, id := range f.Options {
		if strings.EqualFold(label, v) {
			return id, nil
		}
	}
	if f.Default != nil {
		return f.Default, nil
	}
	return nil, errors.NewInvalidRecordError(f.Column, cell, "not a known option")
}

func (f Field) date(cell string) (any, error) {
	v := strings.TrimSpace(cell)
	layouts := dateLayouts
	if f.Layout != "" {
		layouts = []string{f.Layout}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			s := t.Format(remoteDateLayout)
			return map[string]any{"start": s, "end": s}, nil
		}
	}
	return nil, errors.NewInvalidRecordError(f.Column, cell, "not a recognized date")
}

func typedValue(kind, value string) []map[string]any {
	return []map[string]any{{"type": kind, "value": value}}
}

// cleanNumber strips currency symbols and thousands separators.
func cleanNumber(cell string) string {
	return strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(cell))
}

func parseInteger(column, cell string) (int64, error) {
	s := cleanNumber(cell)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// Accept integral decimals such as "3.0".
	if fl, err := strconv.ParseFloat(s, 64); err == nil && fl == math.Trunc(fl) && !math.IsInf(fl, 0) {
		return int64(fl), nil
	}
	return 0, errors.NewInvalidRecordError(column, cell, "not an integer")
}

func parseNumber(column, cell string) (float64, error) {
	fl, err := strconv.ParseFloat(cleanNumber(cell), 64)
	if err != nil || math.IsNaN(fl) || math.IsInf(fl, 0) {
		return 0, errors.NewInvalidRecordError(column, cell, "not a number")
	}
	return fl, nil
}
