package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one loosely typed record, either a legacy JSON object or a
// spreadsheet row handed over by the ingestion collaborator. Values are
// strings, numbers (float64, int or json.Number), bools, nested rows or nil.
type Row map[string]any

// decodeRows parses a JSON array of objects keeping numbers as json.Number
func decodeRows(data []byte) ([]Row, error) {
	var out []Row
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Row) lookup(keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

// String returns the first present key rendered as text
func (r Row) String(keys ...string) string {
	v, _, ok := r.lookup(keys...)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// Decimal parses the first present key as money. Currency symbols, thousands
// separators and accounting parentheses are accepted; blank is zero.
func (r Row) Decimal(keys ...string) (decimal.Decimal, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Float parses the first present key as a plain number; blank is zero
func (r Row) Float(keys ...string) (float64, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return 0, nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d.InexactFloat64(), nil
}

// OptionalFloat is Float but nil when the key is absent or blank
func (r Row) OptionalFloat(keys ...string) (*float64, error) {
	v, _, ok := r.lookup(keys...)
	if !ok {
		return nil, nil
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := r.Float(keys...)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Int parses the first present key as an integer; blank is zero
func (r Row) Int(keys ...string) (int, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return 0, nil
	}
	d, err := parseDecimal(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s: %s is not a whole number", key, d)
	}
	return int(d.IntPart()), nil
}

// Bool reads the first present key as a flag. "yes", "y", "true" and "1" are
// true; anything else is false. def applies when no key is present.
func (r Row) Bool(def bool, keys ...string) bool {
	v, _, ok := r.lookup(keys...)
	if !ok {
		return def
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return true
		}
		return false
	case json.Number:
		return val.String() != "0"
	case float64:
		return val != 0
	case int:
		return val != 0
	}
	return def
}

// Time parses the first present key as RFC 3339 or a plain date.
// def is returned when the key is absent or unparseable.
func (r Row) Time(def time.Time, keys ...string) time.Time {
	s := strings.TrimSpace(r.String(keys...))
	if s == "" {
		return def
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return def
}

// Strings returns a list value, accepting a single string as a one-item list
func (r Row) Strings(keys ...string) []string {
	v, _, ok := r.lookup(keys...)
	if !ok {
		return []string{}
	}
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s := Row{"v": item}.String("v")
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return []string{}
		}
		return []string{val}
	}
	return []string{}
}

// Object returns a nested object, or an empty row
func (r Row) Object(key string) Row {
	switch val := r[key].(type) {
	case map[string]any:
		return Row(val)
	case Row:
		return val
	}
	return Row{}
}

// Rows returns a nested array of objects. A missing or null key is an empty list.
func (r Row) Rows(key string) ([]Row, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected an array, got %T", key, v)
	}
	out := make([]Row, 0, len(items))
	for i, item := range items {
		switch obj := item.(type) {
		case map[string]any:
			out = append(out, Row(obj))
		case Row:
			out = append(out, obj)
		default:
			return nil, fmt.Errorf("%s[%d]: expected an object, got %T", key, i, item)
		}
	}
	return out, nil
}

// Overlay returns the row with the keys of the nested object group laid over
// it, so grouped and flat legacy layouts read the same way
func (r Row) Overlay(group string) Row {
	nested := r.Object(group)
	if len(nested) == 0 {
		return r
	}
	out := make(Row, len(r)+len(nested))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range nested {
		out[k] = v
	}
	return out
}

func parseDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case decimal.Decimal:
		return val, nil
	case string:
		return parseMoney(val)
	}
	return decimal.Zero, fmt.Errorf("cannot read %T as a number", v)
}

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
