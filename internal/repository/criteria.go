package repository

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Operator selects how a Criterion compares a field value
type Operator int

const (
	OpEquals Operator = iota
	OpIn
	OpNotEquals
	OpGreaterThan
	OpLessThan
)

// String returns the operator name
func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpIn:
		return "in"
	case OpNotEquals:
		return "notEquals"
	case OpGreaterThan:
		return "greaterThan"
	case OpLessThan:
		return "lessThan"
	}
	return "unknown"
}

// Criterion is a single field condition
type Criterion struct {
	Op     Operator
	Value  any
	Values []any
}

// Equals matches fields equal to v. Equals(nil) matches absent or null fields.
func Equals(v any) Criterion { return Criterion{Op: OpEquals, Value: v} }

// In matches fields equal to any of values
func In(values ...any) Criterion { return Criterion{Op: OpIn, Values: values} }

// NotEquals matches fields not equal to v
func NotEquals(v any) Criterion { return Criterion{Op: OpNotEquals, Value: v} }

// GreaterThan matches numbers or strings ordered after v
func GreaterThan(v any) Criterion { return Criterion{Op: OpGreaterThan, Value: v} }

// LessThan matches numbers or strings ordered before v
func LessThan(v any) Criterion { return Criterion{Op: OpLessThan, Value: v} }

// Criteria maps dotted JSON field paths (e.g. "financial.totalBudget") to
// conditions. All conditions must hold.
type Criteria map[string]Criterion

// Match reports whether the record satisfies every condition. Records and
// operands are compared in their JSON form.
func (c Criteria) Match(record any) (bool, error) {
	if len(c) == 0 {
		return true, nil
	}
	fields, err := toJSONValue(record)
	if err != nil {
		return false, err
	}
	for path, cond := range c {
		ok, err := cond.matches(lookupPath(fields, path))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c Criterion) matches(actual any) (bool, error) {
	switch c.Op {
	case OpEquals, OpNotEquals:
		expected, err := toJSONValue(c.Value)
		if err != nil {
			return false, err
		}
		eq := reflect.DeepEqual(actual, expected)
		if c.Op == OpNotEquals {
			return !eq, nil
		}
		return eq, nil
	case OpIn:
		for _, v := range c.Values {
			expected, err := toJSONValue(v)
			if err != nil {
				return false, err
			}
			if reflect.DeepEqual(actual, expected) {
				return true, nil
			}
		}
		return false, nil
	case OpGreaterThan, OpLessThan:
		expected, err := toJSONValue(c.Value)
		if err != nil {
			return false, err
		}
		cmp, ok := compareOrdered(actual, expected)
		if !ok {
			return false, nil
		}
		if c.Op == OpGreaterThan {
			return cmp > 0, nil
		}
		return cmp < 0, nil
	}
	return false, nil
}

// compareOrdered compares two numbers or two strings
func compareOrdered(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}

func lookupPath(fields any, path string) any {
	current := fields
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// toJSONValue converts v to the generic value its JSON encoding decodes to
func toJSONValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
