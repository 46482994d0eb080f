// Package rules provides the data-driven risk-rule evaluation engine.
//
// Rules are flat admin-authored documents (field, operator, value), not
// compiled expressions: the interpreter below is the entire language.
// Every path is total — sparse records, type mismatches, and malformed
// conditions evaluate to false rather than erroring, so a nightly batch
// over a ragged CRM export never aborts on one bad row.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-crm/kestrel/internal/domain"
)

// EvaluateCondition evaluates one atomic condition against a record.
//
// A missing (or null) field yields false for every operator except "!=",
// which yields true when the literal itself is non-null: an absent field
// really is distinct from any concrete value.
func EvaluateCondition(cond domain.Condition, record domain.Record) bool {
	fieldVal, ok := record.Get(cond.Field)
	if !ok {
		return cond.Operator == domain.OpNotEquals && cond.Value != nil
	}

	switch cond.Operator {
	case domain.OpEquals:
		return looseEqual(fieldVal, cond.Value)

	case domain.OpNotEquals:
		return !looseEqual(fieldVal, cond.Value)

	case domain.OpLessThan, domain.OpGreaterThan, domain.OpLessOrEqual, domain.OpGreaterEqual:
		a, aok := toNumber(fieldVal)
		b, bok := toNumber(cond.Value)
		if !aok || !bok {
			return false // fail closed on non-numeric comparison
		}
		switch cond.Operator {
		case domain.OpLessThan:
			return a < b
		case domain.OpGreaterThan:
			return a > b
		case domain.OpLessOrEqual:
			return a <= b
		default:
			return a >= b
		}

	case domain.OpIn:
		list, ok := toList(cond.Value)
		if !ok {
			return false
		}
		return listContains(list, fieldVal)

	case domain.OpNotIn:
		list, ok := toList(cond.Value)
		if !ok {
			return false
		}
		return !listContains(list, fieldVal)

	case domain.OpContains:
		return evalContains(fieldVal, cond.Value)

	default:
		return false
	}
}

// looseEqual implements the engine's equality rule: numeric comparison when
// both operands parse as numbers (so "50" and 50 are equal), canonical
// string comparison otherwise.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if aok && bok {
		return na == nb
	}
	return canonical(a) == canonical(b)
}

// toNumber coerces a scalar to float64. Strings are parsed; booleans and
// lists are not numbers.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// canonical renders a scalar in a normalized textual form for loose
// comparison across JSON decodings.
func canonical(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toList normalizes a condition value to a slice. JSON-decoded lists arrive
// as []any; typed slices show up from programmatic configs.
func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func listContains(list []any, v any) bool {
	for _, item := range list {
		if looseEqual(item, v) {
			return true
		}
	}
	return false
}

// evalContains handles the "contains" operator: case-insensitive substring
// match when the field is a string, loose membership when it is a list.
func evalContains(fieldVal, condVal any) bool {
	if s, ok := fieldVal.(string); ok {
		needle, ok := condVal.(string)
		if !ok {
			needle = canonical(condVal)
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle))
	}
	if list, ok := toList(fieldVal); ok {
		return listContains(list, condVal)
	}
	return false
}
