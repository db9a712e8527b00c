// Package rules evaluates routing rule conditions against lead records.
package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"leadflow_backend/internal/routing/domain"
)

// ResolvePath walks a dot-delimited path through nested maps. Returns nil when
// any segment is missing or the traversal hits a non-container value; it never
// panics on malformed paths.
func ResolvePath(record map[string]any, path string) any {
	segments := strings.Split(path, ".")
	var current any = record
	for _, segment := range segments {
		container, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = container[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// Evaluate applies one condition to the record, returning the boolean result
// and a human-readable reason for the trace. Unknown operators and invalid
// regex patterns evaluate to false rather than erroring.
func Evaluate(record map[string]any, c domain.Condition) (bool, string) {
	value := ResolvePath(record, c.Field)

	result := apply(value, c)
	return result, fmt.Sprintf("%s %s %v => %t (actual: %v)", c.Field, c.Op, c.Value, result, value)
}

// EvaluateAll applies every condition with AND semantics, short-circuiting on
// the first false. An empty condition list always matches.
func EvaluateAll(record map[string]any, conditions []domain.Condition) (bool, []domain.TraceEntry) {
	trace := make([]domain.TraceEntry, 0, len(conditions))
	for _, c := range conditions {
		ok, reason := Evaluate(record, c)
		trace = append(trace, domain.TraceEntry{
			Step:   domain.StepCondition,
			Field:  c.Field,
			Op:     c.Op,
			Value:  c.Value,
			Result: ok,
			Reason: reason,
		})
		if !ok {
			return false, trace
		}
	}
	return true, trace
}

func apply(value any, c domain.Condition) bool {
	switch c.Op {
	case domain.OpEquals:
		return valuesEqual(value, c.Value)
	case domain.OpNotEquals:
		return !valuesEqual(value, c.Value)
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpGreaterEqual, domain.OpLessEqual:
		return compareNumeric(value, c.Value, c.Op)
	case domain.OpContains, domain.OpNotContains, domain.OpStartsWith, domain.OpEndsWith:
		return compareString(value, c.Value, c.Op)
	case domain.OpRegex:
		return matchRegex(value, c.Value)
	case domain.OpIn:
		return inList(value, c.Value)
	case domain.OpNotIn:
		return !inList(value, c.Value)
	case domain.OpExists:
		return exists(value)
	case domain.OpNotExists:
		return !exists(value)
	default:
		return false
	}
}

// valuesEqual is strict equality, except numeric comparison values are
// coerced so a rule value of "50" still matches a numeric field of 50.
func valuesEqual(a, b any) bool {
	if na, okA := toFloat(a); okA {
		if nb, okB := toFloat(b); okB {
			return na == nb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(value, comparison any, op domain.Operator) bool {
	fieldNum, ok := toFloat(value)
	if !ok {
		return false
	}
	compNum, ok := toFloat(comparison)
	if !ok {
		return false
	}
	switch op {
	case domain.OpGreaterThan:
		return fieldNum > compNum
	case domain.OpLessThan:
		return fieldNum < compNum
	case domain.OpGreaterEqual:
		return fieldNum >= compNum
	case domain.OpLessEqual:
		return fieldNum <= compNum
	default:
		return false
	}
}

func compareString(value, comparison any, op domain.Operator) bool {
	field, ok := value.(string)
	if !ok {
		return false
	}
	needle := strings.ToLower(fmt.Sprintf("%v", comparison))
	haystack := strings.ToLower(field)
	switch op {
	case domain.OpContains:
		return strings.Contains(haystack, needle)
	case domain.OpNotContains:
		return !strings.Contains(haystack, needle)
	case domain.OpStartsWith:
		return strings.HasPrefix(haystack, needle)
	case domain.OpEndsWith:
		return strings.HasSuffix(haystack, needle)
	default:
		return false
	}
}

func matchRegex(value, pattern any) bool {
	field, ok := value.(string)
	if !ok {
		return false
	}
	patternStr, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile("(?i)" + patternStr)
	if err != nil {
		return false
	}
	return re.MatchString(field)
}

func inList(value, list any) bool {
	items, ok := toSlice(list)
	if !ok {
		return false
	}
	for _, item := range items {
		if valuesEqual(value, item) {
			return true
		}
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		items := make([]any, len(s))
		for i, item := range s {
			items[i] = item
		}
		return items, true
	}
	return nil, false
}

// exists is true iff the value is neither nil nor an empty string.
func exists(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok {
		return s != ""
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
