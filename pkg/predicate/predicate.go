// Package predicate evaluates condition documents against JSON-like data.
//
// A condition document maps dotted field paths to expected values:
//
//	{"payload.ward": "icu", "priority": {"$in": ["high", "urgent"]}}
//
// A plain value matches by string equality, a list matches when the field equals
// any element, and an object whose keys start with "$" applies operators.
// The "$schema" operator validates the value against a JSON Schema.
package predicate

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownOperator = errors.New("unknown operator")

// Match reports whether doc satisfies every condition. An empty condition set always matches.
func Match(conditions map[string]any, doc map[string]any) (bool, error) {
	for path, expected := range conditions {
		if path == "$schema" {
			ok, err := matchSchema(expected, doc)
			if err != nil || !ok {
				return false, err
			}

			continue
		}

		actual, found := Lookup(doc, path)

		ok, err := matchValue(expected, actual, found)
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", path, err)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// Lookup resolves a dotted path such as "payload.vitals.spo2" inside nested maps.
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc

	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func matchValue(expected, actual any, found bool) (bool, error) {
	switch exp := expected.(type) {
	case map[string]any:
		if isOperatorSet(exp) {
			return matchOperators(exp, actual, found)
		}

		nested, ok := actual.(map[string]any)
		if !ok {
			return false, nil
		}

		return Match(exp, nested)
	case []any:
		if !found {
			return false, nil
		}

		return contains(exp, actual), nil
	default:
		if !found {
			return false, nil
		}

		return equal(expected, actual), nil
	}
}

func isOperatorSet(object map[string]any) bool {
	if len(object) == 0 {
		return false
	}

	for key := range object {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}

	return true
}

func matchOperators(operators map[string]any, actual any, found bool) (bool, error) {
	for operator, operand := range operators {
		var (
			ok  bool
			err error
		)

		switch operator {
		case "$eq":
			ok = found && equal(operand, actual)
		case "$ne":
			ok = !found || !equal(operand, actual)
		case "$in":
			list, isList := operand.([]any)
			if !isList {
				return false, fmt.Errorf("$in expects a list, got %T", operand)
			}

			ok = found && contains(list, actual)
		case "$nin":
			list, isList := operand.([]any)
			if !isList {
				return false, fmt.Errorf("$nin expects a list, got %T", operand)
			}

			ok = !found || !contains(list, actual)
		case "$exists":
			want, isBool := operand.(bool)
			if !isBool {
				return false, fmt.Errorf("$exists expects a boolean, got %T", operand)
			}

			ok = found == want
		case "$gt", "$gte", "$lt", "$lte":
			ok = found && compare(operator, actual, operand)
		case "$schema":
			ok, err = matchSchema(operand, actual)
		default:
			return false, fmt.Errorf("%w: %s", ErrUnknownOperator, operator)
		}

		if err != nil || !ok {
			return false, err
		}
	}

	return true, nil
}

func matchSchema(schema any, value any) (bool, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(value))
	if err != nil {
		return false, fmt.Errorf("invalid schema condition: %w", err)
	}

	return result.Valid(), nil
}

func contains(list []any, actual any) bool {
	for _, candidate := range list {
		if equal(candidate, actual) {
			return true
		}
	}

	return false
}

// equal compares by formatted value so that 2 and 2.0 or "2" decoded from different sources agree.
func equal(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	if reflect.TypeOf(expected).Comparable() && reflect.TypeOf(actual).Comparable() && expected == actual {
		return true
	}

	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}

func compare(operator string, actual, operand any) bool {
	left, leftOK := toFloat(actual)
	right, rightOK := toFloat(operand)

	var result int

	switch {
	case leftOK && rightOK:
		switch {
		case left < right:
			result = -1
		case left > right:
			result = 1
		}
	default:
		result = strings.Compare(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", operand))
	}

	switch operator {
	case "$gt":
		return result > 0
	case "$gte":
		return result >= 0
	case "$lt":
		return result < 0
	default:
		return result <= 0
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
