// Package condition evaluates workflow step conditions over already
// template-resolved operands. Evaluation is total: every operand/operator
// combination produces a boolean, never an error.
package condition

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Evaluate applies an operator to two resolved operands. Supported
// operators: eq, neq/ne, gt, gte, lt, lte (numeric coercion), contains and
// ncontains (string substring), in (right must be an array), exists (left is
// not nil/empty-string). An unknown operator falls back to strict equality.
func Evaluate(left any, op string, right any) bool {
	switch op {
	case "eq":
		return equals(left, right)
	case "neq", "ne":
		return !equals(left, right)
	case "gt":
		return compare(left, right, func(l, r float64) bool { return l > r })
	case "gte":
		return compare(left, right, func(l, r float64) bool { return l >= r })
	case "lt":
		return compare(left, right, func(l, r float64) bool { return l < r })
	case "lte":
		return compare(left, right, func(l, r float64) bool { return l <= r })
	case "contains":
		return strings.Contains(asString(left), asString(right))
	case "ncontains":
		return !strings.Contains(asString(left), asString(right))
	case "in":
		items, ok := right.([]any)
		if !ok {
			return false
		}

		for _, item := range items {
			if equals(left, item) {
				return true
			}
		}

		return false
	case "exists":
		return left != nil && left != ""
	default:
		return equals(left, right)
	}
}

func equals(left, right any) bool {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)

	if lok && rok {
		return lf == rf
	}

	return reflect.DeepEqual(left, right)
}

func compare(left, right any, cmp func(l, r float64) bool) bool {
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)

	if !lok || !rok {
		return false
	}

	return cmp(lf, rf)
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
