package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_Equality(t *testing.T) {
	assert.True(t, Evaluate("high", "eq", "high"))
	assert.False(t, Evaluate("high", "eq", "low"))
	assert.True(t, Evaluate("high", "neq", "low"))
	assert.True(t, Evaluate("high", "ne", "low"))

	// Numeric coercion across representations.
	assert.True(t, Evaluate(float64(3), "eq", 3))
	assert.True(t, Evaluate("3", "eq", float64(3)))
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	cases := []struct {
		left, right any
		op          string
		want        bool
	}{
		{float64(5), float64(3), "gt", true},
		{float64(3), float64(5), "gt", false},
		{"5", float64(5), "gte", true},
		{float64(2), float64(5), "lt", true},
		{float64(5), float64(5), "lte", true},
		{"not-a-number", float64(5), "gt", false},
		{nil, float64(5), "lt", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Evaluate(tc.left, tc.op, tc.right),
			"%v %s %v", tc.left, tc.op, tc.right)
	}
}

func TestEvaluate_Contains(t *testing.T) {
	assert.True(t, Evaluate("attendance.missed", "contains", "missed"))
	assert.False(t, Evaluate("attendance.missed", "contains", "grade"))
	assert.True(t, Evaluate("attendance.missed", "ncontains", "grade"))
}

func TestEvaluate_In(t *testing.T) {
	assert.True(t, Evaluate("b", "in", []any{"a", "b", "c"}))
	assert.False(t, Evaluate("z", "in", []any{"a", "b", "c"}))
	assert.True(t, Evaluate(float64(2), "in", []any{float64(1), float64(2)}))

	// Right operand must be an array.
	assert.False(t, Evaluate("a", "in", "abc"))
	assert.False(t, Evaluate("a", "in", nil))
}

func TestEvaluate_Exists(t *testing.T) {
	assert.True(t, Evaluate("x", "exists", nil))
	assert.True(t, Evaluate(float64(0), "exists", nil))
	assert.False(t, Evaluate(nil, "exists", nil))
	assert.False(t, Evaluate("", "exists", nil))
}

func TestEvaluate_UnknownOperatorFallsBackToEquality(t *testing.T) {
	assert.True(t, Evaluate("x", "bogus", "x"))
	assert.False(t, Evaluate("x", "bogus", "y"))
}
