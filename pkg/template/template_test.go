package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testContext() map[string]any {
	return map[string]any{
		"event": map[string]any{
			"name":      "attendance.missed",
			"entity_id": "s1",
		},
		"event_metadata": map[string]any{
			"tier":  "high",
			"count": float64(3),
			"flags": []any{"a", "b"},
		},
		"actor": map[string]any{
			"id":   "u-1",
			"role": "counselor",
		},
	}
}

func TestResolve_ExactPlaceholderKeepsType(t *testing.T) {
	data := testContext()

	assert.Equal(t, "high", Resolve("{{event_metadata.tier}}", data))
	assert.Equal(t, float64(3), Resolve("{{event_metadata.count}}", data))
	assert.Equal(t, []any{"a", "b"}, Resolve("{{event_metadata.flags}}", data))
}

func TestResolve_ExactPlaceholderMissingPath(t *testing.T) {
	assert.Nil(t, Resolve("{{event_metadata.absent}}", testContext()))
	assert.Nil(t, Resolve("{{totally.unknown.path}}", testContext()))
}

func TestResolve_MixedTextSubstitution(t *testing.T) {
	data := testContext()

	result := Resolve("student {{event.entity_id}} missed {{event_metadata.count}} classes", data)
	assert.Equal(t, "student s1 missed 3 classes", result)
}

func TestResolve_MixedTextMissingPathIsEmpty(t *testing.T) {
	result := Resolve("value=[{{event_metadata.absent}}]", testContext())
	assert.Equal(t, "value=[]", result)
}

func TestResolve_MixedTextJSONStringifiesNonStrings(t *testing.T) {
	result := Resolve("flags: {{event_metadata.flags}}", testContext())
	assert.Equal(t, `flags: ["a","b"]`, result)
}

func TestResolve_RecursesIntoMapsAndSlices(t *testing.T) {
	data := testContext()

	input := map[string]any{
		"title": "alert for {{event.entity_id}}",
		"nested": map[string]any{
			"tier": "{{event_metadata.tier}}",
		},
		"list":  []any{"{{actor.id}}", "literal"},
		"count": 7,
	}

	resolved, ok := Resolve(input, data).(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "alert for s1", resolved["title"])
	assert.Equal(t, map[string]any{"tier": "high"}, resolved["nested"])
	assert.Equal(t, []any{"u-1", "literal"}, resolved["list"])
	assert.Equal(t, 7, resolved["count"])
}

func TestResolve_NonTemplateValuesPassThrough(t *testing.T) {
	data := testContext()

	assert.Equal(t, "plain text", Resolve("plain text", data))
	assert.Equal(t, true, Resolve(true, data))
	assert.Nil(t, Resolve(nil, data))
}

func TestLookup_TraversalStopsAtNonMap(t *testing.T) {
	_, ok := Lookup(testContext(), "event.name.deeper")
	assert.False(t, ok)
}

func TestResolveString(t *testing.T) {
	data := testContext()

	assert.Equal(t, "high", ResolveString("{{event_metadata.tier}}", data))
	assert.Equal(t, "3", ResolveString("{{event_metadata.count}}", data))
	assert.Equal(t, "", ResolveString("{{missing}}", data))
}
