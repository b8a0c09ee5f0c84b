package workflow

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/classflow/classflow/pkg/models"
)

// definitionSchema is the JSON schema every definition must satisfy before
// a run walks it. Shape only; referential checks (successor targets exist)
// happen separately.
var definitionSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"steps"},
	"additionalProperties": false,
	"properties": map[string]any{
		"start": map[string]any{"type": "string"},
		"steps": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":                 "object",
				"required":             []any{"type"},
				"additionalProperties": false,
				"properties": map[string]any{
					"id": map[string]any{"type": "string"},
					// Type is shape-checked only. The executor owns the
					// step vocabulary and fails an unknown type at the step
					// that carries it, so earlier steps still run and leave
					// their log entries.
					"type":     map[string]any{"type": "string"},
					"config":   map[string]any{"type": "object"},
					"next":     map[string]any{"type": "string"},
					"on_true":  map[string]any{"type": "string"},
					"on_false": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// ValidateDefinition checks a definition against the JSON schema, then
// verifies every step and successor reference resolves.
func ValidateDefinition(def *models.Definition) error {
	schemaLoader := gojsonschema.NewGoLoader(definitionSchema)
	dataLoader := gojsonschema.NewGoLoader(def)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(descriptions, "; "))
	}

	return validateReferences(def)
}

// validateReferences checks the step graph after normalization: the start
// step and every next/on_true/on_false target must name an existing step.
// Normalization mutates the definition in place; synthesized IDs are
// deterministic, so revalidation is idempotent.
func validateReferences(def *models.Definition) error {
	def.Normalize()

	known := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if known[step.ID] {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}

		known[step.ID] = true
	}

	if def.Start != "" && !known[def.Start] {
		return fmt.Errorf("start step %q does not exist", def.Start)
	}

	// An explicit empty successor terminates the walk; only non-empty
	// targets must resolve.
	for _, step := range def.Steps {
		for _, target := range []*string{step.Next, step.OnTrue, step.OnFalse} {
			if target != nil && *target != "" && !known[*target] {
				return fmt.Errorf("step %q references unknown step %q", step.ID, *target)
			}
		}
	}

	return nil
}
