// Package template resolves {{path.to.value}} placeholders against a run
// context. Resolution is pure and total: unresolvable paths degrade to
// absent or empty values, never errors.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	exactPattern    = regexp.MustCompile(`^\{\{\s*([^{}\s]+)\s*\}\}$`)
	fragmentPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)
)

// Resolve walks an arbitrary config value and substitutes placeholders from
// the context. A string that is exactly one {{path}} resolves to the typed
// value at that path (missing path yields nil); a string mixing placeholders
// with literal text is resolved per-fragment, JSON-stringifying non-string
// values and substituting missing values as "". Maps and slices are resolved
// recursively, preserving structure.
func Resolve(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Resolve(item, data)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, data)
		}

		return out
	default:
		return value
	}
}

// ResolveString resolves a value and renders the result as a string, using
// the same stringification rules as mixed-text substitution.
func ResolveString(value any, data map[string]any) string {
	return stringify(Resolve(value, data))
}

func resolveString(s string, data map[string]any) any {
	if match := exactPattern.FindStringSubmatch(s); match != nil {
		resolved, _ := Lookup(data, match[1])

		return resolved
	}

	return fragmentPattern.ReplaceAllStringFunc(s, func(fragment string) string {
		path := fragmentPattern.FindStringSubmatch(fragment)[1]

		resolved, ok := Lookup(data, path)
		if !ok {
			return ""
		}

		return stringify(resolved)
	})
}

// Lookup resolves a dot-separated path against nested maps. The boolean is
// false when any segment is missing or a non-map value is traversed into.
func Lookup(data map[string]any, path string) (any, bool) {
	var current any = data

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(encoded)
	}
}
