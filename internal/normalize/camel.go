package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CamelKeys rewrites mapping keys from underscore style to camel style,
// descending into nested mappings and lists. Leaf values are returned
// unchanged.
func CamelKeys(v any) any {
	caser := cases.Title(language.Und)
	return camelValue(v, caser)
}

func camelValue(v any, caser cases.Caser) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[camelKey(k, caser)] = camelValue(inner, caser)
		}
		return out
	case Record:
		return camelValue(map[string]any(val), caser)
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = camelValue(inner, caser)
		}
		return out
	default:
		return v
	}
}

// CamelKey converts a single underscore key, e.g. datetime_received to
// datetimeReceived
func CamelKey(key string) string {
	return camelKey(key, cases.Title(language.Und))
}

func camelKey(key string, caser cases.Caser) string {
	parts := strings.Split(key, "_")
	if len(parts) == 1 {
		return key
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(caser.String(p))
	}
	return b.String()
}
