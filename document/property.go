package document

import "strings"

// PropertyValues resolves a dotted property path against a document,
// flattening through arrays. At each path segment, every current value
// that is an array is expanded element by element; every other value is
// indexed by the segment name, contributing nothing when the member is
// missing or null. The result preserves document order.
//
// For {"messages":[{"title":"a"},{"title":"b"}]} the path "messages.title"
// yields ["a", "b"].
func PropertyValues(v Value, path string) []Value {
	current := []Value{v}
	for _, part := range strings.Split(path, ".") {
		current = matchPropertyLevel(current, part)
	}

	return current
}

func matchPropertyLevel(level []Value, part string) []Value {
	var out []Value
	for _, v := range level {
		if v.Kind() == KindArray {
			for _, item := range v.Items() {
				out = append(out, matchPropertyLevel([]Value{item}, part)...)
			}

			continue
		}

		child, ok := v.Property(part)
		if !ok || child.Kind() == KindNull {
			continue
		}
		out = append(out, child)
	}

	return out
}
