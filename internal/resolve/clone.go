package resolve

// Clone deep-copies a decoded JSON value. Maps and slices are copied
// recursively; scalars are returned as-is.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// CloneMap deep-copies a JSON object, returning an empty map for nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return Clone(m).(map[string]any)
}

// CloneTables deep-copies a table set, returning an empty map for nil.
func CloneTables(t map[string][]any) map[string][]any {
	out := make(map[string][]any, len(t))
	for name, rows := range t {
		if rows == nil {
			out[name] = []any{}
			continue
		}
		out[name] = Clone(rows).([]any)
	}
	return out
}
