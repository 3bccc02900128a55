package utils

// LimitNesting returns v with every object or array nested deeper than maxDepth levels
// replaced by its JSON encoding as a string. The top-level value is level 1.
func LimitNesting(v any, maxDepth int) any {
	return limitNesting(v, 1, maxDepth)
}

func limitNesting(v any, level, maxDepth int) any {
	switch t := v.(type) {
	case map[string]any:
		if level > maxDepth {
			return encodeSubtree(t)
		}
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = limitNesting(child, level+1, maxDepth)
		}
		return out
	case []any:
		if level > maxDepth {
			return encodeSubtree(t)
		}
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = limitNesting(child, level+1, maxDepth)
		}
		return out
	default:
		return v
	}
}

func encodeSubtree(v any) string {
	s, err := json.MarshalToString(v)
	if err != nil {
		// Decoded JSON always re-encodes.
		panic(err)
	}
	return s
}
