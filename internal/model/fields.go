package model

// Fields is an untyped invoice record as produced by OCR or LLM extraction.
// Values may be missing, wrongly typed or malformed.
type Fields map[string]any

// Get returns the value stored under name, nil when absent
func (f Fields) Get(name string) any {
	if f == nil {
		return nil
	}
	return f[name]
}

// IsEmptyValue reports whether v counts as "not filled": nil, "", 0, 0.0 or false.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case int:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case float32:
		return x == 0
	case float64:
		return x == 0
	default:
		return false
	}
}
