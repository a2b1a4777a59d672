package validator

import "strings"

// NestedValue resolves a dotted field path (e.g. "stateMetadata.state")
// against a decoded payload. A missing segment is a normal outcome, reported
// through the second return value rather than an error.
func NestedValue(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data

	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
