package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key derives the cache key for an operation and its parameter set.
// Parameters are sorted by name before serialization, so two calls with the
// same parameters in different order always produce the same key.
func Key(operation string, params map[string]any) string {
	if len(params) == 0 {
		return operation
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(operation)
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(encodeParam(params[name]))
	}

	return b.String()
}

// encodeParam renders a parameter value in a stable form. JSON covers the
// scalar and slice values that appear in practice; anything unmarshalable
// falls back to fmt formatting rather than failing key generation.
func encodeParam(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(encoded)
}
