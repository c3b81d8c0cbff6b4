package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseProps converts --prop key=value pairs into a property map. Values
// that parse as JSON (numbers, booleans, null, objects, arrays, quoted
// strings) keep their type; everything else is a plain string.
func parseProps(pairs []string) (map[string]any, error) {
	props := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q: expected key=value", p)
		}
		props[k] = rawOrString(v)
	}
	return props, nil
}

func rawOrString(v string) any {
	var decoded any
	if err := json.Unmarshal([]byte(v), &decoded); err == nil {
		return decoded
	}
	return v
}
