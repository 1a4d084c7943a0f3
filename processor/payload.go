package processor

import (
	"fmt"

	"github.com/xraph/curator"
)

// requireString extracts a required payload field. Missing or
// non-string values are schema violations.
func requireString(payload map[string]any, key string) (string, error) {
	v, ok := payload[key]
	if !ok {
		return "", fmt.Errorf("%w: missing payload field %q", curator.ErrInvalidEnvelope, key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: payload field %q must be a non-empty string", curator.ErrInvalidEnvelope, key)
	}
	return s, nil
}

// optionalString extracts an optional payload field, returning "" when
// it is absent or not a string.
func optionalString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
