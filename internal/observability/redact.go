package observability

import "strings"

// RedactionMarker replaces any value whose key matches the sensitive vocabulary.
const RedactionMarker = "***REDACTED***"

// sensitiveKeys is the fixed vocabulary matched case-insensitively as a
// substring of the field name. Raw values for matched keys must never reach
// a log sink.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"api_key",
	"cookie",
}

// Sanitize returns a copy of data with every sensitive value replaced by the
// redaction marker. Nested maps are sanitized recursively; other values pass
// through unchanged unless their key is itself sensitive. The input map is
// never mutated.
func Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		switch {
		case isSensitiveKey(key):
			sanitized[key] = RedactionMarker
		default:
			sanitized[key] = SanitizeValue(value)
		}
	}
	return sanitized
}

// SanitizeValue sanitizes an arbitrary decoded value. Maps are walked
// recursively, slices are sanitized element-wise, everything else is
// returned unchanged.
func SanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Sanitize(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SanitizeValue(item)
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
