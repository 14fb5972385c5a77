package utils

import (
	"regexp"
	"strings"
)

/* Field names whose values never reach the log */
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)`),
	regexp.MustCompile(`(?i)(secret|token)`),
	regexp.MustCompile(`(?i)(credential|encryption[_-]?key)`),
}

const redacted = "[REDACTED]"

/* IsSensitiveKey reports whether a field name matches a sensitive pattern */
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(keyLower) {
			return true
		}
	}
	return false
}

/* RedactValue replaces the value of a sensitive, non-empty field */
func RedactValue(key string, value interface{}) interface{} {
	if !IsSensitiveKey(key) {
		return value
	}
	if s, ok := value.(string); ok && s == "" {
		return value
	}
	return redacted
}

/* RedactMap recursively redacts sensitive fields; the input is not modified */
func RedactMap(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case map[string]interface{}:
			out[key] = RedactMap(v)
		case []interface{}:
			out[key] = redactArray(v)
		default:
			out[key] = RedactValue(key, v)
		}
	}
	return out
}

func redactArray(data []interface{}) []interface{} {
	out := make([]interface{}, len(data))
	for i, item := range data {
		switch v := item.(type) {
		case map[string]interface{}:
			out[i] = RedactMap(v)
		case []interface{}:
			out[i] = redactArray(v)
		default:
			out[i] = v
		}
	}
	return out
}
