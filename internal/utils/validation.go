package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1
const maxIdentifierLength = 63

var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier accepts a bare SQL identifier: a letter or underscore
// followed by letters, digits, underscores or dollar signs.
func ValidateIdentifier(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: field, Message: "identifier is required"}
	}
	if len(name) > maxIdentifierLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("identifier must be at most %d characters", maxIdentifierLength)}
	}
	if !identifierRegex.MatchString(name) {
		return &ValidationError{Field: field, Message: "identifier contains invalid characters"}
	}
	return nil
}

// ValidateRequired reports an empty or whitespace-only value
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}

// SanitizeString removes control characters, trims, and limits the result to maxLength runes
func SanitizeString(s string, maxLength int) string {
	var builder strings.Builder
	for _, r := range s {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			builder.WriteRune(r)
		}
	}
	result := strings.TrimSpace(builder.String())

	if maxLength > 0 {
		if runes := []rune(result); len(runes) > maxLength {
			result = string(runes[:maxLength])
		}
	}
	return result
}
