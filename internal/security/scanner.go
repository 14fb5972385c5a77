/*-------------------------------------------------------------------------
 *
 * scanner.go
 *    Heuristic screening of free-text user input
 *
 * Input is checked for length, then for SQL injection patterns, then for
 * cross-site scripting patterns. The first failing check decides the
 * result. Accepted input is trimmed and stripped of angle brackets and
 * quote characters.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/security/scanner.go
 *
 *-------------------------------------------------------------------------
 */

package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
)

/* DefaultMaxInputLength applies when a caller passes a non-positive limit */
const DefaultMaxInputLength = 1000

const (
	WarningSQLInjection = "Potential SQL injection detected"
	WarningXSS          = "Potential XSS attack detected"
)

/* logPreviewLength bounds how much offending input reaches the log */
const logPreviewLength = 100

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\b(?:union|select|insert|update|delete|drop|create|alter|exec|execute)\b)`),
	regexp.MustCompile(`(?i)(--|#|/\*|\*/)`),
	regexp.MustCompile(`(?i)(\b(?:or|and)\s+\d+\s*=\s*\d+)`),
	regexp.MustCompile(`(?i)(\b(?:or|and)\s+['"].*['"])`),
	regexp.MustCompile(`(?i)(;|\|\||&&)`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)vbscript\s*:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<\s*iframe[^>]*>`),
	regexp.MustCompile(`(?i)<\s*object[^>]*>`),
	regexp.MustCompile(`(?i)<\s*embed[^>]*>`),
}

var unsafeChars = regexp.MustCompile(`[<>"']`)

/* ValidationResult is the outcome of screening one piece of text */
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Sanitized string   `json:"sanitized"`
	Warnings  []string `json:"warnings"`
}

/* InputScanner screens free text before it reaches the translator */
type InputScanner struct {
	logger *logging.Logger
}

/* NewInputScanner creates a scanner; logger may be nil */
func NewInputScanner(logger *logging.Logger) *InputScanner {
	return &InputScanner{logger: logger}
}

/* Validate screens text against maxLength characters and the threat pattern sets */
func (s *InputScanner) Validate(text string, maxLength int) ValidationResult {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}

	result := ValidationResult{Warnings: []string{}}

	if utf8.RuneCountInString(text) > maxLength {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Input exceeds maximum length of %d characters", maxLength))
		metrics.RecordInputRejection("too_long")
		return result
	}

	if matchAny(sqlInjectionPatterns, text) {
		s.reject("Potential SQL injection attempt", "sql_injection", text)
		result.Warnings = append(result.Warnings, WarningSQLInjection)
		return result
	}

	if matchAny(xssPatterns, text) {
		s.reject("Potential XSS attempt", "xss", text)
		result.Warnings = append(result.Warnings, WarningXSS)
		return result
	}

	result.Valid = true
	result.Sanitized = Sanitize(text)
	return result
}

/* Sanitize trims text and strips angle brackets and quote characters */
func Sanitize(text string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(text), "")
}

func (s *InputScanner) reject(message, label, text string) {
	metrics.RecordInputRejection(label)
	s.logger.Warn(message, map[string]interface{}{
		"threat": label,
		"input":  logging.Truncate(text, logPreviewLength),
	})
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
