/*-------------------------------------------------------------------------
 *
 * gate.go
 *    Read-only admission gate for model-generated SQL
 *
 * The gate is the only producer of SanitizedStatement. A statement is
 * admitted when it tokenizes, holds exactly one statement, classifies as
 * SELECT and contains no denied keyword or function call. Admitted text is normalized and
 * capped with a LIMIT clause.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/gate.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/logging"
	"github.com/neurondb/NeuronQuery/api/internal/metrics"
)

var (
	ErrEmpty              = errors.New("empty statement")
	ErrUnparseable        = errors.New("statement could not be parsed")
	ErrMultipleStatements = errors.New("multiple statements are not allowed")
	ErrNotSelect          = errors.New("only SELECT statements are allowed")
	ErrDangerousKeyword   = errors.New("statement contains a denied keyword")
	ErrDeniedFunction     = errors.New("statement calls a denied function")
)

/* RejectionError describes why the gate refused a candidate */
type RejectionError struct {
	Reason   error
	Kind     Kind
	Keywords []string
}

func (e *RejectionError) Error() string {
	if len(e.Keywords) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason.Error(), strings.Join(e.Keywords, ", "))
	}
	return e.Reason.Error()
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

/* ReasonLabel is a short, stable label for metrics and audit entries */
func ReasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrUnparseable):
		return "unparseable"
	case errors.Is(err, ErrMultipleStatements):
		return "multiple_statements"
	case errors.Is(err, ErrNotSelect):
		return "not_select"
	case errors.Is(err, ErrDangerousKeyword):
		return "denied_keyword"
	case errors.Is(err, ErrDeniedFunction):
		return "denied_function"
	default:
		return "unknown"
	}
}

/* SanitizedStatement is SQL that passed every gate check; it cannot be built elsewhere */
type SanitizedStatement struct {
	text       string
	tables     []string
	complexity Complexity
}

/* SQL returns the executable text */
func (s SanitizedStatement) SQL() string { return s.text }

func (s SanitizedStatement) String() string { return s.text }

/* IsZero reports whether s was never produced by a gate */
func (s SanitizedStatement) IsZero() bool { return s.text == "" }

/* Tables returns the table names referenced after FROM or JOIN */
func (s SanitizedStatement) Tables() []string {
	return append([]string(nil), s.tables...)
}

/* Complexity returns the estimated query complexity */
func (s SanitizedStatement) Complexity() Complexity { return s.complexity }

/* Sanitizer is the narrow contract callers depend on */
type Sanitizer interface {
	Sanitize(candidate string) (SanitizedStatement, error)
}

/* Gate implements Sanitizer with tokenizer-based classification and keyword and function deny-lists */
type Gate struct {
	maxRows int
	logger  *logging.Logger
}

/* NewGate creates a gate that caps unbounded statements at maxRows */
func NewGate(maxRows int, logger *logging.Logger) *Gate {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Gate{maxRows: maxRows, logger: logger}
}

/* MaxRows returns the configured row cap */
func (g *Gate) MaxRows() int { return g.maxRows }

/* Sanitize admits candidate or returns a *RejectionError */
func (g *Gate) Sanitize(candidate string) (SanitizedStatement, error) {
	if strings.TrimSpace(candidate) == "" {
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrEmpty, Kind: KindUnparseable})
	}

	tokens, err := Tokenize(candidate)
	if err != nil {
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrUnparseable, Kind: KindUnparseable})
	}

	kind := classifyTokens(tokens)
	switch kind {
	case KindUnparseable:
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrUnparseable, Kind: kind})
	case KindOther:
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrNotSelect, Kind: kind})
	}

	if keywords := DangerousKeywords(candidate); len(keywords) > 0 {
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrDangerousKeyword, Kind: kind, Keywords: keywords})
	}

	if calls := DeniedFunctionCalls(candidate); len(calls) > 0 {
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrDeniedFunction, Kind: kind, Keywords: calls})
	}

	if statementCount(tokens) > 1 {
		return SanitizedStatement{}, g.reject(candidate, &RejectionError{Reason: ErrMultipleStatements, Kind: kind})
	}

	normalized := strings.TrimRight(normalizeTokens(tokens), "; ")
	text := EnsureLimit(normalized, g.maxRows)

	return SanitizedStatement{
		text:       text,
		tables:     TableNames(text),
		complexity: EstimateComplexity(text),
	}, nil
}

func (g *Gate) reject(candidate string, rej *RejectionError) error {
	metrics.RecordGateRejection(ReasonLabel(rej))
	g.logger.Warn("SQL statement rejected", map[string]interface{}{
		"reason":   ReasonLabel(rej),
		"kind":     rej.Kind.String(),
		"keywords": rej.Keywords,
		"sql":      logging.Truncate(candidate, 500),
	})
	return rej
}
