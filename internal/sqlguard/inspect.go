/*-------------------------------------------------------------------------
 *
 * inspect.go
 *    Lightweight inspection helpers for logging and metrics
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/inspect.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"regexp"
	"sort"
	"strings"
)

var (
	/* fenced code block, optionally tagged sql */
	fencePattern = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)\\s*```")

	tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)

	joinPattern      = regexp.MustCompile(`\bJOIN\b`)
	subqueryPattern  = regexp.MustCompile(`\(\s*SELECT\b`)
	aggregatePattern = regexp.MustCompile(`\b(?:COUNT|SUM|AVG|MIN|MAX|GROUP_CONCAT)\s*\(`)
	windowPattern    = regexp.MustCompile(`\bOVER\s*\(`)
	ctePattern       = regexp.MustCompile(`\bWITH\b`)
)

/* ExtractCandidate pulls the SQL out of a model response; ok is false unless it starts with SELECT */
func ExtractCandidate(response string) (string, bool) {
	candidate := response
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		candidate = m[1]
	}

	candidate = strings.TrimSpace(candidate)
	candidate = strings.TrimSpace(strings.Trim(candidate, ";"))

	if !strings.HasPrefix(strings.ToUpper(candidate), "SELECT") {
		return candidate, false
	}
	return candidate, true
}

/* TableNames returns the distinct identifiers following FROM or JOIN, sorted */
func TableNames(sql string) []string {
	seen := make(map[string]struct{})
	for _, m := range tableRefPattern.FindAllStringSubmatch(sql, -1) {
		seen[m[1]] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

/* Complexity is a coarse cost bucket for a query */
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

/* EstimateComplexity scores joins, subqueries, aggregates, grouping, ordering, windows and CTEs */
func EstimateComplexity(sql string) Complexity {
	upper := strings.ToUpper(sql)

	score := len(joinPattern.FindAllStringIndex(upper, -1))
	score += len(subqueryPattern.FindAllStringIndex(upper, -1))
	score += len(aggregatePattern.FindAllStringIndex(upper, -1))
	if strings.Contains(upper, "GROUP BY") {
		score++
	}
	if strings.Contains(upper, "ORDER BY") {
		score++
	}
	score += len(windowPattern.FindAllStringIndex(upper, -1))
	score += len(ctePattern.FindAllStringIndex(upper, -1))

	switch {
	case score == 0:
		return ComplexitySimple
	case score <= 3:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
