/*-------------------------------------------------------------------------
 *
 * limit.go
 *    Row cap enforcement
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/limit.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
)

/* DefaultMaxRows is the row cap appended to statements without a LIMIT */
const DefaultMaxRows = 100

var (
	limitPattern    = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	limitAllPattern = regexp.MustCompile(`(?i)\bLIMIT\s+ALL\b`)
	/* SQL standard spelling: FETCH {FIRST|NEXT} [n] {ROW|ROWS} {ONLY|WITH TIES} */
	fetchPattern = regexp.MustCompile(`(?i)\bFETCH\s+(FIRST|NEXT)\s+(\d+\s+)?ROWS?\s+(ONLY|WITH\s+TIES)\b`)
)

/* HasLimit reports whether text already carries a LIMIT <n> or FETCH FIRST clause */
func HasLimit(text string) bool {
	return limitPattern.MatchString(text) || fetchPattern.MatchString(text)
}

/*
 * EnsureLimit returns text unchanged when it already has a LIMIT <n> or
 * FETCH FIRST clause, whatever n is. LIMIT ALL is not a cap and is
 * rewritten to LIMIT <maxRows> in place. Otherwise trailing terminators
 * are stripped and " LIMIT <maxRows>" is appended. The result is a fixed
 * point.
 */
func EnsureLimit(text string, maxRows int) string {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if limitAllPattern.MatchString(text) {
		text = limitAllPattern.ReplaceAllString(text, "LIMIT "+strconv.Itoa(maxRows))
	}
	if HasLimit(text) {
		return text
	}
	trimmed := strings.TrimRight(text, "; \t\r\n")
	return trimmed + " LIMIT " + strconv.Itoa(maxRows)
}
