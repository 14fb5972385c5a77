/*-------------------------------------------------------------------------
 *
 * normalize.go
 *    Canonical formatting of admitted statements
 *
 * Comments are dropped, whitespace runs collapse to one space, keywords are
 * upper-cased and bare identifiers lower-cased (PostgreSQL folds them to
 * lower case anyway). Literals and quoted identifiers are kept verbatim.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/normalize.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"strings"
)

var sqlKeywords = toSet(
	"ALL", "AND", "ANY", "ARRAY", "AS", "ASC", "BETWEEN", "BY", "CASE", "CAST",
	"CROSS", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "DESC",
	"DISTINCT", "ELSE", "END", "EXCEPT", "EXISTS", "EXTRACT", "FALSE", "FETCH",
	"FILTER", "FIRST", "FOLLOWING", "FOR", "FROM", "FULL", "GROUP", "HAVING",
	"ILIKE", "IN", "INNER", "INTERSECT", "INTERVAL", "IS", "JOIN", "LAST",
	"LATERAL", "LEFT", "LIKE", "LIMIT", "NATURAL", "NEXT", "NOT", "NULL",
	"NULLS", "OFFSET", "ON", "ONLY", "OR", "ORDER", "OUTER", "OVER",
	"PARTITION", "PRECEDING", "RANGE", "RECURSIVE", "RIGHT", "ROW", "ROWS",
	"SELECT", "SIMILAR", "SOME", "THEN", "TRUE", "UNBOUNDED", "UNION", "USING",
	"VALUES", "WHEN", "WHERE", "WINDOW", "WITH", "WITHIN",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

/* Normalize reformats text; unparseable input is returned as an error */
func Normalize(text string) (string, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return "", err
	}
	return normalizeTokens(tokens), nil
}

func normalizeTokens(tokens []Token) string {
	var b strings.Builder
	pendingSpace := false

	for _, tok := range tokens {
		if tok.Insignificant() {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}

		switch tok.Kind {
		case TokenWord:
			upper := strings.ToUpper(tok.Value)
			if _, ok := sqlKeywords[upper]; ok {
				b.WriteString(upper)
			} else {
				b.WriteString(strings.ToLower(tok.Value))
			}
		default:
			b.WriteString(tok.Value)
		}
	}

	return b.String()
}
