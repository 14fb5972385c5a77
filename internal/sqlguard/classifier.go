/*-------------------------------------------------------------------------
 *
 * classifier.go
 *    Statement classification for candidate SQL
 *
 * Only statements whose first significant token is SELECT are admitted.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/classifier.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"strings"
)

/* Kind is the classification outcome of a statement */
type Kind int

const (
	KindUnparseable Kind = iota
	KindSelect
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindOther:
		return "OTHER"
	default:
		return "UNPARSEABLE"
	}
}

/* Classify labels text as SELECT, OTHER or UNPARSEABLE */
func Classify(text string) Kind {
	tokens, err := Tokenize(text)
	if err != nil {
		return KindUnparseable
	}
	return classifyTokens(tokens)
}

func classifyTokens(tokens []Token) Kind {
	first, ok := firstSignificant(tokens)
	if !ok {
		return KindUnparseable
	}
	if first.Kind == TokenWord && strings.EqualFold(first.Value, "SELECT") {
		return KindSelect
	}
	return KindOther
}

func firstSignificant(tokens []Token) (Token, bool) {
	for _, tok := range tokens {
		if !tok.Insignificant() {
			return tok, true
		}
	}
	return Token{}, false
}

/* statementCount counts non-empty statements separated by semicolons */
func statementCount(tokens []Token) int {
	count := 0
	pending := false
	for _, tok := range tokens {
		switch {
		case tok.Kind == TokenSemicolon:
			if pending {
				count++
			}
			pending = false
		case !tok.Insignificant():
			pending = true
		}
	}
	if pending {
		count++
	}
	return count
}
