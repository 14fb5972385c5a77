/*-------------------------------------------------------------------------
 *
 * tokenizer.go
 *    Lexical scanner for candidate SQL statements
 *
 * Splits PostgreSQL-flavoured SQL text into tokens: whitespace, comments,
 * words, quoted identifiers, string literals (including dollar-quoted),
 * numbers, positional parameters and punctuation. The scanner never
 * interprets tokens; classification happens on top of the stream.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/sqlguard/tokenizer.go
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

/* TokenKind identifies the lexical class of a token */
type TokenKind int

const (
	TokenWhitespace TokenKind = iota
	TokenLineComment
	TokenBlockComment
	TokenWord
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenParam
	TokenSemicolon
	TokenPunct
)

var tokenKindNames = map[TokenKind]string{
	TokenWhitespace:   "whitespace",
	TokenLineComment:  "line_comment",
	TokenBlockComment: "block_comment",
	TokenWord:         "word",
	TokenQuotedIdent:  "quoted_ident",
	TokenString:       "string",
	TokenNumber:       "number",
	TokenParam:        "param",
	TokenSemicolon:    "semicolon",
	TokenPunct:        "punct",
}

func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

/* Token is a single lexical unit with its byte offset in the source */
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int
}

/* Insignificant reports whether the token carries no syntax */
func (t Token) Insignificant() bool {
	return t.Kind == TokenWhitespace || t.Kind == TokenLineComment || t.Kind == TokenBlockComment
}

/* Tokenize scans text into tokens. Unterminated literals and comments are errors. */
func Tokenize(text string) ([]Token, error) {
	s := &scanner{src: text}
	var tokens []Token

	for s.pos < len(s.src) {
		start := s.pos
		kind, err := s.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, Token{Kind: kind, Value: s.src[start:s.pos], Pos: start})
	}

	return tokens, nil
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset < len(s.src) {
		return s.src[s.pos+offset]
	}
	return 0
}

func (s *scanner) next() (TokenKind, error) {
	r, size := utf8.DecodeRuneInString(s.src[s.pos:])
	c := s.src[s.pos]

	switch {
	case unicode.IsSpace(r):
		for s.pos < len(s.src) {
			r, size = utf8.DecodeRuneInString(s.src[s.pos:])
			if !unicode.IsSpace(r) {
				break
			}
			s.pos += size
		}
		return TokenWhitespace, nil

	case c == '-' && s.peek(1) == '-':
		if idx := strings.IndexByte(s.src[s.pos:], '\n'); idx >= 0 {
			s.pos += idx
		} else {
			s.pos = len(s.src)
		}
		return TokenLineComment, nil

	case c == '/' && s.peek(1) == '*':
		return TokenBlockComment, s.blockComment()

	case c == '\'':
		return TokenString, s.quoted('\'')

	case (c == 'E' || c == 'e') && s.peek(1) == '\'':
		s.pos++
		return TokenString, s.escapedString()

	case c == '"':
		return TokenQuotedIdent, s.quoted('"')

	case c == '$' && isDigit(s.peek(1)):
		s.pos++
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
		return TokenParam, nil

	case c == '$':
		if ok, err := s.dollarString(); ok || err != nil {
			return TokenString, err
		}
		s.pos++
		return TokenPunct, nil

	case isDigit(c) || (c == '.' && isDigit(s.peek(1))):
		s.number()
		return TokenNumber, nil

	case isWordStart(r):
		s.pos += size
		for s.pos < len(s.src) {
			r, size = utf8.DecodeRuneInString(s.src[s.pos:])
			if !isWordPart(r) {
				break
			}
			s.pos += size
		}
		return TokenWord, nil

	case c == ';':
		s.pos++
		return TokenSemicolon, nil
	}

	s.pos += size
	return TokenPunct, nil
}

/* blockComment consumes a possibly nested block comment */
func (s *scanner) blockComment() error {
	start := s.pos
	depth := 0
	for s.pos < len(s.src) {
		switch {
		case s.src[s.pos] == '/' && s.peek(1) == '*':
			depth++
			s.pos += 2
		case s.src[s.pos] == '*' && s.peek(1) == '/':
			depth--
			s.pos += 2
			if depth == 0 {
				return nil
			}
		default:
			s.pos++
		}
	}
	return fmt.Errorf("%w: unterminated block comment at offset %d", ErrUnparseable, start)
}

/* quoted consumes a literal delimited by q where a doubled q is an escape */
func (s *scanner) quoted(q byte) error {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		if s.src[s.pos] == q {
			if s.peek(1) == q {
				s.pos += 2
				continue
			}
			s.pos++
			return nil
		}
		s.pos++
	}
	return fmt.Errorf("%w: unterminated quoted text at offset %d", ErrUnparseable, start)
}

/* escapedString consumes E'...' where backslash escapes the next byte */
func (s *scanner) escapedString() error {
	start := s.pos
	s.pos++
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '\'':
			if s.peek(1) == '\'' {
				s.pos += 2
				continue
			}
			s.pos++
			return nil
		}
		s.pos++
	}
	return fmt.Errorf("%w: unterminated escape string at offset %d", ErrUnparseable, start)
}

/* dollarString consumes $tag$...$tag$; ok is false when no tag opens here */
func (s *scanner) dollarString() (bool, error) {
	end := s.pos + 1
	for end < len(s.src) && s.src[end] != '$' {
		r, size := utf8.DecodeRuneInString(s.src[end:])
		if !isWordPart(r) {
			return false, nil
		}
		end += size
	}
	if end >= len(s.src) {
		return false, nil
	}

	tag := s.src[s.pos : end+1]
	closing := strings.Index(s.src[end+1:], tag)
	if closing < 0 {
		return true, fmt.Errorf("%w: unterminated dollar-quoted string at offset %d", ErrUnparseable, s.pos)
	}
	s.pos = end + 1 + closing + len(tag)
	return true, nil
}

func (s *scanner) number() {
	for s.pos < len(s.src) && (isDigit(s.src[s.pos]) || s.src[s.pos] == '.') {
		s.pos++
	}
	if s.pos < len(s.src) && (s.src[s.pos] == 'e' || s.src[s.pos] == 'E') {
		next := s.peek(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(s.peek(2))) {
			s.pos += 2
			for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
				s.pos++
			}
		}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
