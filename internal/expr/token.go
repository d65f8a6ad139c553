// Package expr implements the sandboxed expression language used by edge
// conditions and the condition step handler.
//
// The language supports variable lookup (dotted paths into the variable
// map), numeric and string literals, comparison operators, boolean operators,
// and basic arithmetic. There is no function call syntax and no access to
// anything outside the supplied variables, which keeps evaluation free of
// injection hazards.
package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenOp
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lex splits an expression into tokens. Operators are the two-character
// forms ==, !=, <=, >=, &&, || and the single characters < > + - * / % !.
func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "(", pos: i})
			i++

		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")", pos: i})
			i++

		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			var sb strings.Builder
			for j < n && input[j] != quote {
				if input[j] == '\\' && j+1 < n {
					j++
				}
				sb.WriteByte(input[j])
				j++
			}
			if j >= n {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			tokens = append(tokens, token{kind: tokenString, text: sb.String(), pos: i})
			i = j + 1

		case c >= '0' && c <= '9':
			j := i
			seenDot := false
			for j < n && (input[j] >= '0' && input[j] <= '9' || input[j] == '.' && !seenDot) {
				if input[j] == '.' {
					seenDot = true
				}
				j++
			}
			text := input[i:j]
			var num float64
			if _, err := fmt.Sscanf(text, "%g", &num); err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, i)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, num: num, pos: i})
			i = j

		case isIdentStart(rune(c)):
			j := i
			for j < n && isIdentPart(rune(input[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: input[i:j], pos: i})
			i = j

		default:
			if i+1 < n {
				two := input[i : i+2]
				switch two {
				case "==", "!=", "<=", ">=", "&&", "||":
					tokens = append(tokens, token{kind: tokenOp, text: two, pos: i})
					i += 2
					continue
				}
			}
			switch c {
			case '<', '>', '+', '-', '*', '/', '%', '!':
				tokens = append(tokens, token{kind: tokenOp, text: string(c), pos: i})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
		}
	}

	tokens = append(tokens, token{kind: tokenEOF, pos: n})
	return tokens, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// Dots are part of identifiers so that paths like user.address.city lex as
// one token.
func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
