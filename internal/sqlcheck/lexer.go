package sqlcheck

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenKind classifies lexed SQL tokens
type TokenKind int

const (
	TokenWord TokenKind = iota // keyword or bare identifier
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenOperator
	TokenLParen
	TokenRParen
	TokenComma
	TokenSemicolon
)

// Token is a single lexed SQL token
type Token struct {
	Kind TokenKind
	Text string // for words, uppercased; for quoted idents, unquoted
	Pos  int
}

// Upper returns the token text uppercased, for keyword comparison
func (t Token) Upper() string {
	if t.Kind == TokenWord {
		return t.Text
	}
	return strings.ToUpper(t.Text)
}

// lex tokenizes a SQL statement. Comments are stripped, string
// literals are kept as single tokens so keywords inside them are
// never misread, and dollar-quoted strings are rejected outright
// since the translator has no business emitting them.
func lex(input string) ([]Token, error) {
	var tokens []Token
	runes := []rune(input)
	i := 0
	n := len(runes)

	for i < n {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < n && runes[i+1] == '-':
			// line comment
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < n && runes[i+1] == '*':
			// block comment, no nesting. Scan in runes so token
			// positions stay rune offsets regardless of comment content.
			j := i + 2
			for j+1 < n && !(runes[j] == '*' && runes[j+1] == '/') {
				j++
			}
			if j+1 >= n {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i = j + 2

		case r == '\'':
			start := i
			i++
			for i < n {
				if runes[i] == '\'' {
					if i+1 < n && runes[i+1] == '\'' {
						i += 2 // escaped quote
						continue
					}
					break
				}
				i++
			}
			if i >= n {
				return nil, fmt.Errorf("unterminated string literal at offset %d", start)
			}
			i++
			tokens = append(tokens, Token{Kind: TokenString, Text: string(runes[start:i]), Pos: start})

		case r == '"':
			start := i
			i++
			for i < n && runes[i] != '"' {
				i++
			}
			if i >= n {
				return nil, fmt.Errorf("unterminated quoted identifier at offset %d", start)
			}
			text := string(runes[start+1 : i])
			i++
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Text: text, Pos: start})

		case r == '$':
			return nil, fmt.Errorf("dollar quoting is not allowed (offset %d)", i)

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, Token{
				Kind: TokenWord,
				Text: strings.ToUpper(string(runes[start:i])),
				Pos:  start,
			})

		case unicode.IsDigit(r):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: string(runes[start:i]), Pos: start})

		case r == '(':
			tokens = append(tokens, Token{Kind: TokenLParen, Text: "(", Pos: i})
			i++

		case r == ')':
			tokens = append(tokens, Token{Kind: TokenRParen, Text: ")", Pos: i})
			i++

		case r == ',':
			tokens = append(tokens, Token{Kind: TokenComma, Text: ",", Pos: i})
			i++

		case r == ';':
			tokens = append(tokens, Token{Kind: TokenSemicolon, Text: ";", Pos: i})
			i++

		default:
			start := i
			for i < n && isOperatorRune(runes[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
			tokens = append(tokens, Token{Kind: TokenOperator, Text: string(runes[start:i]), Pos: start})
		}
	}

	return tokens, nil
}

func isOperatorRune(r rune) bool {
	switch r {
	case '=', '<', '>', '!', '+', '-', '*', '/', '%', '|', '~', '^', '&', '.', ':', '[', ']':
		return true
	}
	return false
}
