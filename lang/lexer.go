package lang

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for unit source
// ---------------------------------------------------------------------------

// Lexer tokenizes unit source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	if msg := l.skipWhitespaceAndComments(); msg != "" {
		return Token{Type: TokenError, Literal: msg, Pos: l.position()}
	}

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '"':
		return l.readString(pos)
	case l.ch == '$':
		return l.readDollar(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)
	}

	ch := l.ch
	l.readChar()

	two := func(next rune, both, single TokenType) Token {
		if l.ch == next {
			l.readChar()
			return Token{Type: both, Literal: string(ch) + string(next), Pos: pos}
		}
		return Token{Type: single, Literal: string(ch), Pos: pos}
	}

	switch ch {
	case '(':
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case ')':
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case '{':
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}
	case '}':
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}
	case '[':
		return Token{Type: TokenLBracket, Literal: "[", Pos: pos}
	case ']':
		return Token{Type: TokenRBracket, Literal: "]", Pos: pos}
	case ';':
		return Token{Type: TokenSemi, Literal: ";", Pos: pos}
	case ',':
		return Token{Type: TokenComma, Literal: ",", Pos: pos}
	case '.':
		return Token{Type: TokenDot, Literal: ".", Pos: pos}
	case '+':
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}
	case '-':
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}
	case '*':
		return Token{Type: TokenStar, Literal: "*", Pos: pos}
	case '/':
		return Token{Type: TokenSlash, Literal: "/", Pos: pos}
	case '%':
		return Token{Type: TokenPercent, Literal: "%", Pos: pos}
	case '?':
		return Token{Type: TokenQuestion, Literal: "?", Pos: pos}
	case ':':
		return Token{Type: TokenColon, Literal: ":", Pos: pos}
	case '=':
		return two('=', TokenEq, TokenAssign)
	case '!':
		return two('=', TokenNotEq, TokenBang)
	case '<':
		return two('=', TokenLessEq, TokenLess)
	case '>':
		return two('=', TokenGreatEq, TokenGreater)
	case '&':
		if l.ch == '&' {
			l.readChar()
			return Token{Type: TokenAndAnd, Literal: "&&", Pos: pos}
		}
	case '|':
		if l.ch == '|' {
			l.readChar()
			return Token{Type: TokenOrOr, Literal: "||", Pos: pos}
		}
	}
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %c", ch), Pos: pos}
}

// skipWhitespaceAndComments skips whitespace, // line comments and /* */
// block comments. It returns a message for an unterminated block comment.
func (l *Lexer) skipWhitespaceAndComments() string {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') {
				if l.ch == 0 {
					return "unterminated comment"
				}
				l.readChar()
			}
			l.readChar()
			l.readChar()
			continue
		}
		return ""
	}
}

// readString reads a double-quoted string literal with backslash escapes.
func (l *Lexer) readString(pos Position) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	for l.ch != '"' {
		switch l.ch {
		case 0, '\n':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"', '\\':
				sb.WriteRune(l.ch)
			default:
				return Token{Type: TokenError, Literal: fmt.Sprintf("unknown escape \\%c", l.ch), Pos: pos}
			}
		default:
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing "

	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readDollar reads a fragment variable: $0, $1, $$, $_, $e, $proceed.
func (l *Lexer) readDollar(pos Position) Token {
	start := l.pos
	l.readChar() // consume $

	switch {
	case l.ch == '$' || l.ch == '_':
		l.readChar()
	case isDigit(l.ch):
		for isDigit(l.ch) {
			l.readChar()
		}
	case isLetter(l.ch):
		for isLetter(l.ch) || isDigit(l.ch) {
			l.readChar()
		}
	default:
		return Token{Type: TokenError, Literal: "lone $", Pos: pos}
	}
	return Token{Type: TokenDollar, Literal: l.input[start:l.pos], Pos: pos}
}

// readNumber reads an integer or float literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenFloat, Literal: l.input[start:l.pos], Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: l.input[start:l.pos], Pos: pos}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if tokType, ok := reservedWords[literal]; ok {
		return Token{Type: tokType, Literal: literal, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: literal, Pos: pos}
}

// Helper functions

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
