package lang

import "fmt"

// ---------------------------------------------------------------------------
// Token types for unit source
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42
	TokenFloat      // 3.14
	TokenString     // "hello"
	TokenIdentifier // foo, Bar
	TokenDollar     // $1, $_, $$, $proceed

	// Delimiters and operators
	TokenLParen   // (
	TokenRParen   // )
	TokenLBrace   // {
	TokenRBrace   // }
	TokenLBracket // [
	TokenRBracket // ]
	TokenSemi     // ;
	TokenComma    // ,
	TokenDot      // .
	TokenAssign   // =
	TokenEq       // ==
	TokenNotEq    // !=
	TokenLess     // <
	TokenLessEq   // <=
	TokenGreater  // >
	TokenGreatEq  // >=
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenPercent  // %
	TokenBang     // !
	TokenAndAnd   // &&
	TokenOrOr     // ||
	TokenQuestion // ?
	TokenColon    // :

	// Reserved words
	TokenClass
	TokenExtends
	TokenPublic
	TokenPrivate
	TokenProtected
	TokenStatic
	TokenFinal
	TokenSynchronized
	TokenNative
	TokenVoid
	TokenVar
	TokenIf
	TokenElse
	TokenWhile
	TokenReturn
	TokenThrow
	TokenTry
	TokenCatch
	TokenFinally
	TokenNew
	TokenThis
	TokenSuper
	TokenNull
	TokenTrue
	TokenFalse
	TokenInstanceof
	TokenSplice
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenError:        "ERROR",
	TokenInteger:      "INTEGER",
	TokenFloat:        "FLOAT",
	TokenString:       "STRING",
	TokenIdentifier:   "IDENTIFIER",
	TokenDollar:       "DOLLAR",
	TokenLParen:       "(",
	TokenRParen:       ")",
	TokenLBrace:       "{",
	TokenRBrace:       "}",
	TokenLBracket:     "[",
	TokenRBracket:     "]",
	TokenSemi:         ";",
	TokenComma:        ",",
	TokenDot:          ".",
	TokenAssign:       "=",
	TokenEq:           "==",
	TokenNotEq:        "!=",
	TokenLess:         "<",
	TokenLessEq:       "<=",
	TokenGreater:      ">",
	TokenGreatEq:      ">=",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenStar:         "*",
	TokenSlash:        "/",
	TokenPercent:      "%",
	TokenBang:         "!",
	TokenAndAnd:       "&&",
	TokenOrOr:         "||",
	TokenQuestion:     "?",
	TokenColon:        ":",
	TokenClass:        "class",
	TokenExtends:      "extends",
	TokenPublic:       "public",
	TokenPrivate:      "private",
	TokenProtected:    "protected",
	TokenStatic:       "static",
	TokenFinal:        "final",
	TokenSynchronized: "synchronized",
	TokenNative:       "native",
	TokenVoid:         "void",
	TokenVar:          "var",
	TokenIf:           "if",
	TokenElse:         "else",
	TokenWhile:        "while",
	TokenReturn:       "return",
	TokenThrow:        "throw",
	TokenTry:          "try",
	TokenCatch:        "catch",
	TokenFinally:      "finally",
	TokenNew:          "new",
	TokenThis:         "this",
	TokenSuper:        "super",
	TokenNull:         "null",
	TokenTrue:         "true",
	TokenFalse:        "false",
	TokenInstanceof:   "instanceof",
	TokenSplice:       "splice",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"class":        TokenClass,
	"extends":      TokenExtends,
	"public":       TokenPublic,
	"private":      TokenPrivate,
	"protected":    TokenProtected,
	"static":       TokenStatic,
	"final":        TokenFinal,
	"synchronized": TokenSynchronized,
	"native":       TokenNative,
	"void":         TokenVoid,
	"var":          TokenVar,
	"if":           TokenIf,
	"else":         TokenElse,
	"while":        TokenWhile,
	"return":       TokenReturn,
	"throw":        TokenThrow,
	"try":          TokenTry,
	"catch":        TokenCatch,
	"finally":      TokenFinally,
	"new":          TokenNew,
	"this":         TokenThis,
	"super":        TokenSuper,
	"null":         TokenNull,
	"true":         TokenTrue,
	"false":        TokenFalse,
	"instanceof":   TokenInstanceof,
	"splice":       TokenSplice,
}

// isModifier reports whether t is a member modifier keyword.
func isModifier(t TokenType) bool {
	switch t {
	case TokenPublic, TokenPrivate, TokenProtected, TokenStatic, TokenFinal, TokenSynchronized:
		return true
	}
	return false
}
