package lang

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for unit source
// ---------------------------------------------------------------------------

// Parser parses unit source into an AST.
//
// The whole input is tokenized up front so the parser can look arbitrarily
// far ahead when telling typed declarations from expressions and casts from
// parenthesized expressions.
type Parser struct {
	tokens    []Token
	pos       int
	curToken  Token
	peekToken Token
	errors    []string
	className string // simple name of the class being parsed, for constructors
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{tokens: Tokenize(input)}
	p.sync()
	return p
}

// sync refreshes curToken and peekToken from the token buffer.
func (p *Parser) sync() {
	p.curToken = p.at(p.pos)
	p.peekToken = p.at(p.pos + 1)
}

// at returns the token at index i, or the final token past the end.
func (p *Parser) at(i int) Token {
	if i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.sync()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken)
	return false
}

// errorf records a parse error.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// failed reports whether parsing should stop.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

// err folds the accumulated errors into one error value.
func (p *Parser) err() error {
	if len(p.errors) == 0 {
		return nil
	}
	return &SyntaxError{Messages: p.errors}
}

// SyntaxError reports one or more parse errors.
type SyntaxError struct {
	Messages []string
}

func (e *SyntaxError) Error() string {
	return "syntax error: " + strings.Join(e.Messages, "; ")
}

// ErrSyntax matches any *SyntaxError with errors.Is.
var ErrSyntax = errors.New("lang: syntax error")

// Is makes errors.Is(err, ErrSyntax) hold for syntax errors.
func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ParseClass parses a complete compilation unit holding one class.
func ParseClass(src string) (*ClassDecl, error) {
	p := NewParser(src)
	c := p.parseClass()
	if !p.failed() && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after class body", p.curToken)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseStatements parses a statement list, as used by patch fragments.
// Braces around the whole fragment are optional.
func ParseStatements(src string) ([]Stmt, error) {
	p := NewParser(src)
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) && !p.failed() {
		if s := p.parseStatement(); s != nil {
			stmts = append(stmts, s)
		}
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if len(stmts) == 1 {
		if b, ok := stmts[0].(*Block); ok {
			return b.Stmts, nil
		}
	}
	return stmts, nil
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (Expr, error) {
	p := NewParser(src)
	e := p.parseExpr()
	if !p.failed() && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after expression", p.curToken)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseMember parses one member declaration as it would appear inside the
// body of class className (a fully qualified name).
func ParseMember(src, className string) (Member, error) {
	p := NewParser(src)
	p.className = SimpleName(className)
	m := p.parseMember()
	if !p.failed() && !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after member", p.curToken)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseModifiers() []string {
	var mods []string
	for isModifier(p.curToken.Type) {
		mods = append(mods, p.curToken.Literal)
		p.nextToken()
	}
	return mods
}

// parseQualifiedName parses ident(.ident)*.
func (p *Parser) parseQualifiedName() string {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected name, got %s", p.curToken)
		return ""
	}
	parts := []string{p.curToken.Literal}
	p.nextToken()
	for p.curTokenIs(TokenDot) && p.peekTokenIs(TokenIdentifier) {
		p.nextToken()
		parts = append(parts, p.curToken.Literal)
		p.nextToken()
	}
	return strings.Join(parts, ".")
}

// parseType parses a type reference: void or a qualified name.
func (p *Parser) parseType() string {
	if p.curTokenIs(TokenVoid) {
		p.nextToken()
		return "void"
	}
	return p.parseQualifiedName()
}

func (p *Parser) parseClass() *ClassDecl {
	c := &ClassDecl{Position: p.curToken.Pos}
	c.Modifiers = p.parseModifiers()
	if !p.expect(TokenClass) {
		return nil
	}
	c.Name = p.parseQualifiedName()
	p.className = SimpleName(c.Name)
	if p.curTokenIs(TokenExtends) {
		p.nextToken()
		c.Super = p.parseQualifiedName()
	}
	if !p.expect(TokenLBrace) {
		return nil
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) && !p.failed() {
		if m := p.parseMember(); m != nil {
			c.Members = append(c.Members, m)
		}
	}
	p.expect(TokenRBrace)
	return c
}

func (p *Parser) parseMember() Member {
	pos := p.curToken.Pos
	mods := p.parseModifiers()

	// Constructor: SimpleName(
	if p.curTokenIs(TokenIdentifier) && p.curToken.Literal == p.className && p.peekTokenIs(TokenLParen) {
		p.nextToken()
		m := &MethodDecl{Position: pos, Modifiers: mods, Result: "void", Name: "<init>", Ctor: true}
		m.Params = p.parseParams()
		m.Body = p.parseBlock()
		return m
	}

	typ := p.parseType()
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected member name, got %s", p.curToken)
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenLParen) {
		m := &MethodDecl{Position: pos, Modifiers: mods, Result: typ, Name: name}
		m.Params = p.parseParams()
		if p.curTokenIs(TokenNative) {
			p.nextToken()
			if !p.curTokenIs(TokenString) {
				p.errorf("expected native binding name, got %s", p.curToken)
				return nil
			}
			m.Native = p.curToken.Literal
			p.nextToken()
			p.expect(TokenSemi)
			return m
		}
		m.Body = p.parseBlock()
		return m
	}

	f := &FieldDecl{Position: pos, Modifiers: mods, Type: typ, Name: name}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		f.Init = p.parseExpr()
	}
	p.expect(TokenSemi)
	return f
}

func (p *Parser) parseParams() []Param {
	var params []Param
	if !p.expect(TokenLParen) {
		return nil
	}
	for !p.curTokenIs(TokenRParen) && !p.failed() {
		typ := p.parseType()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken)
			return nil
		}
		params = append(params, Param{Type: typ, Name: p.curToken.Literal})
		p.nextToken()
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	p.expect(TokenRParen)
	return params
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlock() *Block {
	b := &Block{Position: p.curToken.Pos}
	if !p.expect(TokenLBrace) {
		return b
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) && !p.failed() {
		if s := p.parseStatement(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	p.expect(TokenRBrace)
	return b
}

func (p *Parser) parseStatement() Stmt {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case TokenLBrace:
		return p.parseBlock()
	case TokenVar:
		p.nextToken()
		return p.parseVarRest(pos, "var")
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		p.expect(TokenLParen)
		cond := p.parseExpr()
		p.expect(TokenRParen)
		return &WhileStmt{Position: pos, Cond: cond, Body: p.parseStatement()}
	case TokenReturn:
		p.nextToken()
		r := &ReturnStmt{Position: pos}
		if !p.curTokenIs(TokenSemi) {
			r.Value = p.parseExpr()
		}
		p.expect(TokenSemi)
		return r
	case TokenThrow:
		p.nextToken()
		t := &ThrowStmt{Position: pos, Value: p.parseExpr()}
		p.expect(TokenSemi)
		return t
	case TokenTry:
		return p.parseTry()
	case TokenSemi:
		p.nextToken()
		return nil
	}

	if p.isTypedDecl() {
		typ := p.parseQualifiedName()
		return p.parseVarRest(pos, typ)
	}

	x := p.parseExpr()
	if p.failed() {
		return nil
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		s := &AssignStmt{Position: pos, Target: x, Value: p.parseExpr()}
		p.expect(TokenSemi)
		return s
	}
	p.expect(TokenSemi)
	return &ExprStmt{Position: pos, X: x}
}

// isTypedDecl looks ahead for "a.b.T name =" or "a.b.T name;".
func (p *Parser) isTypedDecl() bool {
	i := p.pos
	if p.at(i).Type != TokenIdentifier {
		return false
	}
	i++
	for p.at(i).Type == TokenDot && p.at(i+1).Type == TokenIdentifier {
		i += 2
	}
	if p.at(i).Type != TokenIdentifier {
		return false
	}
	next := p.at(i + 1).Type
	return next == TokenAssign || next == TokenSemi
}

func (p *Parser) parseVarRest(pos Position, typ string) Stmt {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected variable name, got %s", p.curToken)
		return nil
	}
	v := &VarDecl{Position: pos, Type: typ, Name: p.curToken.Literal}
	p.nextToken()
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		v.Init = p.parseExpr()
	} else if typ == "var" {
		p.errorf("var %s needs an initializer", v.Name)
		return nil
	}
	p.expect(TokenSemi)
	return v
}

func (p *Parser) parseIf() Stmt {
	s := &IfStmt{Position: p.curToken.Pos}
	p.nextToken()
	p.expect(TokenLParen)
	s.Cond = p.parseExpr()
	p.expect(TokenRParen)
	s.Then = p.parseStatement()
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		s.Else = p.parseStatement()
	}
	return s
}

func (p *Parser) parseTry() Stmt {
	s := &TryStmt{Position: p.curToken.Pos}
	p.nextToken()
	s.Body = p.parseBlock()
	for p.curTokenIs(TokenCatch) && !p.failed() {
		c := &CatchClause{Position: p.curToken.Pos}
		p.nextToken()
		p.expect(TokenLParen)
		c.Type = p.parseQualifiedName()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected catch variable, got %s", p.curToken)
			return nil
		}
		c.Name = p.curToken.Literal
		p.nextToken()
		p.expect(TokenRParen)
		c.Body = p.parseBlock()
		s.Catches = append(s.Catches, c)
	}
	if p.curTokenIs(TokenFinally) {
		p.nextToken()
		s.Finally = p.parseBlock()
	}
	if len(s.Catches) == 0 && s.Finally == nil {
		p.errorf("try without catch or finally")
		return nil
	}
	return s
}

// ---------------------------------------------------------------------------
// Expressions, lowest precedence first
// ---------------------------------------------------------------------------

func (p *Parser) parseExpr() Expr {
	return p.parseTernary()
}

func (p *Parser) parseTernary() Expr {
	cond := p.parseOr()
	if !p.curTokenIs(TokenQuestion) || p.failed() {
		return cond
	}
	e := &CondExpr{Position: cond.Pos(), Cond: cond}
	p.nextToken()
	e.Then = p.parseTernary()
	p.expect(TokenColon)
	e.Else = p.parseTernary()
	return e
}

// binaryLevels lists the binary operators by increasing precedence.
var binaryLevels = [][]TokenType{
	{TokenOrOr},
	{TokenAndAnd},
	{TokenEq, TokenNotEq},
	{TokenLess, TokenLessEq, TokenGreater, TokenGreatEq},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPercent},
}

func (p *Parser) parseOr() Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	x := p.parseBinary(level + 1)
	for !p.failed() {
		// instanceof binds at the relational level
		if level == 3 && p.curTokenIs(TokenInstanceof) {
			p.nextToken()
			x = &InstanceofExpr{Position: x.Pos(), X: x, Type: p.parseQualifiedName()}
			continue
		}
		if !tokenIn(p.curToken.Type, binaryLevels[level]) {
			break
		}
		op := p.curToken.Literal
		p.nextToken()
		y := p.parseBinary(level + 1)
		x = &BinaryExpr{Position: x.Pos(), Op: op, X: x, Y: y}
	}
	return x
}

func tokenIn(t TokenType, set []TokenType) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

func (p *Parser) parseUnary() Expr {
	pos := p.curToken.Pos
	switch p.curToken.Type {
	case TokenBang, TokenMinus:
		op := p.curToken.Literal
		p.nextToken()
		return &UnaryExpr{Position: pos, Op: op, X: p.parseUnary()}
	case TokenLParen:
		if typ, guarded, ok := p.castAhead(); ok {
			for p.curToken.Type != TokenRParen {
				p.nextToken()
			}
			p.nextToken()
			return &CastExpr{Position: pos, Type: typ, Guarded: guarded, X: p.parseUnary()}
		}
	}
	return p.parsePostfix(p.parsePrimary())
}

// castAhead reports whether the tokens at the current "(" start a cast:
// "(" QName ["?"] ")" followed by something that can begin an operand.
func (p *Parser) castAhead() (typ string, guarded bool, ok bool) {
	i := p.pos + 1
	if p.at(i).Type != TokenIdentifier {
		return "", false, false
	}
	parts := []string{p.at(i).Literal}
	i++
	for p.at(i).Type == TokenDot && p.at(i+1).Type == TokenIdentifier {
		parts = append(parts, p.at(i+1).Literal)
		i += 2
	}
	if p.at(i).Type == TokenQuestion {
		guarded = true
		i++
	}
	if p.at(i).Type != TokenRParen {
		return "", false, false
	}
	if !guarded {
		switch p.at(i + 1).Type {
		case TokenIdentifier, TokenInteger, TokenFloat, TokenString, TokenLParen,
			TokenThis, TokenNew, TokenDollar, TokenBang, TokenNull, TokenTrue, TokenFalse:
		default:
			return "", false, false
		}
	}
	return strings.Join(parts, "."), guarded, true
}

func (p *Parser) parsePostfix(x Expr) Expr {
	for x != nil && !p.failed() {
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected member name after '.', got %s", p.curToken)
				return x
			}
			pos, name := p.curToken.Pos, p.curToken.Literal
			p.nextToken()
			if p.curTokenIs(TokenLParen) {
				x = &CallExpr{Position: pos, Recv: x, Name: name, Args: p.parseArgs()}
			} else {
				x = &SelectExpr{Position: pos, X: x, Name: name}
			}
		case TokenLBracket:
			pos := p.curToken.Pos
			p.nextToken()
			idx := p.parseExpr()
			p.expect(TokenRBracket)
			x = &IndexExpr{Position: pos, X: x, Index: idx}
		default:
			return x
		}
	}
	return x
}

func (p *Parser) parseArgs() []Expr {
	var args []Expr
	p.expect(TokenLParen)
	for !p.curTokenIs(TokenRParen) && !p.failed() {
		args = append(args, p.parseExpr())
		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	pos := tok.Pos
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.errorf("invalid integer %s", tok.Literal)
			return nil
		}
		return &IntLit{Position: pos, Value: v}
	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf("invalid float %s", tok.Literal)
			return nil
		}
		return &FloatLit{Position: pos, Value: v}
	case TokenString:
		p.nextToken()
		return &StringLit{Position: pos, Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLit{Position: pos, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLit{Position: pos}
	case TokenThis:
		p.nextToken()
		return &ThisExpr{Position: pos}
	case TokenSuper:
		p.nextToken()
		if !p.curTokenIs(TokenDot) {
			p.errorf("super must be followed by a method call")
			return nil
		}
		return &SuperExpr{Position: pos}
	case TokenDollar:
		p.nextToken()
		if p.curTokenIs(TokenLParen) {
			return &CallExpr{Position: pos, Name: tok.Literal, Args: p.parseArgs()}
		}
		return &DollarVar{Position: pos, Name: tok.Literal}
	case TokenIdentifier:
		p.nextToken()
		if p.curTokenIs(TokenLParen) {
			return &CallExpr{Position: pos, Name: tok.Literal, Args: p.parseArgs()}
		}
		return &Ident{Position: pos, Name: tok.Literal}
	case TokenNew:
		p.nextToken()
		typ := p.parseQualifiedName()
		return &NewExpr{Position: pos, Type: typ, Args: p.parseArgs()}
	case TokenLParen:
		p.nextToken()
		x := p.parseExpr()
		p.expect(TokenRParen)
		return &ParenExpr{Position: pos, X: x}
	case TokenSplice:
		return p.parseSplice()
	case TokenError:
		p.errorf("%s", tok.Literal)
		return nil
	}
	p.errorf("unexpected %s", tok)
	return nil
}

// parseSplice parses: splice site [= value] { stmts }
func (p *Parser) parseSplice() Expr {
	s := &SpliceExpr{Position: p.curToken.Pos}
	p.nextToken()
	site := p.parsePostfix(p.parsePrimary())
	if p.failed() {
		return nil
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		s.Site = &AssignStmt{Position: site.Pos(), Target: site, Value: p.parseExpr()}
	} else {
		s.Site = site
	}
	s.Body = p.parseBlock()
	return s
}
