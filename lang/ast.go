// Package lang implements the unit source language: a small class-based
// language whose compilation units are the editable "binary artifacts" that
// the patch engine operates on.
//
// The package provides a lexer, a recursive-descent parser producing the
// AST defined here, a canonical printer and tree walkers used by the patch
// operations to locate and rewrite code.
package lang

import "strings"

// ---------------------------------------------------------------------------
// AST Node Types
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
}

// Position represents a source position.
type Position struct {
	Offset int // byte offset from start of file
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Pos returns the position itself, so embedding Position satisfies Node.
func (p Position) Pos() Position { return p }

// Expr is the interface for all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is the interface for all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// Member is the interface for class members (fields and methods).
type Member interface {
	Node
	memberNode()
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// ClassDecl represents a class declaration, the only top-level form.
type ClassDecl struct {
	Position
	Modifiers []string
	Name      string // fully qualified, e.g. "app.Main"
	Super     string // fully qualified superclass, "" for the root class
	Members   []Member
}

// SimpleName returns the class name without its package prefix.
func (c *ClassDecl) SimpleName() string {
	return SimpleName(c.Name)
}

// Package returns the package prefix of the class name ("" for none).
func (c *ClassDecl) Package() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// Fields returns the field declarations in member order.
func (c *ClassDecl) Fields() []*FieldDecl {
	var out []*FieldDecl
	for _, m := range c.Members {
		if f, ok := m.(*FieldDecl); ok {
			out = append(out, f)
		}
	}
	return out
}

// Methods returns the method and constructor declarations in member order.
func (c *ClassDecl) Methods() []*MethodDecl {
	var out []*MethodDecl
	for _, m := range c.Members {
		if md, ok := m.(*MethodDecl); ok {
			out = append(out, md)
		}
	}
	return out
}

// FieldDecl represents a field: [modifiers] Type name [= init];
type FieldDecl struct {
	Position
	Modifiers []string
	Type      string
	Name      string
	Init      Expr // may be nil
}

// IsStatic reports whether the field is static.
func (f *FieldDecl) IsStatic() bool { return HasModifier(f.Modifiers, "static") }

// Param is a method parameter.
type Param struct {
	Type string
	Name string
}

// MethodDecl represents a method or constructor.
//
// Constructors have Ctor set, Name "<init>" and Result "void". Native methods
// have a nil Body and a non-empty Native binding name.
type MethodDecl struct {
	Position
	Modifiers []string
	Result    string
	Name      string
	Params    []Param
	Body      *Block
	Native    string
	Ctor      bool
}

// IsStatic reports whether the method is static.
func (m *MethodDecl) IsStatic() bool { return HasModifier(m.Modifiers, "static") }

// ParamTypes returns the simple names of the parameter types.
func (m *MethodDecl) ParamTypes() []string {
	out := make([]string, len(m.Params))
	for i, p := range m.Params {
		out[i] = SimpleName(p.Type)
	}
	return out
}

// Key returns the identity of the method within its class: the name plus
// the simple names of the parameter types, e.g. "showStatus(String)".
func (m *MethodDecl) Key() string {
	return m.Name + "(" + strings.Join(m.ParamTypes(), ",") + ")"
}

func (*FieldDecl) memberNode()  {}
func (*MethodDecl) memberNode() {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Block represents a brace-delimited statement list.
type Block struct {
	Position
	Stmts []Stmt
}

// VarDecl represents a local declaration: var x = e; or T x = e;
type VarDecl struct {
	Position
	Type string // "var" for inferred locals
	Name string
	Init Expr // may be nil for typed locals
}

// AssignStmt represents target = value;
type AssignStmt struct {
	Position
	Target Expr // *Ident, *DollarVar, *SelectExpr or *IndexExpr
	Value  Expr
}

// ExprStmt represents an expression evaluated for its side effects.
type ExprStmt struct {
	Position
	X Expr
}

// IfStmt represents if (cond) then [else els].
type IfStmt struct {
	Position
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

// WhileStmt represents while (cond) body.
type WhileStmt struct {
	Position
	Cond Expr
	Body Stmt
}

// ReturnStmt represents return [value];
type ReturnStmt struct {
	Position
	Value Expr // may be nil
}

// ThrowStmt represents throw value;
type ThrowStmt struct {
	Position
	Value Expr
}

// CatchClause is one catch (Type name) { ... } arm of a try statement.
type CatchClause struct {
	Position
	Type string
	Name string
	Body *Block
}

// TryStmt represents try { } catch (...) { } ... [finally { }].
type TryStmt struct {
	Position
	Body    *Block
	Catches []*CatchClause
	Finally *Block // may be nil
}

func (*Block) stmtNode()      {}
func (*VarDecl) stmtNode()    {}
func (*AssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}
func (*IfStmt) stmtNode()     {}
func (*WhileStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode() {}
func (*ThrowStmt) stmtNode()  {}
func (*TryStmt) stmtNode()    {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLit represents an integer literal.
type IntLit struct {
	Position
	Value int64
}

// FloatLit represents a floating point literal.
type FloatLit struct {
	Position
	Value float64
}

// StringLit represents a string literal (Value is unescaped).
type StringLit struct {
	Position
	Value string
}

// BoolLit represents true or false.
type BoolLit struct {
	Position
	Value bool
}

// NullLit represents null.
type NullLit struct {
	Position
}

// Ident represents a name: a local, a field, or the head of a qualified
// class name.
type Ident struct {
	Position
	Name string
}

// DollarVar represents a fragment variable such as $0, $1, $$, $_, $e or
// $proceed. Name includes the leading dollar sign.
type DollarVar struct {
	Position
	Name string
}

// ThisExpr represents this.
type ThisExpr struct {
	Position
}

// SuperExpr represents super; it is only valid as a call receiver.
type SuperExpr struct {
	Position
}

// SelectExpr represents X.Name: a field access or a qualified name part.
type SelectExpr struct {
	Position
	X    Expr
	Name string
}

// CallExpr represents [Recv.]Name(Args...). Recv is nil for unqualified calls.
type CallExpr struct {
	Position
	Recv Expr
	Name string
	Args []Expr
}

// NewExpr represents new Type(Args...).
type NewExpr struct {
	Position
	Type string
	Args []Expr
}

// IndexExpr represents X[Index].
type IndexExpr struct {
	Position
	X     Expr
	Index Expr
}

// UnaryExpr represents Op X for ! and -.
type UnaryExpr struct {
	Position
	Op string
	X  Expr
}

// BinaryExpr represents X Op Y.
type BinaryExpr struct {
	Position
	Op string
	X  Expr
	Y  Expr
}

// InstanceofExpr represents X instanceof Type.
type InstanceofExpr struct {
	Position
	X    Expr
	Type string
}

// CondExpr represents Cond ? Then : Else.
type CondExpr struct {
	Position
	Cond Expr
	Then Expr
	Else Expr
}

// CastExpr represents (Type) X. A guarded cast, written (Type?) X, yields
// null instead of failing when X is not an instance of Type.
type CastExpr struct {
	Position
	Type    string
	X       Expr
	Guarded bool
}

// SpliceExpr represents a rewritten site: splice Site { Body }.
//
// Site is the original code (a *CallExpr, a field read as *SelectExpr or
// *Ident, or a field write as *AssignStmt). Within Body, $0 is the receiver,
// $1..$n are the arguments (or the written value), $$ is the argument list,
// $proceed performs the original operation and $_ holds the result value.
type SpliceExpr struct {
	Position
	Site Node
	Body *Block
}

// ParenExpr preserves explicit parentheses from the source.
type ParenExpr struct {
	Position
	X Expr
}

func (*IntLit) exprNode()         {}
func (*FloatLit) exprNode()       {}
func (*StringLit) exprNode()      {}
func (*BoolLit) exprNode()        {}
func (*NullLit) exprNode()        {}
func (*Ident) exprNode()          {}
func (*DollarVar) exprNode()      {}
func (*ThisExpr) exprNode()       {}
func (*SuperExpr) exprNode()      {}
func (*SelectExpr) exprNode()     {}
func (*CallExpr) exprNode()       {}
func (*NewExpr) exprNode()        {}
func (*IndexExpr) exprNode()      {}
func (*UnaryExpr) exprNode()      {}
func (*BinaryExpr) exprNode()     {}
func (*InstanceofExpr) exprNode() {}
func (*CondExpr) exprNode()       {}
func (*CastExpr) exprNode()       {}
func (*SpliceExpr) exprNode()     {}
func (*ParenExpr) exprNode()      {}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// SimpleName strips the package prefix from a qualified name.
func SimpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// HasModifier reports whether mods contains mod.
func HasModifier(mods []string, mod string) bool {
	for _, m := range mods {
		if m == mod {
			return true
		}
	}
	return false
}

// QualifiedName flattens a chain of identifiers and selections
// (a.b.C) into a dotted name. It reports false for any other expression.
func QualifiedName(e Expr) (string, bool) {
	switch e := e.(type) {
	case *Ident:
		return e.Name, true
	case *SelectExpr:
		head, ok := QualifiedName(e.X)
		if !ok {
			return "", false
		}
		return head + "." + e.Name, true
	}
	return "", false
}

// ZeroLiteral returns the literal a method of the given result type returns
// when its body is stubbed out; nil for void.
func ZeroLiteral(typ string) Expr {
	switch typ {
	case "void":
		return nil
	case "int", "long", "short", "byte", "char":
		return &IntLit{}
	case "double", "float":
		return &FloatLit{}
	case "boolean":
		return &BoolLit{}
	}
	return &NullLit{}
}
