package lang

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Printer: canonical source output
// ---------------------------------------------------------------------------

// Format prints a class declaration as canonical unit source.
func Format(c *ClassDecl) string {
	pr := &printer{}
	pr.class(c)
	return pr.sb.String()
}

// FormatMember prints a single member declaration of class className.
func FormatMember(m Member, className string) string {
	pr := &printer{className: SimpleName(className)}
	pr.member(m)
	return strings.TrimRight(pr.sb.String(), "\n")
}

// FormatStmts prints a statement list, one statement per line.
func FormatStmts(stmts []Stmt) string {
	pr := &printer{}
	for _, s := range stmts {
		pr.stmt(s)
	}
	return strings.TrimRight(pr.sb.String(), "\n")
}

// FormatExpr prints an expression.
func FormatExpr(e Expr) string {
	pr := &printer{compact: true}
	pr.expr(e, precLowest)
	return pr.sb.String()
}

// Compact prints a statement list on a single line, e.g. "f(); g(); f();".
func Compact(stmts []Stmt) string {
	pr := &printer{compact: true}
	for i, s := range stmts {
		if i > 0 {
			pr.sb.WriteByte(' ')
		}
		pr.stmt(s)
	}
	return pr.sb.String()
}

type printer struct {
	sb        strings.Builder
	indent    int
	compact   bool
	className string // simple name, printed for constructors
}

func (pr *printer) write(s string) {
	pr.sb.WriteString(s)
}

// line starts a new statement line (or separates statements in compact mode).
func (pr *printer) line() {
	if pr.compact {
		return
	}
	pr.write(strings.Repeat("\t", pr.indent))
}

func (pr *printer) end() {
	if !pr.compact {
		pr.sb.WriteByte('\n')
	}
}

func (pr *printer) mods(mods []string) {
	for _, m := range mods {
		pr.write(m)
		pr.write(" ")
	}
}

func (pr *printer) class(c *ClassDecl) {
	pr.mods(c.Modifiers)
	pr.write("class ")
	pr.write(c.Name)
	if c.Super != "" {
		pr.write(" extends ")
		pr.write(c.Super)
	}
	pr.write(" {\n")
	pr.className = c.SimpleName()
	pr.indent++
	var prev Member
	for _, m := range c.Members {
		if prev != nil {
			_, prevField := prev.(*FieldDecl)
			_, curField := m.(*FieldDecl)
			if !prevField || !curField {
				pr.write("\n")
			}
		}
		pr.member(m)
		prev = m
	}
	pr.indent--
	pr.write("}\n")
}

func (pr *printer) member(m Member) {
	pr.line()
	switch m := m.(type) {
	case *FieldDecl:
		pr.mods(m.Modifiers)
		pr.write(m.Type + " " + m.Name)
		if m.Init != nil {
			pr.write(" = ")
			pr.expr(m.Init, precLowest)
		}
		pr.write(";")
		pr.end()
	case *MethodDecl:
		pr.mods(m.Modifiers)
		if m.Ctor {
			pr.write(pr.className)
		} else {
			pr.write(m.Result + " " + m.Name)
		}
		pr.write("(")
		for i, p := range m.Params {
			if i > 0 {
				pr.write(", ")
			}
			pr.write(p.Type + " " + p.Name)
		}
		pr.write(")")
		if m.Body == nil {
			pr.write(" native " + quote(m.Native) + ";")
			pr.end()
			return
		}
		pr.write(" ")
		pr.block(m.Body)
		pr.end()
	}
}

func (pr *printer) block(b *Block) {
	if len(b.Stmts) == 0 {
		pr.write("{}")
		return
	}
	if pr.compact {
		pr.write("{ ")
		for i, s := range b.Stmts {
			if i > 0 {
				pr.write(" ")
			}
			pr.stmt(s)
		}
		pr.write(" }")
		return
	}
	pr.write("{\n")
	pr.indent++
	for _, s := range b.Stmts {
		pr.stmt(s)
	}
	pr.indent--
	pr.write(strings.Repeat("\t", pr.indent) + "}")
}

func (pr *printer) stmt(s Stmt) {
	pr.line()
	pr.stmtBody(s)
	pr.end()
}

// stmtBody prints a statement without leading indentation or trailing newline.
func (pr *printer) stmtBody(s Stmt) {
	switch s := s.(type) {
	case *Block:
		pr.block(s)
	case *VarDecl:
		pr.write(s.Type + " " + s.Name)
		if s.Init != nil {
			pr.write(" = ")
			pr.expr(s.Init, precLowest)
		}
		pr.write(";")
	case *AssignStmt:
		pr.expr(s.Target, precPostfix)
		pr.write(" = ")
		pr.expr(s.Value, precLowest)
		pr.write(";")
	case *ExprStmt:
		pr.expr(s.X, precLowest)
		pr.write(";")
	case *IfStmt:
		pr.write("if (")
		pr.expr(s.Cond, precLowest)
		pr.write(") ")
		pr.nested(s.Then)
		if s.Else != nil {
			pr.write(" else ")
			pr.nested(s.Else)
		}
	case *WhileStmt:
		pr.write("while (")
		pr.expr(s.Cond, precLowest)
		pr.write(") ")
		pr.nested(s.Body)
	case *ReturnStmt:
		pr.write("return")
		if s.Value != nil {
			pr.write(" ")
			pr.expr(s.Value, precLowest)
		}
		pr.write(";")
	case *ThrowStmt:
		pr.write("throw ")
		pr.expr(s.Value, precLowest)
		pr.write(";")
	case *TryStmt:
		pr.write("try ")
		pr.block(s.Body)
		for _, c := range s.Catches {
			pr.write(" catch (" + c.Type + " " + c.Name + ") ")
			pr.block(c.Body)
		}
		if s.Finally != nil {
			pr.write(" finally ")
			pr.block(s.Finally)
		}
	}
}

// nested prints the body of if/while. Non-block bodies are wrapped in a
// block so the printed form never depends on dangling-else rules.
func (pr *printer) nested(s Stmt) {
	if b, ok := s.(*Block); ok {
		pr.block(b)
		return
	}
	if ifs, ok := s.(*IfStmt); ok {
		pr.stmtBody(ifs)
		return
	}
	pr.block(&Block{Stmts: []Stmt{s}})
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

const (
	precLowest = iota
	precTernary
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

var binaryPrec = map[string]int{
	"||": precOr,
	"&&": precAnd,
	"==": precEquality, "!=": precEquality,
	"<": precRelational, "<=": precRelational, ">": precRelational, ">=": precRelational,
	"+": precAdditive, "-": precAdditive,
	"*": precMultiplicative, "/": precMultiplicative, "%": precMultiplicative,
}

func exprPrec(e Expr) int {
	switch e := e.(type) {
	case *CondExpr:
		return precTernary
	case *BinaryExpr:
		return binaryPrec[e.Op]
	case *InstanceofExpr:
		return precRelational
	case *UnaryExpr, *CastExpr:
		return precUnary
	}
	return precPostfix
}

// expr prints e, parenthesizing it when it binds looser than min.
func (pr *printer) expr(e Expr, min int) {
	if exprPrec(e) < min {
		pr.write("(")
		pr.expr(e, precLowest)
		pr.write(")")
		return
	}
	switch e := e.(type) {
	case *IntLit:
		pr.write(strconv.FormatInt(e.Value, 10))
	case *FloatLit:
		s := strconv.FormatFloat(e.Value, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		pr.write(s)
	case *StringLit:
		pr.write(quote(e.Value))
	case *BoolLit:
		pr.write(strconv.FormatBool(e.Value))
	case *NullLit:
		pr.write("null")
	case *Ident:
		pr.write(e.Name)
	case *DollarVar:
		pr.write(e.Name)
	case *ThisExpr:
		pr.write("this")
	case *SuperExpr:
		pr.write("super")
	case *SelectExpr:
		pr.expr(e.X, precPostfix)
		pr.write("." + e.Name)
	case *CallExpr:
		if e.Recv != nil {
			pr.expr(e.Recv, precPostfix)
			pr.write(".")
		}
		pr.write(e.Name)
		pr.args(e.Args)
	case *NewExpr:
		pr.write("new " + e.Type)
		pr.args(e.Args)
	case *IndexExpr:
		pr.expr(e.X, precPostfix)
		pr.write("[")
		pr.expr(e.Index, precLowest)
		pr.write("]")
	case *UnaryExpr:
		pr.write(e.Op)
		pr.expr(e.X, precUnary)
	case *BinaryExpr:
		prec := binaryPrec[e.Op]
		pr.expr(e.X, prec)
		pr.write(" " + e.Op + " ")
		pr.expr(e.Y, prec+1)
	case *InstanceofExpr:
		pr.expr(e.X, precRelational)
		pr.write(" instanceof " + e.Type)
	case *CondExpr:
		pr.expr(e.Cond, precOr)
		pr.write(" ? ")
		pr.expr(e.Then, precTernary)
		pr.write(" : ")
		pr.expr(e.Else, precTernary)
	case *CastExpr:
		pr.write("(" + e.Type)
		if e.Guarded {
			pr.write("?")
		}
		pr.write(") ")
		pr.expr(e.X, precUnary)
	case *ParenExpr:
		pr.write("(")
		pr.expr(e.X, precLowest)
		pr.write(")")
	case *SpliceExpr:
		pr.write("splice ")
		switch site := e.Site.(type) {
		case *AssignStmt:
			pr.expr(site.Target, precPostfix)
			pr.write(" = ")
			pr.expr(site.Value, precLowest)
		case Expr:
			pr.expr(site, precPostfix)
		}
		pr.write(" ")
		pr.block(e.Body)
	}
}

func (pr *printer) args(args []Expr) {
	pr.write("(")
	for i, a := range args {
		if i > 0 {
			pr.write(", ")
		}
		pr.expr(a, precLowest)
	}
	pr.write(")")
}

// quote renders s as a string literal using the escapes the lexer accepts.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
