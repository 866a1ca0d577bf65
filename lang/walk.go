package lang

// ---------------------------------------------------------------------------
// Tree walking and rewriting
// ---------------------------------------------------------------------------

// Inspect traverses the tree rooted at n in source order, calling f for each
// node. If f returns false, the children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *ClassDecl:
		for _, m := range n.Members {
			Inspect(m, f)
		}
	case *FieldDecl:
		Inspect(n.Init, f)
	case *MethodDecl:
		if n.Body != nil {
			Inspect(n.Body, f)
		}
	case *Block:
		for _, s := range n.Stmts {
			Inspect(s, f)
		}
	case *VarDecl:
		Inspect(n.Init, f)
	case *AssignStmt:
		Inspect(n.Target, f)
		Inspect(n.Value, f)
	case *ExprStmt:
		Inspect(n.X, f)
	case *IfStmt:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		if n.Else != nil {
			Inspect(n.Else, f)
		}
	case *WhileStmt:
		Inspect(n.Cond, f)
		Inspect(n.Body, f)
	case *ReturnStmt:
		Inspect(n.Value, f)
	case *ThrowStmt:
		Inspect(n.Value, f)
	case *TryStmt:
		Inspect(n.Body, f)
		for _, c := range n.Catches {
			Inspect(c, f)
		}
		if n.Finally != nil {
			Inspect(n.Finally, f)
		}
	case *CatchClause:
		Inspect(n.Body, f)
	case *SelectExpr:
		Inspect(n.X, f)
	case *CallExpr:
		Inspect(n.Recv, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *NewExpr:
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *IndexExpr:
		Inspect(n.X, f)
		Inspect(n.Index, f)
	case *UnaryExpr:
		Inspect(n.X, f)
	case *BinaryExpr:
		Inspect(n.X, f)
		Inspect(n.Y, f)
	case *InstanceofExpr:
		Inspect(n.X, f)
	case *CondExpr:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		Inspect(n.Else, f)
	case *CastExpr:
		Inspect(n.X, f)
	case *ParenExpr:
		Inspect(n.X, f)
	case *SpliceExpr:
		Inspect(n.Site, f)
		Inspect(n.Body, f)
	}
}

// RewriteExprs visits every expression slot under n in source order and
// stores f's result back into the slot. When f returns a different
// expression, the replacement is not visited further.
func RewriteExprs(n Node, f func(Expr) Expr) {
	rw := exprRewriter(f)
	rw.node(n)
}

type exprRewriter func(Expr) Expr

func (rw exprRewriter) node(n Node) {
	switch n := n.(type) {
	case *ClassDecl:
		for _, m := range n.Members {
			rw.node(m)
		}
	case *FieldDecl:
		n.Init = rw.expr(n.Init)
	case *MethodDecl:
		if n.Body != nil {
			rw.node(n.Body)
		}
	case *Block:
		for _, s := range n.Stmts {
			rw.node(s)
		}
	case *VarDecl:
		n.Init = rw.expr(n.Init)
	case *AssignStmt:
		n.Target = rw.expr(n.Target)
		n.Value = rw.expr(n.Value)
	case *ExprStmt:
		n.X = rw.expr(n.X)
	case *IfStmt:
		n.Cond = rw.expr(n.Cond)
		rw.node(n.Then)
		if n.Else != nil {
			rw.node(n.Else)
		}
	case *WhileStmt:
		n.Cond = rw.expr(n.Cond)
		rw.node(n.Body)
	case *ReturnStmt:
		n.Value = rw.expr(n.Value)
	case *ThrowStmt:
		n.Value = rw.expr(n.Value)
	case *TryStmt:
		rw.node(n.Body)
		for _, c := range n.Catches {
			rw.node(c.Body)
		}
		if n.Finally != nil {
			rw.node(n.Finally)
		}
	case Expr:
		rw.expr(n)
	}
}

func (rw exprRewriter) expr(e Expr) Expr {
	if e == nil {
		return nil
	}
	if r := rw(e); r != e {
		return r
	}
	switch e := e.(type) {
	case *SelectExpr:
		e.X = rw.expr(e.X)
	case *CallExpr:
		e.Recv = rw.expr(e.Recv)
		for i := range e.Args {
			e.Args[i] = rw.expr(e.Args[i])
		}
	case *NewExpr:
		for i := range e.Args {
			e.Args[i] = rw.expr(e.Args[i])
		}
	case *IndexExpr:
		e.X = rw.expr(e.X)
		e.Index = rw.expr(e.Index)
	case *UnaryExpr:
		e.X = rw.expr(e.X)
	case *BinaryExpr:
		e.X = rw.expr(e.X)
		e.Y = rw.expr(e.Y)
	case *InstanceofExpr:
		e.X = rw.expr(e.X)
	case *CondExpr:
		e.Cond = rw.expr(e.Cond)
		e.Then = rw.expr(e.Then)
		e.Else = rw.expr(e.Else)
	case *CastExpr:
		e.X = rw.expr(e.X)
	case *ParenExpr:
		e.X = rw.expr(e.X)
	case *SpliceExpr:
		switch site := e.Site.(type) {
		case *AssignStmt:
			rw.node(site)
		case Expr:
			e.Site = rw.expr(site)
		}
		rw.node(e.Body)
	}
	return e
}

// RewriteStmts visits every statement under n. When f reports true, the
// statement is replaced by the returned list (wrapped in a block where a
// single statement is required) and the replacement is not visited.
func RewriteStmts(n Node, f func(Stmt) ([]Stmt, bool)) {
	switch n := n.(type) {
	case *ClassDecl:
		for _, m := range n.Members {
			RewriteStmts(m, f)
		}
	case *MethodDecl:
		if n.Body != nil {
			RewriteStmts(n.Body, f)
		}
	case *Block:
		var out []Stmt
		for _, s := range n.Stmts {
			if repl, ok := f(s); ok {
				out = append(out, repl...)
				continue
			}
			RewriteStmts(s, f)
			out = append(out, s)
		}
		n.Stmts = out
	case *IfStmt:
		n.Then = rewriteSingle(n.Then, f)
		if n.Else != nil {
			n.Else = rewriteSingle(n.Else, f)
		}
	case *WhileStmt:
		n.Body = rewriteSingle(n.Body, f)
	case *TryStmt:
		RewriteStmts(n.Body, f)
		for _, c := range n.Catches {
			RewriteStmts(c.Body, f)
		}
		if n.Finally != nil {
			RewriteStmts(n.Finally, f)
		}
	}
}

func rewriteSingle(s Stmt, f func(Stmt) ([]Stmt, bool)) Stmt {
	if repl, ok := f(s); ok {
		if len(repl) == 1 {
			return repl[0]
		}
		return &Block{Position: s.Pos(), Stmts: repl}
	}
	RewriteStmts(s, f)
	return s
}

// SubstituteDollars replaces fragment variables under n by the expressions
// in vars, keyed by name ("$0", "$1", "$_"). Splice bodies are left alone:
// their dollar variables refer to the splice site.
func SubstituteDollars(n Node, vars map[string]Expr) {
	RewriteExprs(n, func(e Expr) Expr {
		switch e := e.(type) {
		case *DollarVar:
			if r, ok := vars[e.Name]; ok {
				return r
			}
		case *SpliceExpr:
			switch site := e.Site.(type) {
			case *AssignStmt:
				SubstituteDollars(site, vars)
			case Expr:
				holder := &ExprStmt{X: site}
				SubstituteDollars(holder, vars)
				e.Site = holder.X
			}
			return &spliceShield{e}
		}
		return e
	})
	// Unwrap the shields placed around splices.
	RewriteExprs(n, func(e Expr) Expr {
		if s, ok := e.(*spliceShield); ok {
			return s.SpliceExpr
		}
		return e
	})
}

// spliceShield hides a splice from a rewrite pass.
type spliceShield struct {
	*SpliceExpr
}

// DollarVars returns the names of fragment variables used under n outside
// splice bodies, in first-use order.
func DollarVars(n Node) []string {
	var names []string
	seen := map[string]bool{}
	Inspect(n, func(n Node) bool {
		switch n := n.(type) {
		case *SpliceExpr:
			Inspect(n.Site, func(m Node) bool {
				if d, ok := m.(*DollarVar); ok && !seen[d.Name] {
					seen[d.Name] = true
					names = append(names, d.Name)
				}
				return true
			})
			return false
		case *DollarVar:
			if !seen[n.Name] {
				seen[n.Name] = true
				names = append(names, n.Name)
			}
		case *CallExpr:
			if len(n.Name) > 0 && n.Name[0] == '$' && !seen[n.Name] {
				seen[n.Name] = true
				names = append(names, n.Name)
			}
		}
		return true
	})
	return names
}
