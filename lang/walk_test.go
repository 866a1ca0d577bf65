package lang

import (
	"reflect"
	"testing"
)

func TestRewriteStmtsReplacesOneOccurrence(t *testing.T) {
	stmts, err := ParseStatements("f(); f(); f();")
	if err != nil {
		t.Fatal(err)
	}
	body := &Block{Stmts: stmts}
	repl, err := ParseStatements("g();")
	if err != nil {
		t.Fatal(err)
	}

	seen := 0
	RewriteStmts(body, func(s Stmt) ([]Stmt, bool) {
		es, ok := s.(*ExprStmt)
		if !ok {
			return nil, false
		}
		if c, ok := es.X.(*CallExpr); ok && c.Name == "f" {
			seen++
			if seen == 2 {
				return repl, true
			}
		}
		return nil, false
	})

	if got := Compact(body.Stmts); got != "f(); g(); f();" {
		t.Errorf("got %q, want %q", got, "f(); g(); f();")
	}
}

func TestRewriteExprsSkipsReplacement(t *testing.T) {
	stmts, err := ParseStatements("x = f(f(1));")
	if err != nil {
		t.Fatal(err)
	}
	body := &Block{Stmts: stmts}
	calls := 0
	RewriteExprs(body, func(e Expr) Expr {
		if c, ok := e.(*CallExpr); ok && c.Name == "f" {
			calls++
			return &CallExpr{Name: "h", Args: c.Args}
		}
		return e
	})
	if calls != 1 {
		t.Errorf("rewrote %d calls, want 1 (outer only)", calls)
	}
	if got := Compact(body.Stmts); got != "x = h(f(1));" {
		t.Errorf("got %q", got)
	}
}

func TestSubstituteDollars(t *testing.T) {
	stmts, err := ParseStatements("log($1, $0); splice g() { $_ = $1; };")
	if err != nil {
		t.Fatal(err)
	}
	body := &Block{Stmts: stmts}
	SubstituteDollars(body, map[string]Expr{
		"$0": &ThisExpr{},
		"$1": &Ident{Name: "msg"},
	})
	want := "log(msg, this); splice g() { $_ = $1; };"
	if got := Compact(body.Stmts); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDollarVars(t *testing.T) {
	stmts, err := ParseStatements("$_ = $proceed($$); x($1); y(splice z($2) { $_ = $3; });")
	if err != nil {
		t.Fatal(err)
	}
	got := DollarVars(&Block{Stmts: stmts})
	want := []string{"$_", "$proceed", "$$", "$1", "$2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DollarVars = %v, want %v", got, want)
	}
}

func TestInspectOrder(t *testing.T) {
	e, err := ParseExpr("a(b(), c(d()))")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	Inspect(e, func(n Node) bool {
		if c, ok := n.(*CallExpr); ok {
			names = append(names, c.Name)
		}
		return true
	})
	if !reflect.DeepEqual(names, []string{"a", "b", "c", "d"}) {
		t.Errorf("order = %v", names)
	}
}
