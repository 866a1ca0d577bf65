package lang

import (
	"errors"
	"strings"
	"testing"
)

const sampleClass = `public class app.Main extends app.Base {
	static app.Main instance;
	int count = 0;

	Main(int start) {
		this.count = start;
	}

	public static app.Main getInstance() {
		return instance;
	}

	public static void showStatus(String status) {
		if (status == null) {
			return;
		} else if (status.length() > 80) {
			status = status.substring(0, 80);
		}
		sys.Out.println("status: " + status);
	}

	int step(int n) {
		var total = 0;
		while (n > 0) {
			total = total + n * 2;
			n = n - 1;
		}
		try {
			risky();
		} catch (sys.RuntimeException e) {
			total = -1;
		} finally {
			count = count + 1;
		}
		return total > 10 ? total : (total + 1) * 3;
	}

	app.ImagePlus image(Object o) {
		app.ImagePlus img = (app.ImagePlus?) o;
		return o instanceof app.ImagePlus ? (app.ImagePlus) o : img;
	}

	static String version() native "app.version";
}
`

func TestParseClass(t *testing.T) {
	c, err := ParseClass(sampleClass)
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	if c.Name != "app.Main" || c.Super != "app.Base" {
		t.Errorf("class = %s extends %s", c.Name, c.Super)
	}
	if c.SimpleName() != "Main" || c.Package() != "app" {
		t.Errorf("SimpleName/Package = %s/%s", c.SimpleName(), c.Package())
	}
	if got := len(c.Fields()); got != 2 {
		t.Errorf("fields = %d, want 2", got)
	}

	var keys []string
	for _, m := range c.Methods() {
		keys = append(keys, m.Key())
	}
	want := "<init>(int) getInstance() showStatus(String) step(int) image(Object) version()"
	if got := strings.Join(keys, " "); got != want {
		t.Errorf("method keys = %q, want %q", got, want)
	}

	ctor := c.Methods()[0]
	if !ctor.Ctor || ctor.Result != "void" {
		t.Errorf("constructor = %+v", ctor)
	}
	native := c.Methods()[5]
	if native.Native != "app.version" || native.Body != nil || !native.IsStatic() {
		t.Errorf("native = %+v", native)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	c, err := ParseClass(sampleClass)
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	first := Format(c)
	c2, err := ParseClass(first)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, first)
	}
	second := Format(c2)
	if first != second {
		t.Errorf("format not stable:\n--- first\n%s\n--- second\n%s", first, second)
	}
	if first != sampleClass {
		t.Errorf("canonical form differs from input:\n%s", first)
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*IntLit).Value == 42 }, "integer"},
		{"2.5", func(e Expr) bool { return e.(*FloatLit).Value == 2.5 }, "float"},
		{`"hi"`, func(e Expr) bool { return e.(*StringLit).Value == "hi" }, "string"},
		{"null", func(e Expr) bool { _, ok := e.(*NullLit); return ok }, "null"},
		{"a + b * c", func(e Expr) bool {
			b := e.(*BinaryExpr)
			return b.Op == "+" && b.Y.(*BinaryExpr).Op == "*"
		}, "precedence"},
		{"(a) + b", func(e Expr) bool {
			_, ok := e.(*BinaryExpr).X.(*ParenExpr)
			return ok
		}, "parenthesized operand"},
		{"(app.ImagePlus) w", func(e Expr) bool {
			c := e.(*CastExpr)
			return c.Type == "app.ImagePlus" && !c.Guarded
		}, "cast"},
		{"(app.ImagePlus?) w.image", func(e Expr) bool {
			c := e.(*CastExpr)
			_, sel := c.X.(*SelectExpr)
			return c.Guarded && sel
		}, "guarded cast"},
		{"sys.Out.println(1)", func(e Expr) bool {
			c := e.(*CallExpr)
			name, ok := QualifiedName(c.Recv)
			return ok && name == "sys.Out" && c.Name == "println"
		}, "qualified call"},
		{"super.run()", func(e Expr) bool {
			_, ok := e.(*CallExpr).Recv.(*SuperExpr)
			return ok
		}, "super call"},
		{"$proceed($$)", func(e Expr) bool {
			c := e.(*CallExpr)
			return c.Name == "$proceed" && c.Args[0].(*DollarVar).Name == "$$"
		}, "proceed"},
		{"x instanceof app.A && y", func(e Expr) bool {
			_, ok := e.(*BinaryExpr).X.(*InstanceofExpr)
			return ok
		}, "instanceof"},
		{"splice f(1) { $_ = $1; }", func(e Expr) bool {
			s := e.(*SpliceExpr)
			_, ok := s.Site.(*CallExpr)
			return ok && len(s.Body.Stmts) == 1
		}, "splice call"},
		{"splice this.x = 3 { $proceed($1); }", func(e Expr) bool {
			s := e.(*SpliceExpr)
			a, ok := s.Site.(*AssignStmt)
			return ok && a.Value.(*IntLit).Value == 3
		}, "splice field write"},
		{"list[0]", func(e Expr) bool { _, ok := e.(*IndexExpr); return ok }, "index"},
		{"a ? b : c ? d : e", func(e Expr) bool {
			_, ok := e.(*CondExpr).Else.(*CondExpr)
			return ok
		}, "nested ternary"},
	}

	for _, tc := range tests {
		e, err := ParseExpr(tc.input)
		if err != nil {
			t.Errorf("%s: %v", tc.desc, err)
			continue
		}
		if !tc.check(e) {
			t.Errorf("%s: check failed for %q (%T)", tc.desc, tc.input, e)
		}
		if got := FormatExpr(e); got != tc.input {
			t.Errorf("%s: FormatExpr = %q, want %q", tc.desc, got, tc.input)
		}
	}
}

func TestParseStatements(t *testing.T) {
	stmts, err := ParseStatements("f(); f(); f();")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 3 {
		t.Fatalf("got %d statements", len(stmts))
	}
	if got := Compact(stmts); got != "f(); f(); f();" {
		t.Errorf("Compact = %q", got)
	}

	// Braces around a fragment are optional.
	stmts, err = ParseStatements("{ String s = name(); log(s); }")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	if v, ok := stmts[0].(*VarDecl); !ok || v.Type != "String" {
		t.Errorf("first statement = %#v", stmts[0])
	}

	stmts, err = ParseStatements("if (x) { a(); } else { b(); }")
	if err != nil {
		t.Fatal(err)
	}
	if got := Compact(stmts); got != "if (x) { a(); } else { b(); }" {
		t.Errorf("Compact = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		line  string
	}{
		{"class a.B {\n  void f() {\n    x = ;\n  }\n}", "line 3"},
		{"class a.B {\n  void f() { try { } }\n}", "line 2"},
		{"class a.B {\n  var x;\n}", "line 2"},
		{"class a.B { int x = 1 }", "line 1"},
	}
	for _, tc := range tests {
		_, err := ParseClass(tc.input)
		if err == nil {
			t.Errorf("ParseClass(%q): expected error", tc.input)
			continue
		}
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("error %v is not ErrSyntax", err)
		}
		if !strings.Contains(err.Error(), tc.line) {
			t.Errorf("error %q does not mention %s", err, tc.line)
		}
	}
}

func TestParseMember(t *testing.T) {
	m, err := ParseMember("public static void hello(String who) { sys.Out.println(who); }", "app.Main")
	if err != nil {
		t.Fatal(err)
	}
	md := m.(*MethodDecl)
	if md.Key() != "hello(String)" {
		t.Errorf("Key = %q", md.Key())
	}

	m, err = ParseMember("Main() { }", "app.Main")
	if err != nil {
		t.Fatal(err)
	}
	if !m.(*MethodDecl).Ctor {
		t.Errorf("expected constructor")
	}
	if got := FormatMember(m, "app.Main"); got != "Main() {}" {
		t.Errorf("FormatMember = %q", got)
	}
}
