package patch

import (
	"fmt"
	"strings"

	"github.com/chazu/retrofit/lang"
	"github.com/chazu/retrofit/unit"
)

// Operation kinds.
const (
	KindInsertAtTop         = "insert-at-top"
	KindInsertAtBottom      = "insert-at-bottom"
	KindReplaceCallSite     = "replace-call-site"
	KindAddField            = "add-field"
	KindAddMethod           = "add-method"
	KindAddExceptionHandler = "add-exception-handler"
	KindAddCatch            = "add-catch"
	KindReplaceSuperclass   = "replace-superclass"
	KindOverrideFieldRead   = "override-field-read"
	KindOverrideFieldWrite  = "override-field-write"
	KindGuardDowncast       = "guard-downcast"
	KindStubOut             = "stub-out"
)

// resultVar holds the return value while an InsertAtBottom fragment runs.
const resultVar = "_ret"

// ---------------------------------------------------------------------------
// InsertAtTop
// ---------------------------------------------------------------------------

// InsertAtTop inserts Body before the first statement of a method.
type InsertAtTop struct {
	Locator
	Body     string
	Optional bool
}

func (o InsertAtTop) Kind() string     { return KindInsertAtTop }
func (o InsertAtTop) Target() Locator  { return o.Locator }
func (o InsertAtTop) IsOptional() bool { return o.Optional }
func (o InsertAtTop) String() string   { return describe(o.Kind(), o.Locator) }

func (o InsertAtTop) Apply(s *unit.Session) error {
	_, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	frag, err := fragment(o, o.Body, methodVars(m))
	if err != nil {
		return err
	}
	m.Body.Stmts = append(frag, m.Body.Stmts...)
	return nil
}

// ---------------------------------------------------------------------------
// InsertAtBottom
// ---------------------------------------------------------------------------

// InsertAtBottom runs Body on every normal exit of a method: before each
// return statement and, for void methods, at the end of the body. In
// non-void methods $_ is the value being returned.
//
// With AsFinally set the method body is wrapped in try/finally instead, so
// Body also runs when the method throws. $_ is null in that form.
type InsertAtBottom struct {
	Locator
	Body      string
	AsFinally bool
	Optional  bool
}

func (o InsertAtBottom) Kind() string     { return KindInsertAtBottom }
func (o InsertAtBottom) Target() Locator  { return o.Locator }
func (o InsertAtBottom) IsOptional() bool { return o.Optional }
func (o InsertAtBottom) String() string   { return describe(o.Kind(), o.Locator) }

func (o InsertAtBottom) Apply(s *unit.Session) error {
	_, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	void := m.Ctor || m.Result == "void"
	vars := func() map[string]lang.Expr {
		v := methodVars(m)
		if void || o.AsFinally {
			v["$_"] = &lang.NullLit{}
		} else {
			v["$_"] = &lang.Ident{Name: resultVar}
		}
		return v
	}
	// Each exit gets its own copy of the fragment.
	frag := func() []lang.Stmt {
		stmts, _ := fragment(o, o.Body, vars())
		return stmts
	}
	if _, err := fragment(o, o.Body, vars()); err != nil {
		return err
	}

	if o.AsFinally {
		m.Body = &lang.Block{
			Position: m.Body.Position,
			Stmts: []lang.Stmt{&lang.TryStmt{
				Position: m.Body.Position,
				Body:     m.Body,
				Finally:  &lang.Block{Stmts: frag()},
			}},
		}
		return nil
	}

	lang.RewriteStmts(m.Body, func(st lang.Stmt) ([]lang.Stmt, bool) {
		ret, ok := st.(*lang.ReturnStmt)
		if !ok {
			return nil, false
		}
		var stmts []lang.Stmt
		if ret.Value == nil {
			stmts = append(frag(), ret)
		} else {
			stmts = append(stmts, &lang.VarDecl{Position: ret.Position, Type: "var", Name: resultVar, Init: ret.Value})
			stmts = append(stmts, frag()...)
			stmts = append(stmts, &lang.ReturnStmt{Position: ret.Position, Value: &lang.Ident{Name: resultVar}})
		}
		return []lang.Stmt{&lang.Block{Position: ret.Position, Stmts: stmts}}, true
	})
	if void && !terminates(m.Body) {
		m.Body.Stmts = append(m.Body.Stmts, frag()...)
	}
	return nil
}

// terminates reports whether a block ends in a return or throw.
func terminates(b *lang.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	switch last := b.Stmts[len(b.Stmts)-1].(type) {
	case *lang.ReturnStmt, *lang.ThrowStmt:
		return true
	case *lang.Block:
		return terminates(last)
	}
	return false
}

// ---------------------------------------------------------------------------
// ReplaceCallSite
// ---------------------------------------------------------------------------

// ReplaceCallSite rewrites the Nth call to Owner.Selector inside a method.
//
// Owner matches a qualified or simple receiver name, or, for unqualified
// and this-calls, the enclosing class and its ancestors. An empty Owner
// matches every receiver.
//
// A call used as a statement whose replacement uses no fragment variables
// is replaced inline. Otherwise the call becomes a splice: $1..$n are the
// original arguments, $0 the receiver and $proceed(...) performs the
// call. When the call's value is used, Body must assign $_.
type ReplaceCallSite struct {
	Locator
	Owner      string
	Selector   string
	Occurrence int // 1-based; 0 means 1
	Body       string
	Optional   bool
}

func (o ReplaceCallSite) Kind() string     { return KindReplaceCallSite }
func (o ReplaceCallSite) Target() Locator  { return o.Locator }
func (o ReplaceCallSite) IsOptional() bool { return o.Optional }

func (o ReplaceCallSite) String() string {
	sel := o.Selector
	if o.Owner != "" {
		sel = o.Owner + "." + sel
	}
	return fmt.Sprintf("%s %s call %s #%d", o.Kind(), o.Locator, sel, o.nth())
}

func (o ReplaceCallSite) nth() int {
	if o.Occurrence < 1 {
		return 1
	}
	return o.Occurrence
}

func (o ReplaceCallSite) Apply(s *unit.Session) error {
	u, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	var calls []*lang.CallExpr
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.CallExpr:
			if n.Name == o.Selector && o.receiverMatches(s, u, n) {
				calls = append(calls, n)
			}
		}
		return true
	})
	if len(calls) == 0 {
		return fmt.Errorf("%w: %s: no matching call", ErrTargetNotFound, o)
	}
	if o.nth() > len(calls) {
		return fmt.Errorf("%w: %s: only %d matching calls", ErrOccurrence, o, len(calls))
	}
	call := calls[o.nth()-1]

	body, err := siteFragment(o, o.Body)
	if err != nil {
		return err
	}
	stmt := statementOf(m.Body, call)

	if stmt != nil && len(lang.DollarVars(body)) == 0 {
		lang.RewriteStmts(m.Body, func(st lang.Stmt) ([]lang.Stmt, bool) {
			if st == lang.Stmt(stmt) {
				return body.Stmts, true
			}
			return nil, false
		})
		return nil
	}
	if stmt == nil && !assignsResult(body) {
		return fmt.Errorf("%w: %s: the call's value is used, so the replacement must assign $_", ErrFragment, o)
	}
	splice := &lang.SpliceExpr{Position: call.Position, Site: call, Body: body}
	lang.RewriteExprs(m.Body, func(e lang.Expr) lang.Expr {
		if e == lang.Expr(call) {
			return splice
		}
		return e
	})
	return nil
}

func (o ReplaceCallSite) receiverMatches(s *unit.Session, u *unit.Unit, call *lang.CallExpr) bool {
	if o.Owner == "" {
		return true
	}
	switch recv := call.Recv.(type) {
	case nil, *lang.ThisExpr:
		return inherits(s, u.Name(), o.Owner)
	case *lang.SuperExpr:
		return inherits(s, u.Super(), o.Owner)
	default:
		name, ok := lang.QualifiedName(recv)
		return ok && typeMatches(name, o.Owner)
	}
}

// statementOf returns the expression statement whose expression is call.
func statementOf(body *lang.Block, call *lang.CallExpr) *lang.ExprStmt {
	var found *lang.ExprStmt
	lang.Inspect(body, func(n lang.Node) bool {
		if es, ok := n.(*lang.ExprStmt); ok && es.X == lang.Expr(call) {
			found = es
		}
		return found == nil
	})
	return found
}

// inherits reports whether class is owner or extends it.
func inherits(s *unit.Session, class, owner string) bool {
	seen := make(map[string]bool)
	for class != "" && !seen[class] {
		if typeMatches(class, owner) {
			return true
		}
		seen[class] = true
		decl, err := s.Decl(class)
		if err != nil {
			return false
		}
		class = decl.Super
	}
	return false
}

// ---------------------------------------------------------------------------
// AddField
// ---------------------------------------------------------------------------

// AddField declares a field. Adding a field that already exists with the
// same type does nothing.
type AddField struct {
	Locator
	Type     string
	Name     string
	Init     string // expression source; empty for the zero value
	Static   bool
	Optional bool
}

func (o AddField) Kind() string     { return KindAddField }
func (o AddField) Target() Locator  { return o.Locator }
func (o AddField) IsOptional() bool { return o.Optional }
func (o AddField) String() string   { return describe(o.Kind(), o.Locator) + " field " + o.Name }

func (o AddField) Apply(s *unit.Session) error {
	u, err := editUnit(s, o.Class)
	if err != nil {
		return err
	}
	if f, err := u.Field(o.Name); err == nil {
		if f.Type != o.Type {
			return fmt.Errorf("%w: %s: declared as %s", ErrExists, o, f.Type)
		}
		return nil
	}
	f := &lang.FieldDecl{Type: o.Type, Name: o.Name}
	if o.Static {
		f.Modifiers = []string{"static"}
	}
	if o.Init != "" {
		init, err := lang.ParseExpr(o.Init)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFragment, o, err)
		}
		f.Init = init
	}
	return u.AddMember(f)
}

// ---------------------------------------------------------------------------
// AddMethod
// ---------------------------------------------------------------------------

// AddMethod adds a complete method declaration, written as it would appear
// in the class body.
type AddMethod struct {
	Locator
	Decl     string
	Optional bool
}

func (o AddMethod) Kind() string     { return KindAddMethod }
func (o AddMethod) Target() Locator  { return o.Locator }
func (o AddMethod) IsOptional() bool { return o.Optional }

func (o AddMethod) String() string {
	name := o.Decl
	if i := strings.IndexAny(name, "{;"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return describe(o.Kind(), o.Locator) + " " + name
}

func (o AddMethod) Apply(s *unit.Session) error {
	u, err := editUnit(s, o.Class)
	if err != nil {
		return err
	}
	member, err := lang.ParseMember(o.Decl, o.Class)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFragment, o, err)
	}
	m, ok := member.(*lang.MethodDecl)
	if !ok {
		return fmt.Errorf("%w: %s: not a method", ErrFragment, o)
	}
	if left := lang.DollarVars(m); len(left) > 0 {
		return fmt.Errorf("%w: %s: %s not available here", ErrFragment, o, strings.Join(left, ", "))
	}
	if u.HasMember(unit.SignatureOf(m)) {
		return fmt.Errorf("%w: %s.%s", ErrExists, o.Class, m.Key())
	}
	return u.AddMember(m)
}

// ---------------------------------------------------------------------------
// AddExceptionHandler
// ---------------------------------------------------------------------------

// AddExceptionHandler inserts Body as the first statement of every catch
// clause for Exception in a method. $e names the caught exception.
type AddExceptionHandler struct {
	Locator
	Exception string
	Body      string
	Optional  bool
}

func (o AddExceptionHandler) Kind() string     { return KindAddExceptionHandler }
func (o AddExceptionHandler) Target() Locator  { return o.Locator }
func (o AddExceptionHandler) IsOptional() bool { return o.Optional }
func (o AddExceptionHandler) String() string {
	return describe(o.Kind(), o.Locator) + " catching " + o.Exception
}

func (o AddExceptionHandler) Apply(s *unit.Session) error {
	_, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	var clauses []*lang.CatchClause
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.CatchClause:
			if typeMatches(n.Type, o.Exception) {
				clauses = append(clauses, n)
			}
		}
		return true
	})
	if len(clauses) == 0 {
		return fmt.Errorf("%w: %s: no catch clause", ErrTargetNotFound, o)
	}
	for _, c := range clauses {
		vars := methodVars(m)
		vars["$e"] = &lang.Ident{Name: c.Name}
		frag, err := fragment(o, o.Body, vars)
		if err != nil {
			return err
		}
		c.Body.Stmts = append(frag, c.Body.Stmts...)
	}
	return nil
}

// ---------------------------------------------------------------------------
// AddCatch
// ---------------------------------------------------------------------------

// AddCatch wraps a method body in a new try statement with one catch
// clause for Exception running Body. $e names the caught exception.
type AddCatch struct {
	Locator
	Exception string
	Body      string
	Optional  bool
}

func (o AddCatch) Kind() string     { return KindAddCatch }
func (o AddCatch) Target() Locator  { return o.Locator }
func (o AddCatch) IsOptional() bool { return o.Optional }
func (o AddCatch) String() string {
	return describe(o.Kind(), o.Locator) + " catching " + o.Exception
}

func (o AddCatch) Apply(s *unit.Session) error {
	_, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	name := "_e"
	for depth := 0; usesName(m, name); depth++ {
		name = fmt.Sprintf("_e%d", depth)
	}
	vars := methodVars(m)
	vars["$e"] = &lang.Ident{Name: name}
	frag, err := fragment(o, o.Body, vars)
	if err != nil {
		return err
	}
	m.Body = &lang.Block{
		Position: m.Body.Position,
		Stmts: []lang.Stmt{&lang.TryStmt{
			Position: m.Body.Position,
			Body:     m.Body,
			Catches: []*lang.CatchClause{{
				Type: o.Exception,
				Name: name,
				Body: &lang.Block{Stmts: frag},
			}},
		}},
	}
	return nil
}

// usesName reports whether a parameter, local or catch variable of m is
// called name.
func usesName(m *lang.MethodDecl, name string) bool {
	for _, p := range m.Params {
		if p.Name == name {
			return true
		}
	}
	used := false
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.VarDecl:
			used = used || n.Name == name
		case *lang.CatchClause:
			used = used || n.Name == name
		}
		return !used
	})
	return used
}

// ---------------------------------------------------------------------------
// ReplaceSuperclass
// ---------------------------------------------------------------------------

// RootClass is the implicit superclass of every unit; it exists only in
// loaders, never in a pool.
const RootClass = "sys.Object"

// rootMethods are the methods RootClass provides.
var rootMethods = map[string]bool{
	"toString": true,
	"equals":   true,
	"hashCode": true,
	"getClass": true,
}

// ReplaceSuperclass re-parents a class. It refuses while a method of the
// class still calls super.m() for a method the new parent does not
// provide; stub those out first.
type ReplaceSuperclass struct {
	Locator
	Superclass string
	Optional   bool
}

func (o ReplaceSuperclass) Kind() string     { return KindReplaceSuperclass }
func (o ReplaceSuperclass) Target() Locator  { return o.Locator }
func (o ReplaceSuperclass) IsOptional() bool { return o.Optional }
func (o ReplaceSuperclass) String() string {
	return describe(o.Kind(), o.Locator) + " -> " + o.Superclass
}

func (o ReplaceSuperclass) Apply(s *unit.Session) error {
	u, err := editUnit(s, o.Class)
	if err != nil {
		return err
	}
	root := o.Superclass == "" || o.Superclass == RootClass
	if !root {
		if _, err := s.Decl(o.Superclass); err != nil {
			return fmt.Errorf("%w: %s: superclass: %w", ErrTargetNotFound, o, err)
		}
	}
	provides := func(method string) bool {
		if rootMethods[method] {
			return true
		}
		return !root && s.Resolves(o.Superclass, method)
	}

	var broken []string
	for _, m := range u.Decl().Methods() {
		lang.Inspect(m, func(n lang.Node) bool {
			call, ok := n.(*lang.CallExpr)
			if !ok {
				return true
			}
			if _, ok := call.Recv.(*lang.SuperExpr); ok && !provides(call.Name) {
				broken = append(broken, m.Key()+" calls super."+call.Name)
			}
			return true
		})
	}
	if len(broken) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrSuperCall, o, strings.Join(broken, "; "))
	}
	if root {
		return u.SetSuper("")
	}
	return u.SetSuper(o.Superclass)
}

// ---------------------------------------------------------------------------
// OverrideFieldRead / OverrideFieldWrite
// ---------------------------------------------------------------------------

// OverrideFieldRead turns every read of Field inside a method into a
// splice running Body. $proceed() reads the field; Body must assign $_.
//
// Field is a bare name, matching unqualified reads and reads through any
// receiver, or Owner.name, matching reads through that qualified receiver
// and unqualified reads inside Owner.
type OverrideFieldRead struct {
	Locator
	Field    string
	Body     string
	Optional bool
}

func (o OverrideFieldRead) Kind() string     { return KindOverrideFieldRead }
func (o OverrideFieldRead) Target() Locator  { return o.Locator }
func (o OverrideFieldRead) IsOptional() bool { return o.Optional }
func (o OverrideFieldRead) String() string {
	return describe(o.Kind(), o.Locator) + " field " + o.Field
}

func (o OverrideFieldRead) Apply(s *unit.Session) error {
	u, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	body, err := siteFragment(o, o.Body)
	if err != nil {
		return err
	}
	if !assignsResult(body) {
		return fmt.Errorf("%w: %s: the replacement must assign $_", ErrFragment, o)
	}
	match := fieldMatcher(s, u, m, o.Field)

	targets := make(map[lang.Expr]bool)
	reads := make(map[lang.Expr]bool)
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.AssignStmt:
			targets[n.Target] = true
		case *lang.Ident, *lang.SelectExpr:
			e := n.(lang.Expr)
			if !targets[e] && match(e) {
				reads[e] = true
				return false
			}
		}
		return true
	})
	if len(reads) == 0 {
		return fmt.Errorf("%w: %s: no reads", ErrTargetNotFound, o)
	}
	first := true
	lang.RewriteExprs(m.Body, func(e lang.Expr) lang.Expr {
		if !reads[e] {
			return e
		}
		b := body
		if !first {
			b = cloneBlock(o, o.Body)
		}
		first = false
		return &lang.SpliceExpr{Position: e.Pos(), Site: e, Body: b}
	})
	return nil
}

// OverrideFieldWrite turns every assignment to Field inside a method into a
// splice running Body. $1 is the written value and $proceed(v) performs the
// write.
type OverrideFieldWrite struct {
	Locator
	Field    string
	Body     string
	Optional bool
}

func (o OverrideFieldWrite) Kind() string     { return KindOverrideFieldWrite }
func (o OverrideFieldWrite) Target() Locator  { return o.Locator }
func (o OverrideFieldWrite) IsOptional() bool { return o.Optional }
func (o OverrideFieldWrite) String() string {
	return describe(o.Kind(), o.Locator) + " field " + o.Field
}

func (o OverrideFieldWrite) Apply(s *unit.Session) error {
	u, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	if _, err := siteFragment(o, o.Body); err != nil {
		return err
	}
	match := fieldMatcher(s, u, m, o.Field)

	writes := make(map[*lang.AssignStmt]bool)
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.AssignStmt:
			if match(n.Target) {
				writes[n] = true
			}
		}
		return true
	})
	if len(writes) == 0 {
		return fmt.Errorf("%w: %s: no writes", ErrTargetNotFound, o)
	}
	lang.RewriteStmts(m.Body, func(st lang.Stmt) ([]lang.Stmt, bool) {
		a, ok := st.(*lang.AssignStmt)
		if !ok || !writes[a] {
			return nil, false
		}
		splice := &lang.SpliceExpr{Position: a.Position, Site: a, Body: cloneBlock(o, o.Body)}
		return []lang.Stmt{&lang.ExprStmt{Position: a.Position, X: splice}}, true
	})
	return nil
}

// fieldMatcher returns a predicate recognising accesses to field inside
// method m of unit u. Unqualified names shadowed by a parameter or local
// never match.
func fieldMatcher(s *unit.Session, u *unit.Unit, m *lang.MethodDecl, field string) func(lang.Expr) bool {
	owner, name := "", field
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		owner, name = field[:i], field[i+1:]
	}
	shadowed := usesName(m, name)
	return func(e lang.Expr) bool {
		switch e := e.(type) {
		case *lang.Ident:
			if e.Name != name || shadowed {
				return false
			}
			return owner == "" || inherits(s, u.Name(), owner)
		case *lang.SelectExpr:
			if e.Name != name {
				return false
			}
			if owner == "" {
				return true
			}
			if _, ok := e.X.(*lang.ThisExpr); ok {
				return inherits(s, u.Name(), owner)
			}
			q, ok := lang.QualifiedName(e.X)
			return ok && typeMatches(q, owner)
		}
		return false
	}
}

// cloneBlock re-parses a site fragment so each splice owns its body.
func cloneBlock(op fmt.Stringer, src string) *lang.Block {
	b, err := siteFragment(op, src)
	if err != nil {
		// Already validated by the caller.
		panic(err)
	}
	return b
}

// ---------------------------------------------------------------------------
// GuardDowncast
// ---------------------------------------------------------------------------

// GuardDowncast turns the Nth cast to Type in a method into a guarded cast
// that yields null instead of throwing sys.ClassCastException.
type GuardDowncast struct {
	Locator
	Type       string
	Occurrence int // 1-based; 0 means 1
	Optional   bool
}

func (o GuardDowncast) Kind() string     { return KindGuardDowncast }
func (o GuardDowncast) Target() Locator  { return o.Locator }
func (o GuardDowncast) IsOptional() bool { return o.Optional }
func (o GuardDowncast) String() string {
	return fmt.Sprintf("%s %s cast to %s #%d", o.Kind(), o.Locator, o.Type, max(o.Occurrence, 1))
}

func (o GuardDowncast) Apply(s *unit.Session) error {
	_, m, err := editMethod(s, o.Locator)
	if err != nil {
		return err
	}
	var casts []*lang.CastExpr
	lang.Inspect(m.Body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.CastExpr:
			if typeMatches(n.Type, o.Type) {
				casts = append(casts, n)
			}
		}
		return true
	})
	nth := max(o.Occurrence, 1)
	switch {
	case len(casts) == 0:
		return fmt.Errorf("%w: %s: no cast", ErrTargetNotFound, o)
	case nth > len(casts):
		return fmt.Errorf("%w: %s: only %d casts", ErrOccurrence, o, len(casts))
	}
	casts[nth-1].Guarded = true
	return nil
}

// ---------------------------------------------------------------------------
// StubOut
// ---------------------------------------------------------------------------

// StubOut replaces the bodies of Members with a return of the zero value
// of their result type. Native members become ordinary stubs.
type StubOut struct {
	Locator
	Members  []string
	Optional bool
}

func (o StubOut) Kind() string     { return KindStubOut }
func (o StubOut) Target() Locator  { return o.Locator }
func (o StubOut) IsOptional() bool { return o.Optional }
func (o StubOut) String() string {
	return describe(o.Kind(), o.Locator) + " [" + strings.Join(o.Members, "; ") + "]"
}

func (o StubOut) Apply(s *unit.Session) error {
	u, err := editUnit(s, o.Class)
	if err != nil {
		return err
	}
	if len(o.Members) == 0 {
		return fmt.Errorf("%w: %s: no members named", ErrFragment, o)
	}
	methods := make([]*lang.MethodDecl, 0, len(o.Members))
	for _, decl := range o.Members {
		sig, err := unit.ParseSignature(decl)
		if err != nil {
			return err
		}
		m, err := u.Member(sig)
		if err != nil {
			return fmt.Errorf("%w: %s: %s", ErrTargetNotFound, o, sig.Key())
		}
		methods = append(methods, m)
	}
	for _, m := range methods {
		var stmts []lang.Stmt
		if zero := lang.ZeroLiteral(m.Result); zero != nil && !m.Ctor {
			stmts = []lang.Stmt{&lang.ReturnStmt{Value: zero}}
		}
		m.Native = ""
		m.Body = &lang.Block{Position: m.Position, Stmts: stmts}
	}
	return nil
}
