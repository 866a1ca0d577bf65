// Package patch is the catalogue of edit operations the engine applies to
// units: inserting code at method entry and exit, rewriting call sites and
// field accesses, adding members and exception handlers, re-parenting
// classes, guarding casts and stubbing out methods.
//
// Every operation is a plain value naming its target with a Locator. The
// only side effect is Apply, which edits working copies in a
// unit.Session.
//
// Code fragments are unit source statements. In method-level fragments $0
// is the receiver (null in static methods), $1..$n the parameters, $$ the
// parameter list, $_ the return value (InsertAtBottom) and $e the caught
// exception (AddExceptionHandler, AddCatch). Site fragments (ReplaceCallSite,
// OverrideFieldRead, OverrideFieldWrite) additionally use $proceed to run
// the original operation; see lang.SpliceExpr.
package patch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/retrofit/lang"
	"github.com/chazu/retrofit/unit"
)

var log = commonlog.GetLogger("retrofit.patch")

// Sentinel errors.
var (
	ErrTargetNotFound = errors.New("patch: target not found")
	ErrExists         = errors.New("patch: member already exists")
	ErrOccurrence     = errors.New("patch: occurrence out of range")
	ErrFragment       = errors.New("patch: invalid fragment")
	ErrNative         = errors.New("patch: native method has no body")
	ErrSuperCall      = errors.New("patch: super call not provided by new superclass")
)

// Locator names the target of an operation: a class and, for member-level
// operations, a member declaration such as "void showStatus(String)".
type Locator struct {
	Class  string
	Member string
}

func (l Locator) String() string {
	if l.Member == "" {
		return l.Class
	}
	if sig, err := unit.ParseSignature(l.Member); err == nil {
		return l.Class + "." + sig.Key()
	}
	return l.Class + "." + l.Member
}

// Op is one patch operation.
type Op interface {
	// Kind names the operation type, e.g. "insert-at-top".
	Kind() string
	// Target returns the locator of the edited unit or member.
	Target() Locator
	// IsOptional reports whether a missing target skips the operation
	// instead of failing the plan.
	IsOptional() bool
	// Apply edits the working copies in s.
	Apply(s *unit.Session) error
	fmt.Stringer
}

// Run applies op to s. A missing target, or a member that already exists,
// skips an optional op; applied reports whether the op took effect.
func Run(op Op, s *unit.Session) (applied bool, err error) {
	err = op.Apply(s)
	if err == nil {
		return true, nil
	}
	if op.IsOptional() && (errors.Is(err, ErrTargetNotFound) || errors.Is(err, ErrExists)) {
		log.Debugf("skipping optional %s: %s", op, err)
		return false, nil
	}
	return false, err
}

func describe(kind string, loc Locator) string {
	return kind + " " + loc.String()
}

// ---------------------------------------------------------------------------
// Target resolution
// ---------------------------------------------------------------------------

func editUnit(s *unit.Session, class string) (*unit.Unit, error) {
	u, err := s.Unit(class)
	if errors.Is(err, unit.ErrNotFound) {
		return nil, fmt.Errorf("%w: class %s", ErrTargetNotFound, class)
	}
	if err != nil {
		return nil, err
	}
	if err := u.Edit(); err != nil {
		return nil, err
	}
	return u, nil
}

func editMethod(s *unit.Session, loc Locator) (*unit.Unit, *lang.MethodDecl, error) {
	u, err := editUnit(s, loc.Class)
	if err != nil {
		return nil, nil, err
	}
	sig, err := unit.ParseSignature(loc.Member)
	if err != nil {
		return nil, nil, err
	}
	m, err := u.Member(sig)
	if errors.Is(err, unit.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrTargetNotFound, loc)
	}
	if err != nil {
		return nil, nil, err
	}
	if m.Body == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNative, loc)
	}
	return u, m, nil
}

// ---------------------------------------------------------------------------
// Fragments
// ---------------------------------------------------------------------------

// methodVars binds the method-level fragment variables of m.
func methodVars(m *lang.MethodDecl) map[string]lang.Expr {
	vars := make(map[string]lang.Expr)
	if m.IsStatic() {
		vars["$0"] = &lang.NullLit{}
	} else {
		vars["$0"] = &lang.ThisExpr{}
	}
	args := make([]lang.Expr, len(m.Params))
	for i, p := range m.Params {
		vars[fmt.Sprintf("$%d", i+1)] = &lang.Ident{Name: p.Name}
		args[i] = &lang.Ident{Name: p.Name}
	}
	vars["$$"] = &lang.CallExpr{
		Recv: &lang.SelectExpr{X: &lang.Ident{Name: "sys"}, Name: "List"},
		Name: "of",
		Args: args,
	}
	return vars
}

// fragment parses src and substitutes vars. Variables left over (other
// than inside splices) make the fragment invalid.
func fragment(op fmt.Stringer, src string, vars map[string]lang.Expr) ([]lang.Stmt, error) {
	stmts, err := lang.ParseStatements(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFragment, op, err)
	}
	block := &lang.Block{Stmts: stmts}
	if vars != nil {
		lang.SubstituteDollars(block, vars)
	}
	if left := lang.DollarVars(block); len(left) > 0 {
		return nil, fmt.Errorf("%w: %s: %s not available here", ErrFragment, op, strings.Join(left, ", "))
	}
	return block.Stmts, nil
}

// siteFragment parses a splice body. Its variables stay unresolved; they
// are bound when the splice runs.
func siteFragment(op fmt.Stringer, src string) (*lang.Block, error) {
	stmts, err := lang.ParseStatements(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFragment, op, err)
	}
	for _, name := range lang.DollarVars(&lang.Block{Stmts: stmts}) {
		if !isSiteVar(name) {
			return nil, fmt.Errorf("%w: %s: %s not available at a site", ErrFragment, op, name)
		}
	}
	return &lang.Block{Stmts: stmts}, nil
}

func isSiteVar(name string) bool {
	switch name {
	case "$0", "$$", "$_", "$proceed":
		return true
	}
	if len(name) < 2 {
		return false
	}
	for _, r := range name[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// assignsResult reports whether a site fragment stores into $_.
func assignsResult(body *lang.Block) bool {
	found := false
	lang.Inspect(body, func(n lang.Node) bool {
		switch n := n.(type) {
		case *lang.SpliceExpr:
			return false
		case *lang.AssignStmt:
			if d, ok := n.Target.(*lang.DollarVar); ok && d.Name == "$_" {
				found = true
			}
		}
		return !found
	})
	return found
}

// typeMatches compares a type written in code with a wanted type. Either
// may be simple or qualified.
func typeMatches(written, want string) bool {
	if written == want {
		return true
	}
	if !strings.Contains(written, ".") || !strings.Contains(want, ".") {
		return lang.SimpleName(written) == lang.SimpleName(want)
	}
	return false
}
