// Package unit implements the code unit model: addressable compilation
// units (classes with ordered members), the pool of sources they are read
// from, per-run editing sessions and the irreversible commit step that
// turns an edited unit into something a loader can define.
package unit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/retrofit/lang"
)

// Sentinel errors.
var (
	ErrNotFound         = errors.New("unit: not found")
	ErrAlreadyCommitted = errors.New("unit: already committed")
	ErrDuplicate        = errors.New("unit: duplicate member")
	ErrFragmentVariable = errors.New("unit: unresolved fragment variable")
	ErrBadSignature     = errors.New("unit: malformed signature")
)

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

// Signature identifies a member within a unit. Identity is the member name
// plus the simple names of the parameter types; modifiers and the result
// type are carried for display and for building new members.
type Signature struct {
	Modifiers []string
	Result    string
	Name      string
	Params    []string // simple type names
}

// ParseSignature parses a declaration such as
//
//	public static void showStatus(java.lang.String status)
//
// Parameter names are optional. Constructors are written "<init>(...)".
func ParseSignature(decl string) (Signature, error) {
	decl = strings.TrimSpace(decl)
	open := strings.IndexByte(decl, '(')
	if open < 0 || !strings.HasSuffix(decl, ")") {
		return Signature{}, fmt.Errorf("%w: %q", ErrBadSignature, decl)
	}

	head := strings.Fields(decl[:open])
	if len(head) == 0 {
		return Signature{}, fmt.Errorf("%w: %q has no name", ErrBadSignature, decl)
	}
	sig := Signature{Name: head[len(head)-1]}
	head = head[:len(head)-1]
	if len(head) > 0 {
		sig.Result = head[len(head)-1]
		sig.Modifiers = head[:len(head)-1]
	}
	if sig.Name == "<init>" {
		sig.Result = "void"
	}

	params := strings.TrimSpace(decl[open+1 : len(decl)-1])
	if params != "" {
		for _, p := range strings.Split(params, ",") {
			fields := strings.Fields(p)
			if len(fields) == 0 || len(fields) > 2 {
				return Signature{}, fmt.Errorf("%w: bad parameter %q in %q", ErrBadSignature, p, decl)
			}
			sig.Params = append(sig.Params, lang.SimpleName(fields[0]))
		}
	}
	return sig, nil
}

// Key returns the identity of the signature, matching lang.MethodDecl.Key.
func (s Signature) Key() string {
	return s.Name + "(" + strings.Join(s.Params, ",") + ")"
}

func (s Signature) String() string {
	return s.Key()
}

// SignatureOf returns the signature of a method declaration.
func SignatureOf(m *lang.MethodDecl) Signature {
	return Signature{
		Modifiers: m.Modifiers,
		Result:    m.Result,
		Name:      m.Name,
		Params:    m.ParamTypes(),
	}
}

// ---------------------------------------------------------------------------
// Unit
// ---------------------------------------------------------------------------

// Unit is one compilation unit: a class with its ordered members.
//
// A Unit obtained from a Session is a private working copy. After Commit it
// is frozen and every edit fails with ErrAlreadyCommitted.
type Unit struct {
	decl      *lang.ClassDecl
	origin    string
	committed bool
}

// New wraps a parsed class declaration.
func New(decl *lang.ClassDecl, origin string) *Unit {
	return &Unit{decl: decl, origin: origin}
}

// Parse parses unit source into a new Unit.
func Parse(src, origin string) (*Unit, error) {
	decl, err := lang.ParseClass(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", origin, err)
	}
	return New(decl, origin), nil
}

// Name returns the fully qualified class name.
func (u *Unit) Name() string { return u.decl.Name }

// Super returns the fully qualified superclass name.
func (u *Unit) Super() string { return u.decl.Super }

// Origin describes where the unit was read from.
func (u *Unit) Origin() string { return u.origin }

// Decl returns the underlying declaration. Callers that modify it must call
// Edit first.
func (u *Unit) Decl() *lang.ClassDecl { return u.decl }

// Committed reports whether the unit has been committed.
func (u *Unit) Committed() bool { return u.committed }

// Edit reports whether the unit may still be modified.
func (u *Unit) Edit() error {
	if u.committed {
		return fmt.Errorf("%w: %s", ErrAlreadyCommitted, u.decl.Name)
	}
	return nil
}

// Member returns the method or constructor matching sig.
func (u *Unit) Member(sig Signature) (*lang.MethodDecl, error) {
	key := sig.Key()
	for _, m := range u.decl.Methods() {
		if m.Key() == key {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, u.decl.Name, key)
}

// HasMember reports whether a member matching sig exists.
func (u *Unit) HasMember(sig Signature) bool {
	_, err := u.Member(sig)
	return err == nil
}

// MethodsNamed returns every method with the given name, in member order.
func (u *Unit) MethodsNamed(name string) []*lang.MethodDecl {
	var out []*lang.MethodDecl
	for _, m := range u.decl.Methods() {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field with the given name.
func (u *Unit) Field(name string) (*lang.FieldDecl, error) {
	for _, f := range u.decl.Fields() {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: field %s.%s", ErrNotFound, u.decl.Name, name)
}

// HasField reports whether the unit declares the named field.
func (u *Unit) HasField(name string) bool {
	_, err := u.Field(name)
	return err == nil
}

// AddMember appends a member. Adding a second member with the same
// identity fails with ErrDuplicate.
func (u *Unit) AddMember(m lang.Member) error {
	if err := u.Edit(); err != nil {
		return err
	}
	switch m := m.(type) {
	case *lang.FieldDecl:
		if u.HasField(m.Name) {
			return fmt.Errorf("%w: field %s.%s", ErrDuplicate, u.decl.Name, m.Name)
		}
	case *lang.MethodDecl:
		if u.HasMember(SignatureOf(m)) {
			return fmt.Errorf("%w: %s.%s", ErrDuplicate, u.decl.Name, m.Key())
		}
	}
	u.decl.Members = append(u.decl.Members, m)
	return nil
}

// SetSuper replaces the superclass.
func (u *Unit) SetSuper(name string) error {
	if err := u.Edit(); err != nil {
		return err
	}
	u.decl.Super = name
	return nil
}

// Source prints the unit in canonical form.
func (u *Unit) Source() string {
	return lang.Format(u.decl)
}
