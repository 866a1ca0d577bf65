package unit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chazu/retrofit/lang"
)

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session holds the working copies of units touched during one patch run.
// Nothing edited through a session is visible outside it until committed.
type Session struct {
	pool  *Pool
	units map[string]*Unit
	order []string
}

// NewSession starts a session over pool.
func NewSession(pool *Pool) *Session {
	return &Session{pool: pool, units: make(map[string]*Unit)}
}

// Pool returns the pool the session reads from.
func (s *Session) Pool() *Pool { return s.pool }

// Unit returns the working copy of a class, taking it from the pool on
// first touch.
func (s *Session) Unit(name string) (*Unit, error) {
	if u, ok := s.units[name]; ok {
		return u, nil
	}
	u, err := s.pool.Lookup(name)
	if err != nil {
		return nil, err
	}
	s.units[name] = u
	s.order = append(s.order, name)
	return u, nil
}

// Create introduces a unit that does not exist in the pool.
func (s *Session) Create(decl *lang.ClassDecl, origin string) (*Unit, error) {
	if _, ok := s.units[decl.Name]; ok || s.pool.Has(decl.Name) {
		return nil, fmt.Errorf("%w: class %s already exists", ErrDuplicate, decl.Name)
	}
	u := New(decl, origin)
	s.units[decl.Name] = u
	s.order = append(s.order, decl.Name)
	return u, nil
}

// Touched reports whether the class has a working copy in this session.
func (s *Session) Touched(name string) bool {
	_, ok := s.units[name]
	return ok
}

// Units returns the working copies in the order they were first touched.
func (s *Session) Units() []*Unit {
	out := make([]*Unit, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.units[name])
	}
	return out
}

// Decl returns the current declaration of a class as seen from inside the
// session: the working copy when touched, the pool's otherwise.
func (s *Session) Decl(name string) (*lang.ClassDecl, error) {
	if u, ok := s.units[name]; ok {
		return u.decl, nil
	}
	return s.pool.Decl(name)
}

// Resolves reports whether class name, or one of its ancestors, declares
// a method called method. Ancestors are looked up through the session.
func (s *Session) Resolves(name, method string) bool {
	seen := make(map[string]bool)
	for name != "" && !seen[name] {
		seen[name] = true
		decl, err := s.Decl(name)
		if err != nil {
			return false
		}
		for _, m := range decl.Methods() {
			if m.Name == method {
				return true
			}
		}
		name = decl.Super
	}
	return false
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// Loadable is the committed, frozen form of a unit, ready to be defined in
// a loader.
type Loadable struct {
	Name   string
	Super  string
	Origin string
	Source string // canonical printed source
	Digest string // hex SHA-256 of Source
	Decl   *lang.ClassDecl
}

// Commit freezes u and returns its loadable form. It fails if u was already
// committed, declares two members with the same identity, or still
// contains fragment variables outside splice bodies. Commit is irreversible:
// later edits to u fail with ErrAlreadyCommitted.
func Commit(u *Unit) (*Loadable, error) {
	if err := u.Edit(); err != nil {
		return nil, err
	}
	if err := verify(u.decl); err != nil {
		return nil, err
	}
	src := lang.Format(u.decl)
	sum := sha256.Sum256([]byte(src))
	u.committed = true
	return &Loadable{
		Name:   u.decl.Name,
		Super:  u.decl.Super,
		Origin: u.origin,
		Source: src,
		Digest: hex.EncodeToString(sum[:]),
		Decl:   u.decl,
	}, nil
}

// verify checks the structural invariants of a class before commit.
func verify(decl *lang.ClassDecl) error {
	fields := make(map[string]bool)
	methods := make(map[string]bool)
	for _, m := range decl.Members {
		switch m := m.(type) {
		case *lang.FieldDecl:
			if fields[m.Name] {
				return fmt.Errorf("%w: field %s.%s", ErrDuplicate, decl.Name, m.Name)
			}
			fields[m.Name] = true
		case *lang.MethodDecl:
			if methods[m.Key()] {
				return fmt.Errorf("%w: %s.%s", ErrDuplicate, decl.Name, m.Key())
			}
			methods[m.Key()] = true
		}
	}
	if vars := lang.DollarVars(decl); len(vars) > 0 {
		return fmt.Errorf("%w: %s uses %s", ErrFragmentVariable, decl.Name, strings.Join(vars, ", "))
	}
	return nil
}
