package vm

import (
	"sync"

	"github.com/chazu/retrofit/lang"
	"github.com/chazu/retrofit/unit"
)

// ---------------------------------------------------------------------------
// Class: a unit defined in a loader
// ---------------------------------------------------------------------------

// RootClass is the implicit superclass of every class.
const RootClass = "sys.Object"

// Class is a committed unit defined in a Loader.
type Class struct {
	Name   string
	Origin string
	Digest string
	Decl   *lang.ClassDecl

	loader  *Loader
	methods map[string][]*lang.MethodDecl

	superOnce sync.Once
	super     *Class
	superErr  error

	mu        sync.Mutex
	statics   map[string]any
	initState int // 0 pending, 1 running, 2 done
}

func newClass(l *Loader, ld *unit.Loadable) *Class {
	c := &Class{
		Name:    ld.Name,
		Origin:  ld.Origin,
		Digest:  ld.Digest,
		Decl:    ld.Decl,
		loader:  l,
		methods: make(map[string][]*lang.MethodDecl),
		statics: make(map[string]any),
	}
	for _, m := range ld.Decl.Methods() {
		c.methods[m.Name] = append(c.methods[m.Name], m)
	}
	return c
}

// SimpleName returns the class name without its package.
func (c *Class) SimpleName() string { return lang.SimpleName(c.Name) }

// Package returns the package part of the class name.
func (c *Class) Package() string { return c.Decl.Package() }

// Loader returns the boundary the class is defined in.
func (c *Class) Loader() *Loader { return c.loader }

// Super returns the superclass, loading it on first use. Classes without
// an extends clause inherit from sys.Object, which has no superclass.
func (c *Class) Super() (*Class, error) {
	c.superOnce.Do(func() {
		name := c.Decl.Super
		if name == "" {
			if c.Name == RootClass {
				return
			}
			name = RootClass
		}
		c.super, c.superErr = c.loader.Class(name)
	})
	return c.super, c.superErr
}

// IsSubclassOf reports whether c is the class called name or inherits from
// it. Unloadable ancestors end the search.
func (c *Class) IsSubclassOf(name string) bool {
	for cur := c; cur != nil; {
		if cur.Name == name {
			return true
		}
		next, err := cur.Super()
		if err != nil {
			return false
		}
		cur = next
	}
	return false
}

// HasField reports whether the class itself declares the field.
func (c *Class) HasField(name string) bool {
	return c.field(name) != nil
}

func (c *Class) field(name string) *lang.FieldDecl {
	for _, f := range c.Decl.Fields() {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// fieldOwner finds the class in c's chain declaring the field.
func (c *Class) fieldOwner(name string) (*Class, *lang.FieldDecl) {
	for cur := c; cur != nil; {
		if f := cur.field(name); f != nil {
			return cur, f
		}
		next, err := cur.Super()
		if err != nil {
			return nil, nil
		}
		cur = next
	}
	return nil, nil
}

// lookup finds the method called name taking argc arguments, searching the
// superclass chain. Native methods match any argument count when no exact
// match exists, so natives can be variadic.
func (c *Class) lookup(name string, argc int) (*Class, *lang.MethodDecl) {
	var native *lang.MethodDecl
	var nativeOwner *Class
	for cur := c; cur != nil; {
		for _, m := range cur.methods[name] {
			if m.Ctor {
				continue
			}
			if len(m.Params) == argc {
				return cur, m
			}
			if m.Native != "" && native == nil {
				native, nativeOwner = m, cur
			}
		}
		next, err := cur.Super()
		if err != nil {
			break
		}
		cur = next
	}
	return nativeOwner, native
}

// constructor finds the constructor taking argc arguments. Constructors
// are searched up the chain so subclasses without their own constructor
// (exception classes, mostly) reuse their parent's.
func (c *Class) constructor(argc int) (*Class, *lang.MethodDecl, bool) {
	declared := false
	for cur := c; cur != nil; {
		for _, m := range cur.methods["<init>"] {
			declared = true
			if len(m.Params) == argc {
				return cur, m, true
			}
		}
		if declared {
			return nil, nil, false
		}
		next, err := cur.Super()
		if err != nil {
			break
		}
		cur = next
	}
	return nil, nil, argc == 0
}

func (c *Class) getStatic(name string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statics[name]
}

func (c *Class) setStatic(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statics[name] = v
}

// beginInit moves the class into initialization. It reports false when
// initialization already started.
func (c *Class) beginInit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initState != 0 {
		return false
	}
	c.initState = 1
	for _, f := range c.Decl.Fields() {
		if f.IsStatic() {
			c.statics[f.Name] = zeroValue(f.Type)
		}
	}
	return true
}

func (c *Class) endInit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initState = 2
}

// zeroValue is the default value of a field or local of the given type.
func zeroValue(typ string) any {
	switch typ {
	case "int", "long", "short", "byte", "char":
		return int64(0)
	case "double", "float":
		return float64(0)
	case "boolean":
		return false
	}
	return nil
}
