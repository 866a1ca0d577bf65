package vm

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/chazu/retrofit/lang"
)

// maxDepth bounds nested method invocations; deeper recursion throws
// sys.StackOverflowError.
const maxDepth = 400

// interp executes unit code on one thread.
type interp struct {
	ctx    context.Context
	l      *Loader
	thread *Thread
	depth  int
}

// classRef is a class named in code (the receiver of a static call or
// field access). It never escapes as a value.
type classRef struct {
	c *Class
}

type scope struct {
	vars   map[string]any
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]any), parent: parent}
}

func (s *scope) holder(name string) *scope {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			return cur
		}
	}
	return nil
}

type frame struct {
	class  *Class // declaring class of the running method
	self   any    // receiver, nil in static code
	sc     *scope
	splice *spliceCtx
}

type spliceCtx struct {
	proceed func(args []any) (any, error)
}

func (f *frame) pkg() string { return f.class.Package() }

func (in *interp) recover(errp *error) {
	if r := recover(); r != nil {
		log.Errorf("interpreter panic: %v\n%s", r, debug.Stack())
		*errp = fmt.Errorf("vm: internal error: %v", r)
	}
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

// throw creates an exception of the named sys class.
func (in *interp) throw(class, msg string) error {
	c, err := in.l.Class(class)
	if err != nil {
		return fmt.Errorf("%s: %s (%w)", class, msg, err)
	}
	obj, err := in.allocate(c)
	if err != nil {
		return err
	}
	obj.Set("message", msg)
	return &Exception{Object: obj}
}

func (in *interp) throwf(class, format string, args ...any) error {
	return in.throw(class, fmt.Sprintf(format, args...))
}

// asException converts err into a catchable exception. Context
// cancellation and internal failures are not catchable.
func (in *interp) asException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, false
	}
	conv, ok := in.throw("sys.RuntimeException", err.Error()).(*Exception)
	return conv, ok
}

// ---------------------------------------------------------------------------
// Classes and instances
// ---------------------------------------------------------------------------

// resolveClass finds the class a name in code refers to. Simple names are
// tried in the current package, then in sys.
func (in *interp) resolveClass(f *frame, name string) (*Class, bool) {
	l := in.l
	if f != nil && f.class != nil {
		l = f.class.loader
	}
	var candidates []string
	if !containsDot(name) {
		if f != nil && f.class != nil && f.pkg() != "" {
			candidates = append(candidates, f.pkg()+"."+name)
		}
		candidates = append(candidates, "sys."+name)
	}
	candidates = append(candidates, name)
	for _, cand := range candidates {
		if c, err := l.Class(cand); err == nil {
			return c, true
		}
	}
	return nil, false
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

// initClass evaluates static field initializers on first use, superclass
// first.
func (in *interp) initClass(c *Class) error {
	if !c.beginInit() {
		return nil
	}
	defer c.endInit()
	if sup, err := c.Super(); err == nil && sup != nil {
		if err := in.initClass(sup); err != nil {
			return err
		}
	}
	f := &frame{class: c, sc: newScope(nil)}
	for _, fd := range c.Decl.Fields() {
		if !fd.IsStatic() || fd.Init == nil {
			continue
		}
		v, err := in.eval(f, fd.Init)
		if err != nil {
			return err
		}
		c.setStatic(fd.Name, coerce(fd.Type, v))
	}
	return nil
}

// chain returns c and its ancestors, root first.
func chain(c *Class) []*Class {
	var out []*Class
	for cur := c; cur != nil; {
		out = append([]*Class{cur}, out...)
		next, err := cur.Super()
		if err != nil {
			break
		}
		cur = next
	}
	return out
}

// allocate creates an object with initialized instance fields but runs no
// constructor.
func (in *interp) allocate(c *Class) (*Object, error) {
	if err := in.initClass(c); err != nil {
		return nil, err
	}
	obj := newObject(c)
	for _, k := range chain(c) {
		f := &frame{class: k, self: obj, sc: newScope(nil)}
		for _, fd := range k.Decl.Fields() {
			if fd.IsStatic() {
				continue
			}
			v := zeroValue(fd.Type)
			if fd.Init != nil {
				var err error
				if v, err = in.eval(f, fd.Init); err != nil {
					return nil, err
				}
			}
			obj.Set(fd.Name, coerce(fd.Type, v))
		}
	}
	return obj, nil
}

// newInstance allocates an object and runs the constructor matching args.
func (in *interp) newInstance(c *Class, args []any) (any, error) {
	if c.Name == "sys.List" {
		return NewList(args...), nil
	}
	obj, err := in.allocate(c)
	if err != nil {
		return nil, err
	}
	owner, ctor, ok := c.constructor(len(args))
	if !ok {
		return nil, in.throwf("sys.NoSuchMethodError", "%s.<init>(%s)", c.Name, typeNames(args))
	}
	if ctor == nil {
		return obj, nil
	}
	if err := in.superInit(owner, obj); err != nil {
		return nil, err
	}
	if _, err := in.invoke(owner, ctor, obj, args); err != nil {
		return nil, err
	}
	return obj, nil
}

// superInit runs the no-argument constructors of the ancestors of owner,
// outermost first.
func (in *interp) superInit(owner *Class, obj *Object) error {
	sup, err := owner.Super()
	if err != nil || sup == nil {
		return nil
	}
	o, ctor, ok := sup.constructor(0)
	if !ok || ctor == nil {
		return nil
	}
	if err := in.superInit(o, obj); err != nil {
		return err
	}
	_, err = in.invoke(o, ctor, obj, nil)
	return err
}

// valueClass returns the class whose methods apply to a non-object value.
func (in *interp) valueClass(v any) (*Class, error) {
	name := "sys.Object"
	switch v := v.(type) {
	case *Object:
		return v.class, nil
	case string:
		name = "sys.String"
	case *List:
		name = "sys.List"
	case *Class:
		name = "sys.Class"
	case *Thread:
		name = "sys.Thread"
	case *Loader:
		name = "sys.Loader"
	}
	return in.l.Class(name)
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// send invokes a method on a receiver value or class reference.
func (in *interp) send(recv any, name string, args []any) (any, error) {
	switch r := recv.(type) {
	case nil:
		return nil, in.throwf("sys.NullPointerException", "cannot invoke %s() on null", name)
	case *classRef:
		owner, m := r.c.lookup(name, len(args))
		if m == nil {
			return nil, in.noSuchMethod(r.c, name, args)
		}
		if !m.IsStatic() {
			return nil, in.throwf("sys.IllegalStateException", "%s.%s is not static", owner.Name, m.Key())
		}
		return in.invoke(owner, m, nil, args)
	case *HookRef:
		return in.dispatchHook(r, name, args)
	}
	c, err := in.valueClass(recv)
	if err != nil {
		return nil, err
	}
	owner, m := c.lookup(name, len(args))
	if m == nil {
		return nil, in.noSuchMethod(c, name, args)
	}
	return in.invoke(owner, m, recv, args)
}

func (in *interp) noSuchMethod(c *Class, name string, args []any) error {
	return in.throwf("sys.NoSuchMethodError", "%s.%s(%s)", c.Name, name, typeNames(args))
}

// invoke runs a resolved method with self as receiver.
func (in *interp) invoke(owner *Class, m *lang.MethodDecl, self any, args []any) (any, error) {
	if err := in.ctx.Err(); err != nil {
		return nil, err
	}
	if in.depth >= maxDepth {
		return nil, in.throwf("sys.StackOverflowError", "%s.%s", owner.Name, m.Key())
	}
	in.depth++
	defer func() { in.depth-- }()

	if err := in.initClass(owner); err != nil {
		return nil, err
	}
	if m.Native != "" {
		fn := owner.loader.native(m.Native)
		if fn == nil {
			return nil, in.throwf("sys.UnsatisfiedLinkError", "%s.%s: no native %q", owner.Name, m.Key(), m.Native)
		}
		return fn(&Call{in: in, Class: owner, Self: self, Args: args})
	}
	if m.Body == nil {
		return nil, in.throwf("sys.IllegalStateException", "%s.%s has no body", owner.Name, m.Key())
	}
	sc := newScope(nil)
	for i, p := range m.Params {
		var v any
		if i < len(args) {
			v = args[i]
		}
		sc.vars[p.Name] = coerce(p.Type, v)
	}
	f := &frame{class: owner, self: self, sc: sc}
	_, v, err := in.execBlock(f, m.Body)
	if err != nil {
		return nil, err
	}
	return coerce(m.Result, v), nil
}

// callUnqualified resolves name(args) written without a receiver: virtual
// on the current object first, then statically in the current class.
func (in *interp) callUnqualified(f *frame, name string, args []any) (any, error) {
	if obj, ok := f.self.(*Object); ok {
		if owner, m := obj.class.lookup(name, len(args)); m != nil {
			if m.IsStatic() {
				return in.invoke(owner, m, nil, args)
			}
			return in.invoke(owner, m, obj, args)
		}
	}
	owner, m := f.class.lookup(name, len(args))
	if m == nil {
		return nil, in.noSuchMethod(f.class, name, args)
	}
	if m.IsStatic() {
		return in.invoke(owner, m, nil, args)
	}
	if f.self == nil {
		return nil, in.throwf("sys.IllegalStateException", "%s.%s needs an instance", owner.Name, m.Key())
	}
	return in.invoke(owner, m, f.self, args)
}

// callSuper invokes name(args) starting the lookup at the parent of the
// current class.
func (in *interp) callSuper(f *frame, name string, args []any) (any, error) {
	sup, err := f.class.Super()
	if err != nil {
		return nil, err
	}
	if sup == nil {
		return nil, in.noSuchMethod(f.class, "super."+name, args)
	}
	owner, m := sup.lookup(name, len(args))
	if m == nil {
		return nil, in.noSuchMethod(sup, name, args)
	}
	return in.invoke(owner, m, f.self, args)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

type flow int

const (
	flowNormal flow = iota
	flowReturn
)

func (in *interp) execBlock(f *frame, b *lang.Block) (flow, any, error) {
	inner := *f
	inner.sc = newScope(f.sc)
	for _, s := range b.Stmts {
		fl, v, err := in.exec(&inner, s)
		if err != nil || fl == flowReturn {
			return fl, v, err
		}
	}
	return flowNormal, nil, nil
}

func (in *interp) exec(f *frame, s lang.Stmt) (flow, any, error) {
	switch s := s.(type) {
	case *lang.Block:
		return in.execBlock(f, s)

	case *lang.VarDecl:
		v := zeroValue(s.Type)
		if s.Init != nil {
			var err error
			if v, err = in.eval(f, s.Init); err != nil {
				return flowNormal, nil, err
			}
		}
		f.sc.vars[s.Name] = coerce(s.Type, v)
		return flowNormal, nil, nil

	case *lang.AssignStmt:
		r, err := in.resolveRef(f, s.Target)
		if err != nil {
			return flowNormal, nil, err
		}
		v, err := in.eval(f, s.Value)
		if err != nil {
			return flowNormal, nil, err
		}
		return flowNormal, nil, in.assign(r, v)

	case *lang.ExprStmt:
		_, err := in.eval(f, s.X)
		return flowNormal, nil, err

	case *lang.IfStmt:
		ok, err := in.cond(f, s.Cond)
		if err != nil {
			return flowNormal, nil, err
		}
		if ok {
			return in.exec(f, s.Then)
		}
		if s.Else != nil {
			return in.exec(f, s.Else)
		}
		return flowNormal, nil, nil

	case *lang.WhileStmt:
		for {
			if err := in.ctx.Err(); err != nil {
				return flowNormal, nil, err
			}
			ok, err := in.cond(f, s.Cond)
			if err != nil || !ok {
				return flowNormal, nil, err
			}
			fl, v, err := in.exec(f, s.Body)
			if err != nil || fl == flowReturn {
				return fl, v, err
			}
		}

	case *lang.ReturnStmt:
		if s.Value == nil {
			return flowReturn, nil, nil
		}
		v, err := in.eval(f, s.Value)
		if err != nil {
			return flowNormal, nil, err
		}
		return flowReturn, v, nil

	case *lang.ThrowStmt:
		v, err := in.eval(f, s.Value)
		if err != nil {
			return flowNormal, nil, err
		}
		obj, ok := v.(*Object)
		if !ok || !obj.class.IsSubclassOf("sys.Throwable") {
			if v == nil {
				return flowNormal, nil, in.throw("sys.NullPointerException", "throw null")
			}
			return flowNormal, nil, in.throwf("sys.ClassCastException", "%s is not throwable", typeName(v))
		}
		return flowNormal, nil, &Exception{Object: obj}

	case *lang.TryStmt:
		return in.execTry(f, s)
	}
	return flowNormal, nil, fmt.Errorf("vm: unsupported statement %T", s)
}

func (in *interp) execTry(f *frame, s *lang.TryStmt) (flow, any, error) {
	fl, v, err := in.execBlock(f, s.Body)
	if err != nil {
		if exc, ok := in.asException(err); ok {
			for _, c := range s.Catches {
				if !in.catches(f, c.Type, exc) {
					continue
				}
				inner := *f
				inner.sc = newScope(f.sc)
				inner.sc.vars[c.Name] = exc.Object
				fl, v, err = in.execBlock(&inner, c.Body)
				break
			}
		}
	}
	if s.Finally != nil {
		ffl, fv, ferr := in.execBlock(f, s.Finally)
		if ferr != nil || ffl == flowReturn {
			return ffl, fv, ferr
		}
	}
	return fl, v, err
}

func (in *interp) catches(f *frame, typ string, exc *Exception) bool {
	if c, ok := in.resolveClass(f, typ); ok {
		return exc.Object.class.IsSubclassOf(c.Name)
	}
	return false
}

func (in *interp) cond(f *frame, e lang.Expr) (bool, error) {
	v, err := in.eval(f, e)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, in.throwf("sys.ClassCastException", "%s used as a condition", typeName(v))
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// References (assignable locations)
// ---------------------------------------------------------------------------

type ref struct {
	sc    *scope
	obj   *Object
	class *Class // owner of a static field
	list  *List
	index int64
	name  string
	typ   string
}

var errUnresolved = errors.New("unresolved name")

func (r ref) receiver() any {
	if r.obj != nil {
		return r.obj
	}
	return nil
}

func (in *interp) get(r ref) (any, error) {
	switch {
	case r.sc != nil:
		return r.sc.vars[r.name], nil
	case r.obj != nil:
		return r.obj.Get(r.name), nil
	case r.class != nil:
		return r.class.getStatic(r.name), nil
	case r.list != nil:
		v, ok := r.list.get(r.index)
		if !ok {
			return nil, in.throwf("sys.IndexOutOfBoundsException", "index %d, size %d", r.index, r.list.Len())
		}
		return v, nil
	}
	return nil, errUnresolved
}

func (in *interp) assign(r ref, v any) error {
	v = coerce(r.typ, v)
	switch {
	case r.sc != nil:
		r.sc.vars[r.name] = v
	case r.obj != nil:
		r.obj.Set(r.name, v)
	case r.class != nil:
		r.class.setStatic(r.name, v)
	case r.list != nil:
		if !r.list.set(r.index, v) {
			return in.throwf("sys.IndexOutOfBoundsException", "index %d, size %d", r.index, r.list.Len())
		}
	default:
		return errUnresolved
	}
	return nil
}

// fieldRef resolves a field of an object or, when static, of its owner.
func (in *interp) fieldRef(c *Class, obj *Object, name string) (ref, bool, error) {
	owner, fd := c.fieldOwner(name)
	if fd == nil {
		return ref{}, false, nil
	}
	if fd.IsStatic() {
		if err := in.initClass(owner); err != nil {
			return ref{}, false, err
		}
		return ref{class: owner, name: name, typ: fd.Type}, true, nil
	}
	if obj == nil {
		return ref{}, false, in.throwf("sys.IllegalStateException", "instance field %s.%s used in static code", owner.Name, name)
	}
	return ref{obj: obj, name: name, typ: fd.Type}, true, nil
}

// resolveRef resolves an assignable expression.
func (in *interp) resolveRef(f *frame, e lang.Expr) (ref, error) {
	switch e := e.(type) {
	case *lang.Ident:
		if h := f.sc.holder(e.Name); h != nil {
			return ref{sc: h, name: e.Name}, nil
		}
		if obj, ok := f.self.(*Object); ok {
			if r, ok, err := in.fieldRef(obj.class, obj, e.Name); ok || err != nil {
				return r, err
			}
		}
		if r, ok, err := in.fieldRef(f.class, nil, e.Name); ok || err != nil {
			return r, err
		}
		return ref{}, errUnresolved
	case *lang.DollarVar:
		if h := f.sc.holder(e.Name); h != nil {
			return ref{sc: h, name: e.Name}, nil
		}
		return ref{}, fmt.Errorf("vm: fragment variable %s used outside a splice", e.Name)
	case *lang.SelectExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return ref{}, err
		}
		switch x := x.(type) {
		case *classRef:
			r, ok, err := in.fieldRef(x.c, nil, e.Name)
			if err != nil {
				return ref{}, err
			}
			if !ok {
				return ref{}, in.throwf("sys.NoSuchFieldError", "%s.%s", x.c.Name, e.Name)
			}
			return r, nil
		case *Object:
			r, ok, err := in.fieldRef(x.class, x, e.Name)
			if err != nil {
				return ref{}, err
			}
			if !ok {
				return ref{}, in.throwf("sys.NoSuchFieldError", "%s.%s", x.class.Name, e.Name)
			}
			return r, nil
		case nil:
			return ref{}, in.throwf("sys.NullPointerException", "cannot access field %s of null", e.Name)
		}
		return ref{}, in.throwf("sys.NoSuchFieldError", "%s.%s", typeName(x), e.Name)
	case *lang.IndexExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return ref{}, err
		}
		idx, err := in.eval(f, e.Index)
		if err != nil {
			return ref{}, err
		}
		list, ok := x.(*List)
		i, iok := idx.(int64)
		if !ok || !iok {
			return ref{}, in.throwf("sys.ClassCastException", "cannot index %s with %s", typeName(x), typeName(idx))
		}
		return ref{list: list, index: i}, nil
	case *lang.ParenExpr:
		return in.resolveRef(f, e.X)
	}
	return ref{}, fmt.Errorf("vm: cannot assign to %T", e)
}

// isVariable reports whether name is a local or a field visible in f.
func (in *interp) isVariable(f *frame, name string) bool {
	if f.sc.holder(name) != nil {
		return true
	}
	if obj, ok := f.self.(*Object); ok {
		if _, fd := obj.class.fieldOwner(name); fd != nil {
			return true
		}
	}
	_, fd := f.class.fieldOwner(name)
	return fd != nil
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// coerce applies the implicit numeric conversions of declared types.
func coerce(typ string, v any) any {
	switch typ {
	case "double", "float":
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case "int", "long", "short", "byte", "char":
		if x, ok := v.(float64); ok {
			return int64(x)
		}
	}
	return v
}
