package vm

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/lang"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (in *interp) eval(f *frame, e lang.Expr) (any, error) {
	switch e := e.(type) {
	case *lang.IntLit:
		return e.Value, nil
	case *lang.FloatLit:
		return e.Value, nil
	case *lang.StringLit:
		return e.Value, nil
	case *lang.BoolLit:
		return e.Value, nil
	case *lang.NullLit:
		return nil, nil
	case *lang.ThisExpr:
		return f.self, nil
	case *lang.ParenExpr:
		return in.eval(f, e.X)

	case *lang.Ident:
		r, err := in.resolveRef(f, e)
		if err == nil {
			return in.get(r)
		}
		if !errors.Is(err, errUnresolved) {
			return nil, err
		}
		if c, ok := in.resolveClass(f, e.Name); ok {
			return &classRef{c}, nil
		}
		return nil, in.throwf("sys.NoClassDefFoundError", "%s", e.Name)

	case *lang.DollarVar:
		r, err := in.resolveRef(f, e)
		if err != nil {
			return nil, err
		}
		return in.get(r)

	case *lang.SelectExpr:
		if qn, ok := lang.QualifiedName(e); ok && !in.isVariable(f, headName(qn)) {
			if c, ok := in.resolveClass(f, qn); ok {
				return &classRef{c}, nil
			}
			if _, isIdent := e.X.(*lang.Ident); isIdent {
				if _, ok := in.resolveClass(f, headName(qn)); !ok {
					return nil, in.throwf("sys.NoClassDefFoundError", "%s", qn)
				}
			}
		}
		r, err := in.resolveRef(f, e)
		if err != nil {
			return nil, err
		}
		return in.get(r)

	case *lang.IndexExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return nil, err
		}
		if s, ok := x.(string); ok {
			idx, err := in.eval(f, e.Index)
			if err != nil {
				return nil, err
			}
			i, ok := idx.(int64)
			if !ok || i < 0 || i >= int64(len(s)) {
				return nil, in.throwf("sys.IndexOutOfBoundsException", "index %v, length %d", idx, len(s))
			}
			return string(s[i]), nil
		}
		r, err := in.resolveRef(f, e)
		if err != nil {
			return nil, err
		}
		return in.get(r)

	case *lang.CallExpr:
		return in.evalCall(f, e)

	case *lang.NewExpr:
		c, ok := in.resolveClass(f, e.Type)
		if !ok {
			return nil, in.throwf("sys.NoClassDefFoundError", "%s", e.Type)
		}
		args, err := in.evalArgs(f, e.Args)
		if err != nil {
			return nil, err
		}
		return in.newInstance(c, args)

	case *lang.UnaryExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "!":
			b, ok := x.(bool)
			if !ok {
				return nil, in.throwf("sys.ClassCastException", "!%s", typeName(x))
			}
			return !b, nil
		case "-":
			switch x := x.(type) {
			case int64:
				return -x, nil
			case float64:
				return -x, nil
			}
			return nil, in.throwf("sys.ClassCastException", "-%s", typeName(x))
		}
		return nil, fmt.Errorf("vm: unknown unary operator %s", e.Op)

	case *lang.BinaryExpr:
		return in.evalBinary(f, e)

	case *lang.InstanceofExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return nil, err
		}
		return in.isInstance(f, x, e.Type), nil

	case *lang.CondExpr:
		ok, err := in.cond(f, e.Cond)
		if err != nil {
			return nil, err
		}
		if ok {
			return in.eval(f, e.Then)
		}
		return in.eval(f, e.Else)

	case *lang.CastExpr:
		x, err := in.eval(f, e.X)
		if err != nil {
			return nil, err
		}
		if x == nil {
			return nil, nil
		}
		if in.isInstance(f, x, e.Type) {
			return coerce(e.Type, x), nil
		}
		if e.Guarded {
			return nil, nil
		}
		return nil, in.throwf("sys.ClassCastException", "%s cannot be cast to %s", typeName(x), e.Type)

	case *lang.SpliceExpr:
		return in.evalSplice(f, e)

	case *lang.SuperExpr:
		return nil, errors.New("vm: super used as a value")
	}
	return nil, fmt.Errorf("vm: unsupported expression %T", e)
}

func headName(qn string) string {
	if i := strings.IndexByte(qn, '.'); i >= 0 {
		return qn[:i]
	}
	return qn
}

func (in *interp) evalArgs(f *frame, exprs []lang.Expr) ([]any, error) {
	args := make([]any, 0, len(exprs))
	for _, a := range exprs {
		v, err := in.eval(f, a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (in *interp) evalCall(f *frame, e *lang.CallExpr) (any, error) {
	if strings.HasPrefix(e.Name, "$") {
		if e.Name != "$proceed" || f.splice == nil {
			return nil, fmt.Errorf("vm: %s used outside a splice", e.Name)
		}
		args, err := in.proceedArgs(f, e.Args)
		if err != nil {
			return nil, err
		}
		return f.splice.proceed(args)
	}
	switch recv := e.Recv.(type) {
	case nil:
		args, err := in.evalArgs(f, e.Args)
		if err != nil {
			return nil, err
		}
		return in.callUnqualified(f, e.Name, args)
	case *lang.SuperExpr:
		args, err := in.evalArgs(f, e.Args)
		if err != nil {
			return nil, err
		}
		return in.callSuper(f, e.Name, args)
	default:
		rv, err := in.eval(f, recv)
		if err != nil {
			return nil, err
		}
		args, err := in.evalArgs(f, e.Args)
		if err != nil {
			return nil, err
		}
		return in.send(rv, e.Name, args)
	}
}

// proceedArgs evaluates $proceed arguments; a lone $$ spreads the original
// argument list.
func (in *interp) proceedArgs(f *frame, exprs []lang.Expr) ([]any, error) {
	if len(exprs) == 1 {
		if d, ok := exprs[0].(*lang.DollarVar); ok && d.Name == "$$" {
			v, err := in.eval(f, d)
			if err != nil {
				return nil, err
			}
			if l, ok := v.(*List); ok {
				return l.Items(), nil
			}
		}
	}
	return in.evalArgs(f, exprs)
}

func (in *interp) isInstance(f *frame, v any, typ string) bool {
	if v == nil {
		return false
	}
	switch lang.SimpleName(typ) {
	case "Object":
		return true
	case "String":
		_, ok := v.(string)
		return ok
	case "int", "long", "short", "byte", "char":
		_, ok := v.(int64)
		return ok
	case "double", "float":
		switch v.(type) {
		case int64, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	}
	c, ok := in.resolveClass(f, typ)
	if !ok {
		return false
	}
	vc, err := in.valueClass(v)
	if err != nil {
		return false
	}
	return vc.IsSubclassOf(c.Name)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (in *interp) evalBinary(f *frame, e *lang.BinaryExpr) (any, error) {
	if e.Op == "&&" || e.Op == "||" {
		l, err := in.cond(f, e.X)
		if err != nil {
			return nil, err
		}
		if (e.Op == "&&") != l {
			return l, nil
		}
		return in.cond(f, e.Y)
	}
	x, err := in.eval(f, e.X)
	if err != nil {
		return nil, err
	}
	y, err := in.eval(f, e.Y)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "==":
		return equal(x, y), nil
	case "!=":
		return !equal(x, y), nil
	case "+":
		_, xs := x.(string)
		_, ys := y.(string)
		if xs || ys {
			a, err := in.display(x)
			if err != nil {
				return nil, err
			}
			b, err := in.display(y)
			if err != nil {
				return nil, err
			}
			return a + b, nil
		}
	}

	xi, xInt := x.(int64)
	yi, yInt := y.(int64)
	if xInt && yInt {
		switch e.Op {
		case "+":
			return xi + yi, nil
		case "-":
			return xi - yi, nil
		case "*":
			return xi * yi, nil
		case "/", "%":
			if yi == 0 {
				return nil, in.throw("sys.ArithmeticException", "/ by zero")
			}
			if e.Op == "/" {
				return xi / yi, nil
			}
			return xi % yi, nil
		case "<":
			return xi < yi, nil
		case "<=":
			return xi <= yi, nil
		case ">":
			return xi > yi, nil
		case ">=":
			return xi >= yi, nil
		}
	}
	xf, xNum := toFloat(x)
	yf, yNum := toFloat(y)
	if xNum && yNum {
		switch e.Op {
		case "+":
			return xf + yf, nil
		case "-":
			return xf - yf, nil
		case "*":
			return xf * yf, nil
		case "/":
			return xf / yf, nil
		case "%":
			return math.Mod(xf, yf), nil
		case "<":
			return xf < yf, nil
		case "<=":
			return xf <= yf, nil
		case ">":
			return xf > yf, nil
		case ">=":
			return xf >= yf, nil
		}
	}
	return nil, in.throwf("sys.ClassCastException", "bad operands for %s: %s, %s", e.Op, typeName(x), typeName(y))
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func equal(x, y any) bool {
	if xf, ok := toFloat(x); ok {
		if yf, ok := toFloat(y); ok {
			return xf == yf
		}
		return false
	}
	if _, ok := x.(*classRef); ok {
		return false
	}
	return x == y
}

// display renders a value as string concatenation and sys.Out do, calling
// toString on objects.
func (in *interp) display(v any) (string, error) {
	obj, ok := v.(*Object)
	if !ok {
		return displayString(v), nil
	}
	owner, m := obj.class.lookup("toString", 0)
	if m == nil || m.Native == "object.toString" {
		return displayString(v), nil
	}
	s, err := in.invoke(owner, m, obj, nil)
	if err != nil {
		return "", err
	}
	return displayString(s), nil
}

// ---------------------------------------------------------------------------
// Splices
// ---------------------------------------------------------------------------

// evalSplice runs a rewritten site. The body sees $0 (receiver), $1..$n
// (arguments or written value), $$ (argument list) and $_ (result), and may
// perform the original operation through $proceed.
func (in *interp) evalSplice(f *frame, e *lang.SpliceExpr) (any, error) {
	sc := newScope(f.sc)
	var recv any
	var args []any
	var proceed func([]any) (any, error)

	switch site := e.Site.(type) {
	case *lang.CallExpr:
		var target any
		switch r := site.Recv.(type) {
		case nil:
			recv = f.self
			proceed = func(a []any) (any, error) { return in.callUnqualified(f, site.Name, a) }
		case *lang.SuperExpr:
			recv = f.self
			proceed = func(a []any) (any, error) { return in.callSuper(f, site.Name, a) }
		default:
			rv, err := in.eval(f, r)
			if err != nil {
				return nil, err
			}
			target = rv
			if _, static := rv.(*classRef); !static {
				recv = rv
			}
			proceed = func(a []any) (any, error) { return in.send(target, site.Name, a) }
		}
		var err error
		if args, err = in.evalArgs(f, site.Args); err != nil {
			return nil, err
		}

	case *lang.AssignStmt:
		r, err := in.resolveRef(f, site.Target)
		if err != nil {
			return nil, err
		}
		v, err := in.eval(f, site.Value)
		if err != nil {
			return nil, err
		}
		recv, args = r.receiver(), []any{v}
		proceed = func(a []any) (any, error) {
			var nv any
			if len(a) > 0 {
				nv = a[0]
			}
			return nil, in.assign(r, nv)
		}

	case *lang.SelectExpr, *lang.Ident:
		r, err := in.resolveRef(f, site.(lang.Expr))
		if err != nil {
			return nil, err
		}
		recv = r.receiver()
		proceed = func([]any) (any, error) { return in.get(r) }

	default:
		return nil, fmt.Errorf("vm: unsupported splice site %T", site)
	}

	sc.vars["$0"] = recv
	for i, a := range args {
		sc.vars[fmt.Sprintf("$%d", i+1)] = a
	}
	sc.vars["$$"] = NewList(args...)
	sc.vars["$_"] = nil

	inner := *f
	inner.sc = sc
	inner.splice = &spliceCtx{proceed: proceed}
	fl, v, err := in.execBlock(&inner, e.Body)
	if err != nil {
		return nil, err
	}
	if fl == flowReturn {
		return v, nil
	}
	return sc.vars["$_"], nil
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

func (in *interp) dispatchHook(r *HookRef, name string, args []any) (any, error) {
	hargs := make([]any, len(args))
	for i, a := range args {
		hargs[i] = toHookValue(a)
	}
	res, err := hooks.Dispatch(r.slot.Current(), name, hargs...)
	if err != nil {
		return nil, in.throwf("sys.NoSuchMethodError", "Hooks.%s(%s)", name, typeNames(args))
	}
	return in.fromGo(res)
}

// toHookValue converts a unit value to what hook implementations expect.
func toHookValue(v any) any {
	switch v := v.(type) {
	case *List:
		items := v.Items()
		for i, it := range items {
			items[i] = toHookValue(it)
		}
		return items
	case *Object:
		if v.class.IsSubclassOf("sys.Throwable") {
			return &Exception{Object: v}
		}
	}
	return v
}

// fromGo converts a Go value returned by hooks or passed in by callers into
// a unit value.
func (in *interp) fromGo(v any) (any, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case []string:
		l := NewList()
		for _, s := range v {
			l.Add(s)
		}
		return l, nil
	case []any:
		l := NewList()
		for _, it := range v {
			c, err := in.fromGo(it)
			if err != nil {
				return nil, err
			}
			l.Add(c)
		}
		return l, nil
	case *Exception:
		return v.Object, nil
	case error:
		exc, ok := in.asException(v)
		if !ok {
			return nil, v
		}
		return exc.Object, nil
	}
	return v, nil
}

func (in *interp) fromGoArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := in.fromGo(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
