package vm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/chazu/retrofit/hooks"
)

// Native implements a method declared native in unit source.
type Native func(c *Call) (any, error)

// Call describes one invocation of a native method.
type Call struct {
	in    *interp
	Class *Class // declaring class
	Self  any
	Args  []any
}

// Context returns the context of the running code.
func (c *Call) Context() context.Context { return c.in.ctx }

// Thread returns the thread the code runs on.
func (c *Call) Thread() *Thread { return c.in.thread }

// Loader returns the boundary of the declaring class.
func (c *Call) Loader() *Loader { return c.Class.loader }

// Arg returns argument i, or nil.
func (c *Call) Arg(i int) any {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return nil
}

// String returns argument i as a string; null becomes "".
func (c *Call) String(i int) (string, error) {
	switch v := c.Arg(i).(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", c.Throw("sys.ClassCastException", fmt.Sprintf("argument %d: %s is not a String", i, typeName(v)))
	}
}

// Int returns argument i as an integer.
func (c *Call) Int(i int) (int64, error) {
	switch v := c.Arg(i).(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, c.Throw("sys.ClassCastException", fmt.Sprintf("argument %d: %s is not an int", i, typeName(v)))
	}
}

// Throw returns an exception of the named class.
func (c *Call) Throw(class, msg string) error { return c.in.throw(class, msg) }

// Send invokes a method on recv.
func (c *Call) Send(recv any, name string, args ...any) (any, error) {
	return c.in.send(recv, name, args)
}

// Display renders v the way string concatenation does.
func (c *Call) Display(v any) (string, error) { return c.in.display(v) }

// ---------------------------------------------------------------------------
// Built-in natives
// ---------------------------------------------------------------------------

var builtinNatives = map[string]Native{
	"out.println": func(c *Call) (any, error) {
		s, err := c.displayArgs()
		if err != nil {
			return nil, err
		}
		c.Loader().write(s + "\n")
		return nil, nil
	},
	"out.print": func(c *Call) (any, error) {
		s, err := c.displayArgs()
		if err != nil {
			return nil, err
		}
		c.Loader().write(s)
		return nil, nil
	},

	"object.toString": func(c *Call) (any, error) { return displayString(c.Self), nil },
	"object.equals":   func(c *Call) (any, error) { return equal(c.Self, c.Arg(0)), nil },
	"object.hashCode": func(c *Call) (any, error) {
		switch v := c.Self.(type) {
		case *Object:
			return v.id, nil
		case string:
			h := fnv.New32a()
			h.Write([]byte(v))
			return int64(h.Sum32()), nil
		}
		return int64(0), nil
	},
	"object.getClass": func(c *Call) (any, error) { return c.in.valueClass(c.Self) },

	"class.forName": func(c *Call) (any, error) {
		name, err := c.String(0)
		if err != nil {
			return nil, err
		}
		l := c.Loader()
		if t := c.Thread(); t != nil && t.ContextLoader() != nil {
			l = t.ContextLoader()
		}
		cls, err := l.Class(name)
		if err != nil {
			return nil, c.Throw("sys.ClassNotFoundException", name)
		}
		return cls, nil
	},
	"class.name":       func(c *Call) (any, error) { return c.Self.(*Class).Name, nil },
	"class.simpleName": func(c *Call) (any, error) { return c.Self.(*Class).SimpleName(), nil },
	"class.newInstance": func(c *Call) (any, error) {
		return c.in.newInstance(c.Self.(*Class), nil)
	},
	"class.isInstance": func(c *Call) (any, error) {
		v := c.Arg(0)
		if v == nil {
			return false, nil
		}
		vc, err := c.in.valueClass(v)
		if err != nil {
			return false, nil
		}
		return vc.IsSubclassOf(c.Self.(*Class).Name), nil
	},

	"thread.current": func(c *Call) (any, error) { return c.Thread(), nil },
	"thread.name":    func(c *Call) (any, error) { return c.Self.(*Thread).Name(), nil },
	"thread.setName": func(c *Call) (any, error) {
		name, err := c.String(0)
		if err != nil {
			return nil, err
		}
		c.Self.(*Thread).SetName(name)
		return nil, nil
	},
	"thread.contextLoader": func(c *Call) (any, error) {
		if l := c.Self.(*Thread).ContextLoader(); l != nil {
			return l, nil
		}
		return nil, nil
	},
	"thread.setContextLoader": func(c *Call) (any, error) {
		l, _ := c.Arg(0).(*Loader)
		c.Self.(*Thread).SetContextLoader(l)
		return nil, nil
	},

	"loader.current": func(c *Call) (any, error) { return c.Loader(), nil },
	"loader.addPath": func(c *Call) (any, error) {
		path, err := c.String(0)
		if err != nil {
			return nil, err
		}
		l := c.Loader()
		if self, ok := c.Self.(*Loader); ok {
			l = self
		}
		if err := l.AddPath(path); err != nil {
			return nil, c.Throw("sys.IllegalArgumentException", err.Error())
		}
		return nil, nil
	},
	"loader.hasClass": func(c *Call) (any, error) {
		name, err := c.String(0)
		if err != nil {
			return nil, err
		}
		return c.Loader().HasClass(name), nil
	},

	"system.getProperty": func(c *Call) (any, error) {
		key, err := c.String(0)
		if err != nil {
			return nil, err
		}
		if v, ok := c.Loader().Property(key); ok {
			return v, nil
		}
		return c.Arg(1), nil
	},
	"system.setProperty": func(c *Call) (any, error) {
		key, err := c.String(0)
		if err != nil {
			return nil, err
		}
		val, err := c.String(1)
		if err != nil {
			return nil, err
		}
		c.Loader().SetProperty(key, val)
		return nil, nil
	},

	"hooks.slot": func(c *Call) (any, error) {
		return &HookRef{slot: c.Loader().Slot()}, nil
	},
	"hooks.installEssential": func(c *Call) (any, error) {
		c.Loader().Slot().Install(hooks.NewEssential())
		return nil, nil
	},
}

func init() {
	for name, fn := range stringNatives {
		builtinNatives[name] = fn
	}
	for name, fn := range listNatives {
		builtinNatives[name] = fn
	}
}

func (c *Call) displayArgs() (string, error) {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		s, err := c.Display(a)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, " "), nil
}

// ---------------------------------------------------------------------------
// sys.String
// ---------------------------------------------------------------------------

func stringNative(f func(s string, c *Call) (any, error)) Native {
	return func(c *Call) (any, error) {
		return f(c.Self.(string), c)
	}
}

func stringPredicate(f func(s, arg string) bool) Native {
	return stringNative(func(s string, c *Call) (any, error) {
		arg, err := c.String(0)
		if err != nil {
			return nil, err
		}
		return f(s, arg), nil
	})
}

var stringNatives = map[string]Native{
	"string.length": stringNative(func(s string, _ *Call) (any, error) { return int64(len(s)), nil }),
	"string.isEmpty": stringNative(func(s string, _ *Call) (any, error) {
		return s == "", nil
	}),
	"string.trim":        stringNative(func(s string, _ *Call) (any, error) { return strings.TrimSpace(s), nil }),
	"string.toUpperCase": stringNative(func(s string, _ *Call) (any, error) { return strings.ToUpper(s), nil }),
	"string.toLowerCase": stringNative(func(s string, _ *Call) (any, error) { return strings.ToLower(s), nil }),
	"string.startsWith":  stringPredicate(strings.HasPrefix),
	"string.endsWith":    stringPredicate(strings.HasSuffix),
	"string.contains":    stringPredicate(strings.Contains),
	"string.equals": stringNative(func(s string, c *Call) (any, error) {
		other, ok := c.Arg(0).(string)
		return ok && other == s, nil
	}),
	"string.indexOf": stringNative(func(s string, c *Call) (any, error) {
		sub, err := c.String(0)
		if err != nil {
			return nil, err
		}
		return int64(strings.Index(s, sub)), nil
	}),
	"string.substring": stringNative(func(s string, c *Call) (any, error) {
		begin, err := c.Int(0)
		if err != nil {
			return nil, err
		}
		end := int64(len(s))
		if len(c.Args) > 1 {
			if end, err = c.Int(1); err != nil {
				return nil, err
			}
		}
		if begin < 0 || end > int64(len(s)) || begin > end {
			return nil, c.Throw("sys.IndexOutOfBoundsException", fmt.Sprintf("substring(%d, %d) of length %d", begin, end, len(s)))
		}
		return s[begin:end], nil
	}),
	"string.replace": stringNative(func(s string, c *Call) (any, error) {
		old, err := c.String(0)
		if err != nil {
			return nil, err
		}
		repl, err := c.String(1)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, repl), nil
	}),
	"string.split": stringNative(func(s string, c *Call) (any, error) {
		sep, err := c.String(0)
		if err != nil {
			return nil, err
		}
		l := NewList()
		for _, part := range strings.Split(s, sep) {
			l.Add(part)
		}
		return l, nil
	}),
}

// ---------------------------------------------------------------------------
// sys.List
// ---------------------------------------------------------------------------

func listNative(f func(l *List, c *Call) (any, error)) Native {
	return func(c *Call) (any, error) {
		return f(c.Self.(*List), c)
	}
}

var listNatives = map[string]Native{
	"list.of": func(c *Call) (any, error) { return NewList(c.Args...), nil },
	"list.size": listNative(func(l *List, _ *Call) (any, error) {
		return int64(l.Len()), nil
	}),
	"list.isEmpty": listNative(func(l *List, _ *Call) (any, error) {
		return l.Len() == 0, nil
	}),
	"list.add": listNative(func(l *List, c *Call) (any, error) {
		l.Add(c.Arg(0))
		return true, nil
	}),
	"list.get": listNative(func(l *List, c *Call) (any, error) {
		i, err := c.Int(0)
		if err != nil {
			return nil, err
		}
		v, ok := l.get(i)
		if !ok {
			return nil, c.Throw("sys.IndexOutOfBoundsException", fmt.Sprintf("index %d, size %d", i, l.Len()))
		}
		return v, nil
	}),
	"list.set": listNative(func(l *List, c *Call) (any, error) {
		i, err := c.Int(0)
		if err != nil {
			return nil, err
		}
		if !l.set(i, c.Arg(1)) {
			return nil, c.Throw("sys.IndexOutOfBoundsException", fmt.Sprintf("index %d, size %d", i, l.Len()))
		}
		return nil, nil
	}),
	"list.contains": listNative(func(l *List, c *Call) (any, error) {
		for _, it := range l.Items() {
			if equal(it, c.Arg(0)) {
				return true, nil
			}
		}
		return false, nil
	}),
	"list.join": listNative(func(l *List, c *Call) (any, error) {
		sep, err := c.String(0)
		if err != nil {
			return nil, err
		}
		parts := make([]string, 0, l.Len())
		for _, it := range l.Items() {
			s, err := c.Display(it)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep), nil
	}),
}
