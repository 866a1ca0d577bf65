package vm

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chazu/retrofit/hooks"
)

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

var nextObjectID atomic.Int64

// Object is an instance of a unit class.
type Object struct {
	class *Class
	id    int64

	mu     sync.Mutex
	fields map[string]any
}

func newObject(c *Class) *Object {
	return &Object{class: c, id: nextObjectID.Add(1), fields: make(map[string]any)}
}

// Class returns the runtime class of the object.
func (o *Object) Class() *Class { return o.class }

// ID returns the object's identity hash.
func (o *Object) ID() int64 { return o.id }

// Get returns a field value.
func (o *Object) Get(name string) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields[name]
}

// Set stores a field value.
func (o *Object) Set(name string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

func (o *Object) has(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.fields[name]
	return ok
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

// List is the runtime representation of sys.List.
type List struct {
	mu    sync.Mutex
	items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List {
	return &List{items: append([]any(nil), items...)}
}

// Len returns the number of elements.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns a copy of the elements.
func (l *List) Items() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.items...)
}

// Add appends v.
func (l *List) Add(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

func (l *List) get(i int64) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= int64(len(l.items)) {
		return nil, false
	}
	return l.items[i], true
}

func (l *List) set(i int64, v any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= int64(len(l.items)) {
		return false
	}
	l.items[i] = v
	return true
}

// Strings converts the elements to strings.
func (l *List) Strings() []string {
	items := l.Items()
	out := make([]string, len(items))
	for i, v := range items {
		out[i] = displayString(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// HookRef
// ---------------------------------------------------------------------------

// HookRef is what a patched entry class's _hooks() accessor returns. Method
// calls on it are dispatched to whatever hooks the slot holds at call time.
type HookRef struct {
	slot *hooks.Slot
}

// ---------------------------------------------------------------------------
// Exception
// ---------------------------------------------------------------------------

// Exception is a thrown instance of sys.Throwable, surfacing as a Go error.
type Exception struct {
	Object *Object
}

func (e *Exception) Error() string {
	msg := e.Message()
	if msg == "" {
		return e.Object.class.Name
	}
	return e.Object.class.Name + ": " + msg
}

// Message returns the exception's message, or "".
func (e *Exception) Message() string {
	if s, ok := e.Object.Get("message").(string); ok {
		return s
	}
	return ""
}

// ClassName returns the fully qualified class of the exception.
func (e *Exception) ClassName() string { return e.Object.class.Name }

// InstanceOf reports whether the exception's class is name or a subclass.
func (e *Exception) InstanceOf(name string) bool {
	return e.Object.class.IsSubclassOf(name)
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// displayString renders values that do not need a method call.
func displayString(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && !strings.Contains(s, "NaN") {
			s += ".0"
		}
		return s
	case *List:
		return "[" + strings.Join(v.Strings(), ", ") + "]"
	case *Class:
		return "class " + v.Name
	case *Thread:
		return "Thread[" + v.Name() + "]"
	case *Loader:
		return "Loader[" + v.ID().String() + "]"
	case *HookRef:
		return "Hooks"
	case *Object:
		return v.class.Name + "@" + strconv.FormatInt(v.id, 16)
	case *Exception:
		return v.Error()
	}
	return "<native>"
}

// typeName names the runtime type of a value for diagnostics.
func typeName(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return "String"
	case bool:
		return "boolean"
	case int64:
		return "int"
	case float64:
		return "double"
	case *List:
		return "List"
	case *Class:
		return "Class"
	case *Thread:
		return "Thread"
	case *Loader:
		return "Loader"
	case *HookRef:
		return "Hooks"
	case *Object:
		return v.class.SimpleName()
	}
	return "Object"
}

func typeNames(args []any) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = typeName(a)
	}
	return strings.Join(names, ",")
}
