package vm

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/unit"
)

func newTestLoader(t *testing.T, entry string, sources map[string]string) (*Loader, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	pool := unit.NewPool(unit.NewMemSource("test", sources))
	return NewLoader(pool, entry, WithOutput(&out)), &out
}

const counterSrc = `class demo.Counter {
	static int created = 0;
	int count;
	String label = "c";

	Counter(int start) {
		count = start;
		created = created + 1;
	}

	int add(int n) {
		count = count + n;
		return count;
	}

	static String describe(demo.Counter c) {
		return c.label + "=" + c.count + " (" + created + ")";
	}
}
`

const mainSrc = `class demo.Main {
	static void main(sys.List args) {
		var c = new Counter(2);
		c.add(3);
		sys.Out.println(Counter.describe(c));
		var total = 0;
		var i = 0;
		while (i < args.size()) {
			total = total + args.get(i).length();
			i = i + 1;
		}
		sys.Out.println("total " + total);
		sys.Out.println(7 / 2, 7.0 / 2, 1 == 1.0, "a" + null);
	}
}
`

func TestRunMain(t *testing.T) {
	l, out := newTestLoader(t, "demo.Main", map[string]string{
		"demo.Main":    mainSrc,
		"demo.Counter": counterSrc,
	})
	if err := l.Main(context.Background(), "demo.Main", "ab", "cde"); err != nil {
		t.Fatalf("Main: %v", err)
	}
	want := "c=5 (1)\ntotal 5\n3 3.5 true anull\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

const errorsSrc = `class demo.Errors {
	static sys.List trace = new sys.List();

	static int risky(int n) {
		if (n > 1) {
			throw new sys.IllegalStateException("too big " + n);
		}
		return n;
	}

	static String run(int n) {
		try {
			trace.add("try");
			return "ok " + risky(n);
		} catch (sys.RuntimeException e) {
			trace.add("catch");
			return "caught " + e.getMessage();
		} finally {
			trace.add("finally");
		}
	}

	static sys.List trace() {
		return trace;
	}

	static Object cast(Object o) {
		return (demo.Errors?) o;
	}

	static Object hardCast(Object o) {
		return (demo.Errors) o;
	}

	static void missing() {
		demo.Errors.nothing();
	}

	static int recurse(int n) {
		return recurse(n + 1);
	}
}
`

func TestExceptions(t *testing.T) {
	l, _ := newTestLoader(t, "demo.Errors", map[string]string{"demo.Errors": errorsSrc})
	ctx := context.Background()

	got, err := l.InvokeStatic(ctx, "demo.Errors", "run", int64(1))
	if err != nil || got != "ok 1" {
		t.Fatalf("run(1) = %v, %v", got, err)
	}
	got, err = l.InvokeStatic(ctx, "demo.Errors", "run", int64(5))
	if err != nil || got != "caught too big 5" {
		t.Fatalf("run(5) = %v, %v", got, err)
	}
	trace, err := l.InvokeStatic(ctx, "demo.Errors", "trace")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"try", "finally", "try", "catch", "finally"}
	if !reflect.DeepEqual(trace.(*List).Strings(), want) {
		t.Errorf("trace = %v, want %v", trace.(*List).Strings(), want)
	}

	obj, err := l.Instantiate(ctx, "demo.Errors")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := l.InvokeStatic(ctx, "demo.Errors", "cast", "text"); got != nil {
		t.Errorf("guarded cast of a string = %v, want null", got)
	}
	if got, _ := l.InvokeStatic(ctx, "demo.Errors", "cast", obj); got != obj {
		t.Errorf("guarded cast of an instance = %v, want the instance", got)
	}

	tests := []struct {
		method string
		args   []any
		class  string
		msg    string
	}{
		{"hardCast", []any{"text"}, "sys.ClassCastException", "String cannot be cast to demo.Errors"},
		{"missing", nil, "sys.NoSuchMethodError", "demo.Errors.nothing()"},
		{"recurse", []any{int64(0)}, "sys.StackOverflowError", ""},
		{"risky", []any{int64(9)}, "sys.IllegalStateException", "too big 9"},
	}
	for _, tt := range tests {
		_, err := l.InvokeStatic(ctx, "demo.Errors", tt.method, tt.args...)
		var exc *Exception
		if !errors.As(err, &exc) {
			t.Errorf("%s: err = %v, want an exception", tt.method, err)
			continue
		}
		if exc.ClassName() != tt.class {
			t.Errorf("%s: class = %s, want %s", tt.method, exc.ClassName(), tt.class)
		}
		if tt.msg != "" && exc.Message() != tt.msg {
			t.Errorf("%s: message = %q, want %q", tt.method, exc.Message(), tt.msg)
		}
	}
}

const spliceSrc = `class demo.Splice {
	int value = 1;

	static int twice(int n) {
		return n * 2;
	}

	static int run() {
		return splice twice(4) {
			$_ = $proceed($1 + 1) + 100;
		};
	}

	int readValue() {
		return splice this.value {
			$_ = $proceed() + 41;
		};
	}

	void writeValue(int v) {
		splice this.value = v {
			$proceed($1 * 10);
		};
	}
}
`

func TestSplices(t *testing.T) {
	l, _ := newTestLoader(t, "demo.Splice", map[string]string{"demo.Splice": spliceSrc})
	ctx := context.Background()

	if got, err := l.InvokeStatic(ctx, "demo.Splice", "run"); err != nil || got != int64(110) {
		t.Fatalf("run() = %v, %v; want 110", got, err)
	}
	obj, err := l.Instantiate(ctx, "demo.Splice")
	if err != nil {
		t.Fatal(err)
	}
	if got, err := l.Invoke(ctx, obj, "readValue"); err != nil || got != int64(42) {
		t.Errorf("readValue() = %v, %v; want 42", got, err)
	}
	if _, err := l.Invoke(ctx, obj, "writeValue", int64(3)); err != nil {
		t.Fatal(err)
	}
	if got := obj.(*Object).Get("value"); got != int64(30) {
		t.Errorf("value after write = %v, want 30", got)
	}
}

const appSrc = `class demo.App {
	static Object _hooks() native "hooks.slot";

	static String title() {
		var name = _hooks().getAppName();
		if (name == null) {
			return "Untitled";
		}
		return name;
	}

	static void status(String s) {
		_hooks().showStatus(s);
	}

	static void handleException(sys.Throwable t) {
		sys.Out.println("handled " + t.getMessage());
	}
}
`

type statusHooks struct {
	hooks.Base
	statuses []string
}

func (h *statusHooks) ShowStatus(s string) { h.statuses = append(h.statuses, s) }

func TestHookCalls(t *testing.T) {
	l, out := newTestLoader(t, "demo.App", map[string]string{"demo.App": appSrc})
	ctx := context.Background()

	if got, err := l.InvokeStatic(ctx, "demo.App", "title"); err != nil || got != "Untitled" {
		t.Fatalf("title() without hooks = %v, %v", got, err)
	}

	l.Config().AppName = "Demo"
	h := &statusHooks{}
	l.Slot().Install(h)
	if got, err := l.InvokeStatic(ctx, "demo.App", "title"); err != nil || got != "Demo" {
		t.Errorf("title() = %v, %v; want Demo", got, err)
	}
	if _, err := l.InvokeStatic(ctx, "demo.App", "status", "busy"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(h.statuses, []string{"busy"}) {
		t.Errorf("statuses = %v", h.statuses)
	}

	l.Slot().Install(hooks.NewEssential())
	l.Slot().Current().Error(errors.New("bad plugin"))
	if got := out.String(); got != "handled bad plugin\n" {
		t.Errorf("output = %q", got)
	}
}

const threadsSrc = `class demo.Threads {
	static String name() {
		return sys.Thread.current().getName();
	}

	static boolean sameLoader() {
		return sys.Thread.current().getContextLoader() == sys.Loader.current();
	}
}
`

func TestThreadFromContext(t *testing.T) {
	l, _ := newTestLoader(t, "demo.Threads", map[string]string{"demo.Threads": threadsSrc})
	ctx := WithThread(context.Background(), NewThread("Run$_demo", l))

	if got, err := l.InvokeStatic(ctx, "demo.Threads", "name"); err != nil || got != "Run$_demo" {
		t.Errorf("name() = %v, %v", got, err)
	}
	if got, err := l.InvokeStatic(ctx, "demo.Threads", "sameLoader"); err != nil || got != true {
		t.Errorf("sameLoader() = %v, %v", got, err)
	}
	if got, _ := l.InvokeStatic(context.Background(), "demo.Threads", "name"); got != "main" {
		t.Errorf("default thread name = %v, want main", got)
	}
}

func TestDefineAfterLazyLoad(t *testing.T) {
	l, _ := newTestLoader(t, "demo.Counter", map[string]string{"demo.Counter": counterSrc})
	c, err := l.Class("demo.Counter")
	if err != nil {
		t.Fatal(err)
	}
	if c.Origin != "test" || c.Digest == "" {
		t.Errorf("class = %s from %q digest %q", c.Name, c.Origin, c.Digest)
	}

	u, err := unit.Parse(counterSrc, "patched")
	if err != nil {
		t.Fatal(err)
	}
	ld, err := unit.Commit(u)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Define(ld); !errors.Is(err, unit.ErrAlreadyCommitted) {
		t.Errorf("Define after lazy load: err = %v, want ErrAlreadyCommitted", err)
	}

	if _, err := l.Class("demo.Nope"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("Class(demo.Nope) err = %v", err)
	}
}

func TestPatchState(t *testing.T) {
	l, _ := newTestLoader(t, "demo.App", nil)
	if s, err := l.PatchState(); s != Unpatched || err != nil {
		t.Fatalf("initial state = %s, %v", s, err)
	}
	cause := errors.New("boom")
	err := l.WithPatchLock(func() error {
		l.SetPatchState(Failed, cause)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s, err := l.PatchState(); s != Failed || err != cause {
		t.Errorf("state = %s, %v", s, err)
	}
	if !strings.Contains(Patched.String(), "patched") {
		t.Errorf("Patched.String() = %q", Patched.String())
	}
}

func TestRecordInitStack(t *testing.T) {
	l, _ := newTestLoader(t, "demo.App", nil)
	if got := l.InitStack(); got != "" {
		t.Fatalf("initial stack = %q", got)
	}
	if got, ok := l.RecordInitStack("first"); !ok || got != "first" {
		t.Errorf("first record = %q, %v", got, ok)
	}
	if got, ok := l.RecordInitStack("second"); ok || got != "first" {
		t.Errorf("second record = %q, %v", got, ok)
	}
	if got := l.InitStack(); got != "first" {
		t.Errorf("stack = %q, want first", got)
	}
}

func TestLoadersAreIndependent(t *testing.T) {
	src := map[string]string{"demo.Counter": counterSrc}
	a, _ := newTestLoader(t, "demo.Counter", src)
	b, _ := newTestLoader(t, "demo.Counter", src)
	if a.ID() == b.ID() {
		t.Fatal("loaders share an id")
	}
	ctx := context.Background()
	if _, err := a.Instantiate(ctx, "demo.Counter"); err == nil {
		t.Fatal("no-arg construction of Counter should fail")
	}
	ca, _ := a.Class("demo.Counter")
	cb, _ := b.Class("demo.Counter")
	if ca == cb {
		t.Error("two loaders returned the same class")
	}
}
