package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeRuntime struct {
	mu        sync.Mutex
	classes   map[string][]string
	statics   []string
	invoked   []string
	staticErr error
}

func (r *fakeRuntime) InvokeStatic(_ context.Context, class, method string, args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statics = append(r.statics, class+"."+method)
	return nil, r.staticErr
}

func (r *fakeRuntime) Instantiate(_ context.Context, class string) (any, error) {
	return class, nil
}

func (r *fakeRuntime) Invoke(_ context.Context, recv any, method string, args ...any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoked = append(r.invoked, recv.(string)+"."+method)
	return nil, nil
}

func (r *fakeRuntime) HasClass(name string) bool {
	_, ok := r.classes[name]
	return ok
}

func (r *fakeRuntime) ClassLocations(name string) []string {
	return r.classes[name]
}

type recordingHooks struct {
	Base
	name     string
	events   *[]string
	statuses []string
}

func (h *recordingHooks) Installed() { *h.events = append(*h.events, h.name+".installed") }
func (h *recordingHooks) Dispose()   { *h.events = append(*h.events, h.name+".dispose") }

func (h *recordingHooks) ShowStatus(s string) { h.statuses = append(h.statuses, s) }

type migratingHooks struct {
	recordingHooks
	inherited []string
}

func (h *migratingHooks) Migrate(prev Hooks) {
	if r, ok := prev.(*recordingHooks); ok {
		h.inherited = append(h.inherited, r.statuses...)
	}
	*h.events = append(*h.events, h.name+".migrate")
}

func TestSlotInstallReturnsPrevious(t *testing.T) {
	var events []string
	slot := NewSlot(NewSite("app.Main", nil, nil))

	a := &recordingHooks{name: "a", events: &events}
	if prev := slot.Install(a); prev != nil {
		t.Fatalf("first install returned %v, want nil", prev)
	}
	a.ShowStatus("loading")

	b := &migratingHooks{recordingHooks: recordingHooks{name: "b", events: &events}}
	prev := slot.Install(b)
	if prev != a {
		t.Fatalf("Install returned %v, want the first hooks", prev)
	}
	if slot.Current() != b {
		t.Fatalf("Current() = %v, want b", slot.Current())
	}

	want := []string{"a.installed", "b.migrate", "a.dispose", "b.installed"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
	if !reflect.DeepEqual(b.inherited, []string{"loading"}) {
		t.Errorf("inherited = %v", b.inherited)
	}
}

func TestInstallNilInstallsEssential(t *testing.T) {
	var events []string
	slot := NewSlot(NewSite("app.Main", nil, nil))
	a := &recordingHooks{name: "a", events: &events}
	slot.Install(a)

	if prev := slot.Install(nil); prev != a {
		t.Fatalf("Install(nil) returned %v, want the first hooks", prev)
	}
	e, ok := slot.Current().(*Essential)
	if !ok {
		t.Fatalf("Current() = %T, want *Essential", slot.Current())
	}
	if e.Site() != slot.Site() {
		t.Error("essential hooks not bound to the slot's site")
	}
	if want := []string{"a.installed", "a.dispose"}; !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

// layeringHooks installs a more specialized hook when it is installed.
type layeringHooks struct {
	recordingHooks
	slot  *Slot
	inner Hooks
}

func (h *layeringHooks) Installed() {
	h.recordingHooks.Installed()
	h.slot.Install(h.inner)
}

func TestInstallFromInstalled(t *testing.T) {
	var events []string
	slot := NewSlot(NewSite("app.Main", nil, nil))
	inner := &recordingHooks{name: "inner", events: &events}
	outer := &layeringHooks{recordingHooks: recordingHooks{name: "outer", events: &events}, slot: slot, inner: inner}

	done := make(chan Hooks, 1)
	go func() { done <- slot.Install(outer) }()
	select {
	case prev := <-done:
		if prev != nil {
			t.Errorf("Install returned %v, want nil", prev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Install blocked when Installed installs further hooks")
	}

	if slot.Current() != inner {
		t.Errorf("Current() = %T, want the layered hooks", slot.Current())
	}
	want := []string{"outer.installed", "outer.dispose", "inner.installed"}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestOverridesObservedThroughDispatch(t *testing.T) {
	var events []string
	slot := NewSlot(NewSite("app.Main", nil, nil))
	slot.Install(&Base{})
	if _, err := Dispatch(slot.Current(), "showStatus", "ignored"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	h := &recordingHooks{name: "h", events: &events}
	slot.Install(h)
	if _, err := Dispatch(slot.Current(), "showStatus", "hello"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !reflect.DeepEqual(h.statuses, []string{"hello"}) {
		t.Errorf("statuses = %v", h.statuses)
	}
}

func TestConfigSurvivesSwap(t *testing.T) {
	cfg := NewConfig()
	cfg.AddPluginClasspath("/a.jar", "/b.jar", "/a.jar", "/c.jar")
	cfg.EnablePluginDirs = false
	slot := NewSlot(NewSite("app.Main", cfg, nil))

	slot.Install(NewEssential())
	var events []string
	slot.Install(&recordingHooks{name: "x", events: &events})

	got := slot.Current().HandleExtraPluginJars()
	want := []string{"/a.jar", "/b.jar", "/c.jar"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HandleExtraPluginJars() = %v, want %v", got, want)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.AddPluginClasspath("/x.jar")
	cfg.AppName = "Demo"
	data, err := MarshalConfig(cfg)
	if err != nil {
		t.Fatalf("MarshalConfig: %v", err)
	}
	back, err := UnmarshalConfig(data)
	if err != nil {
		t.Fatalf("UnmarshalConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, back) {
		t.Errorf("round trip = %+v, want %+v", back, cfg)
	}
	again, _ := MarshalConfig(back)
	if string(again) != string(data) {
		t.Error("canonical encoding is not stable")
	}
}

func TestMenuSeparatorsAndClear(t *testing.T) {
	var m Menu
	m.Add("File>Open", "open")
	m.Add("File>-", "")
	m.Add("File>Close", "close")
	m.Add("File>-", "")
	m.Add("File>Open", "open2")

	var paths []string
	for _, e := range m.Entries() {
		paths = append(paths, e.Path)
	}
	want := []string{"File>Open", "File>-1", "File>Close", "File>-2"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if cmd, _ := m.Lookup("File>Open"); cmd != "open2" {
		t.Errorf("Lookup(File>Open) = %q, want open2", cmd)
	}

	m.Add("", "")
	if n := len(m.Entries()); n != 0 {
		t.Errorf("after clear: %d entries", n)
	}
}

func TestFatJarOrdering(t *testing.T) {
	names := []string{"jython-2.7.jar", "a.jar", "batik.jar", "z.jar", "jruby-9.jar", "batik-util.jar"}
	SortFatJarsLast(names)
	want := []string{"a.jar", "z.jar", "batik-util.jar", "jython-2.7.jar", "batik.jar", "jruby-9.jar"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("SortFatJarsLast = %v, want %v", names, want)
	}
}

func TestDiscoverPluginJars(t *testing.T) {
	one := t.TempDir()
	two := t.TempDir()
	for _, p := range []string{
		filepath.Join(one, "jython.jar"),
		filepath.Join(one, "a.jar"),
		filepath.Join(one, "sub", "b.jar"),
		filepath.Join(one, "notes.txt"),
		filepath.Join(two, "c.jar"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := DiscoverPluginJars([]string{one, filepath.Join(one, "missing"), two})
	if err != nil {
		t.Fatalf("DiscoverPluginJars: %v", err)
	}
	want := []string{
		one,
		filepath.Join(one, "a.jar"),
		filepath.Join(one, "sub", "b.jar"),
		filepath.Join(one, "jython.jar"),
		two,
		filepath.Join(two, "c.jar"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoverPluginJars = %v, want %v", got, want)
	}
}

type panickyHooks struct{ Base }

func (h *panickyHooks) InterceptCloseAllWindows() bool { panic("boom") }
func (h *panickyHooks) AddPluginDirectory(dir string, names []string) []string {
	panic("boom")
}

func TestDispatchPanicFallsBack(t *testing.T) {
	h := &panickyHooks{}
	before := testutil.ToFloat64(hookFailures.WithLabelValues("interceptCloseAllWindows"))

	got, err := Dispatch(h, "interceptCloseAllWindows")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != true {
		t.Errorf("result = %v, want true", got)
	}
	after := testutil.ToFloat64(hookFailures.WithLabelValues("interceptCloseAllWindows"))
	if after != before+1 {
		t.Errorf("failure counter = %v, want %v", after, before+1)
	}

	names := []string{"x.jar"}
	got, _ = Dispatch(h, "addPluginDirectory", "/plugins", names)
	if !reflect.DeepEqual(got, names) {
		t.Errorf("addPluginDirectory fallback = %v, want %v", got, names)
	}
}

func TestDispatchUnknownAndNil(t *testing.T) {
	if _, err := Dispatch(&Base{}, "noSuchHook"); !errors.Is(err, ErrUnknownHook) {
		t.Errorf("err = %v, want ErrUnknownHook", err)
	}
	got, err := Dispatch(nil, "quit")
	if err != nil || got != true {
		t.Errorf("Dispatch(nil, quit) = %v, %v", got, err)
	}
}

func TestDispatchConversions(t *testing.T) {
	slot := NewSlot(NewSite("app.Main", &Config{AppName: "Demo"}, nil))
	slot.Install(&Base{})
	h := slot.Current()

	tests := []struct {
		name string
		args []any
		want any
	}{
		{"getAppName", nil, "Demo"},
		{"getAppVersion", nil, nil},
		{"isLegacyMode", nil, true},
		{"interceptKeyPressed", []any{"k"}, false},
		{"showProgress", []any{int64(1), int64(3)}, nil},
		{"showProgress", []any{0.5}, nil},
		{"addMenuItem", []any{"Help>About", "about"}, nil},
	}
	for _, tt := range tests {
		got, err := Dispatch(h, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.name, tt.args, got, tt.want)
		}
	}
	if got := h.MenuStructure(); len(got) != 1 || got[0].Command != "about" {
		t.Errorf("MenuStructure() = %v", got)
	}
}

type methodError struct{ msg string }

func (e *methodError) Error() string   { return "NoSuchMethodError: " + e.msg }
func (e *methodError) Message() string { return e.msg }

type collectingHooks struct {
	Base
	errs []error
}

func (h *collectingHooks) Error(err error) { h.errs = append(h.errs, err) }

func TestHandleNoSuchMethodError(t *testing.T) {
	rt := &fakeRuntime{classes: map[string][]string{
		"lib.Util": {"/plugins/util-1.jar", "/plugins/util-2.jar"},
	}}
	slot := NewSlot(NewSite("app.Main", nil, rt))
	h := &collectingHooks{}
	slot.Install(h)

	if !h.HandleNoSuchMethodError(&methodError{"lib.Util.frob(int)"}) {
		t.Fatal("HandleNoSuchMethodError returned false")
	}
	if len(h.errs) != 1 {
		t.Fatalf("reported %d errors, want 1", len(h.errs))
	}
	var le *LinkageError
	if !errors.As(h.errs[0], &le) {
		t.Fatalf("reported %T, want *LinkageError", h.errs[0])
	}
	if le.Class != "lib.Util" || !le.MultipleLocations() {
		t.Errorf("LinkageError = %+v", le)
	}
	if !strings.Contains(le.Error(), "multiple locations") {
		t.Errorf("message lacks warning:\n%s", le.Error())
	}

	if h.HandleNoSuchMethodError(&methodError{"lib.Missing.frob()"}) {
		t.Error("unknown class should not be handled")
	}
}

func TestEssentialHooks(t *testing.T) {
	rt := &fakeRuntime{classes: map[string][]string{DefaultInitializer: {"core"}}}
	slot := NewSlot(NewSite("app.Main", nil, rt))
	e := NewEssential()
	slot.Install(e)

	e.Error(errors.New("bad"))
	if !reflect.DeepEqual(rt.statics, []string{"app.Main.handleException"}) {
		t.Errorf("statics = %v", rt.statics)
	}

	e.Initialized()
	// A replacement Essential shares the site, so the initializer stays run.
	e2 := NewEssential()
	slot.Install(e2)
	e2.Initialized()
	if !reflect.DeepEqual(rt.invoked, []string{DefaultInitializer + ".run"}) {
		t.Errorf("invoked = %v", rt.invoked)
	}
}

func TestInitializerDisabledOrMissing(t *testing.T) {
	rt := &fakeRuntime{classes: map[string][]string{}}
	site := NewSite("app.Main", nil, rt)
	RunInitializer(context.Background(), site)

	rt.classes["custom.Init"] = nil
	site.Config.Initializer = "custom.Init"
	site.Config.DisableInitializer = true
	RunInitializer(context.Background(), site)

	if len(rt.invoked) != 0 {
		t.Errorf("invoked = %v, want none", rt.invoked)
	}
}

func TestAutoGenerateConfigFile(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"My_Tool.unit", "helper.unit", "Analyze/Count_Things.unit", "_skip/X_Y.unit"} {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var b Base
	cfg, ok := b.AutoGenerateConfigFile(dir)
	if !ok {
		t.Fatal("AutoGenerateConfigFile returned false")
	}
	want := "Plugins>Analyze, \"Count Things\", Analyze.Count_Things\n" +
		"Plugins, \"My Tool\", My_Tool\n"
	if cfg != want {
		t.Errorf("config =\n%s\nwant\n%s", cfg, want)
	}

	if err := os.WriteFile(filepath.Join(dir, PropsFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.AutoGenerateConfigFile(dir); ok {
		t.Error("a directory with Props.txt should not be generated")
	}
}
