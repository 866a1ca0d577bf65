package env

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/legacyapp"
	"github.com/chazu/retrofit/patch"
	"github.com/chazu/retrofit/unit"
	"github.com/chazu/retrofit/vm"
)

const helloSrc = `class demo.Hello {
	Object run(String arg) {
		return "hello " + arg;
	}
}
`

func newEnv(t *testing.T, opts ...Option) (*Environment, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	plugins := unit.NewMemSource("plugins", map[string]string{"demo.Hello": helloSrc})
	l := vm.NewLoader(legacyapp.Pool(plugins), legacyapp.Main, vm.WithOutput(&out))
	e := New(l, opts...)
	if err := e.DisablePluginDirs(); err != nil {
		t.Fatal(err)
	}
	return e, &out
}

type pluginHooks struct {
	hooks.Essential
}

func (h *pluginHooks) InterceptRunPlugIn(className, arg string) any {
	if className == "demo.Intercepted" {
		return "intercepted " + arg
	}
	return nil
}

func TestConfigureAfterInit(t *testing.T) {
	e, _ := newEnv(t)
	ctx := context.Background()
	if err := e.AddPluginClasspath("a.jar"); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyPatches(ctx); err != nil {
		t.Fatalf("ApplyPatches: %v", err)
	}

	calls := map[string]func() error{
		"AddPluginClasspath":      func() error { return e.AddPluginClasspath("b.jar") },
		"DisablePluginDirs":       e.DisablePluginDirs,
		"DisableInitializer":      e.DisableInitializer,
		"NoPluginClassLoader":     e.NoPluginClassLoader,
		"SuppressScriptDiscovery": e.SuppressScriptDiscovery,
		"Before":                  func() error { return e.Before() },
		"After":                   func() error { return e.After() },
		"ApplyPatches":            func() error { return e.ApplyPatches(ctx) },
	}
	for name, call := range calls {
		err := call()
		var aie *AlreadyInitializedError
		if !errors.As(err, &aie) {
			t.Errorf("%s after init = %v, want AlreadyInitializedError", name, err)
			continue
		}
		if aie.Op != name {
			t.Errorf("%s: error names %q", name, aie.Op)
		}
		if !strings.Contains(aie.Stack, "TestConfigureAfterInit") {
			t.Errorf("%s: stack does not show where initialization happened:\n%s", name, aie.Stack)
		}
		if !errors.Is(err, ErrAlreadyInitialized) {
			t.Errorf("%s: errors.Is(ErrAlreadyInitialized) = false", name)
		}
	}
	if got := e.Config().PluginClasspath; !slices.Equal(got, []string{"a.jar"}) {
		t.Errorf("plugin class path = %v", got)
	}
}

func TestFirstInvocationInitializes(t *testing.T) {
	e, out := newEnv(t)
	ctx := context.Background()
	if IsAlreadyPatched(e.loader) {
		t.Fatal("patched before first use")
	}
	if err := e.Main(ctx); err != nil {
		t.Fatalf("Main: %v", err)
	}
	if !IsAlreadyPatched(e.loader) {
		t.Fatal("not patched after first use")
	}
	if !e.IsInitialized(ctx) {
		t.Error("target not initialized after main")
	}
	if want := "status: LegacyApp 1.0 started with 3 plugins\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if err := e.DisableInitializer(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("DisableInitializer after Main = %v", err)
	}
}

func TestSecondEnvironmentOnPatchedBoundary(t *testing.T) {
	e, _ := newEnv(t)
	if err := e.ApplyPatches(context.Background()); err != nil {
		t.Fatal(err)
	}
	other := New(e.loader)
	err := other.AddPluginClasspath("x.jar")
	var aie *AlreadyInitializedError
	if !errors.As(err, &aie) {
		t.Fatalf("configure on a patched boundary = %v", err)
	}
	if !strings.Contains(aie.Stack, "TestSecondEnvironmentOnPatchedBoundary") {
		t.Errorf("second environment does not see where the boundary was initialized:\n%s", aie.Stack)
	}
	if _, err := other.RunMacro(context.Background(), "Echo", "echo", ""); err != nil {
		t.Errorf("RunMacro through second environment: %v", err)
	}
}

func TestMenuStructure(t *testing.T) {
	e, _ := newEnv(t)
	if err := e.Main(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []hooks.MenuEntry{
		{Path: "File>Open...", Command: "app.Opener"},
		{Path: "File>-1", Command: ""},
		{Path: "File>Quit", Command: "app.Main.quit"},
		{Path: "Help>About", Command: "app.About"},
	}
	got, err := e.MenuStructure(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want) {
		t.Errorf("menu = %v, want %v", got, want)
	}
}

func TestMenuStructureInitializes(t *testing.T) {
	e, _ := newEnv(t)
	got, err := e.MenuStructure(context.Background())
	if err != nil {
		t.Fatalf("MenuStructure: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("menu before main = %v", got)
	}
	if !IsAlreadyPatched(e.loader) {
		t.Error("MenuStructure did not initialize the environment")
	}
	if err := e.DisableInitializer(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("DisableInitializer after MenuStructure = %v", err)
	}
}

func TestLoaderInitializes(t *testing.T) {
	e, _ := newEnv(t)
	l, err := e.Loader(context.Background())
	if err != nil {
		t.Fatalf("Loader: %v", err)
	}
	if l != e.loader {
		t.Error("Loader returned a different boundary")
	}
	if !IsAlreadyPatched(l) {
		t.Error("Loader did not initialize the environment")
	}
}

func TestRunMacroFraming(t *testing.T) {
	e, _ := newEnv(t)
	th := vm.NewThread("worker", nil)
	ctx := vm.WithThread(context.Background(), th)

	if err := e.SetMacroOptions(ctx, "radius=2"); err != nil {
		t.Fatal(err)
	}
	got, err := e.RunMacro(ctx, "Blur", "blur", "a.tif")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ran blur with radius=2 on a.tif" {
		t.Errorf("RunMacro = %q", got)
	}
	if th.Name() != "worker" || th.ContextLoader() != nil {
		t.Errorf("frame not restored: %q, %v", th.Name(), th.ContextLoader())
	}

	// Outside a frame the target sees no options.
	opts, err := e.loader.InvokeStatic(ctx, legacyapp.Macro, "getOptions")
	if err != nil || opts != nil {
		t.Errorf("options outside a frame = %v, %v", opts, err)
	}
}

func TestNestedFrames(t *testing.T) {
	e, _ := newEnv(t)
	th := vm.NewThread("worker", nil)
	ctx := vm.WithThread(context.Background(), th)

	var inner, after string
	_, err := e.Run(ctx, "outer", func(ctx context.Context) (any, error) {
		_, err := e.Run(ctx, "inner", func(context.Context) (any, error) {
			inner = th.Name()
			return nil, nil
		})
		after = th.Name()
		return nil, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if inner != "Run$_inner" || after != "Run$_outer" {
		t.Errorf("inner = %q, after = %q", inner, after)
	}
	if th.Name() != "worker" {
		t.Errorf("thread name = %q after framing", th.Name())
	}
}

func TestRunMacroFailure(t *testing.T) {
	e, out := newEnv(t)
	got, err := e.RunMacro(context.Background(), "Fail", "fail", "")
	if err != nil || got != "" {
		t.Fatalf("RunMacro(fail) = %q, %v", got, err)
	}
	if out.String() != "Exception: macro failed\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		command string
		options string
		want    string
	}{
		{"Quit", "", "disposed\n"},
		{"File>Quit", "", "disposed\n"},
		{"Nope", "", "Unrecognized command: Nope\n"},
		{"demo.Hello", "world", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			e, out := newEnv(t)
			if err := e.RunCommand(context.Background(), tt.command, tt.options); err != nil {
				t.Fatalf("RunCommand(%q): %v", tt.command, err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
			if !IsAlreadyPatched(e.loader) {
				t.Error("RunCommand did not initialize the environment")
			}
		})
	}
}

func TestRunCommandOptions(t *testing.T) {
	e, _ := newEnv(t)
	ctx := context.Background()
	h := &commandHooks{}
	if err := e.ApplyPatches(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.InstallHooks(h); err != nil {
		t.Fatal(err)
	}
	if err := e.RunCommand(ctx, "demo.Hello", "radius=2"); err != nil {
		t.Fatal(err)
	}
	if err := e.RunCommand(ctx, "Open...", "a.tif"); err != nil {
		t.Fatal(err)
	}
	want := []string{"demo.Hello radius=2", "app.Opener a.tif"}
	if !slices.Equal(h.calls, want) {
		t.Errorf("plugin calls = %v, want %v", h.calls, want)
	}
}

// commandHooks records plugin runs and lets them proceed.
type commandHooks struct {
	hooks.Essential
	calls []string
}

func (h *commandHooks) InterceptRunPlugIn(className, arg string) any {
	h.calls = append(h.calls, className+" "+arg)
	return nil
}

func TestRunPlugIn(t *testing.T) {
	e, out := newEnv(t)
	ctx := context.Background()

	got, err := e.RunPlugIn(ctx, "demo.Hello", "world")
	if err != nil || got != "hello world" {
		t.Errorf("RunPlugIn(demo.Hello) = %v, %v", got, err)
	}

	got, err = e.RunPlugIn(ctx, "demo.Missing", "x")
	if err != nil || got != nil {
		t.Errorf("RunPlugIn(demo.Missing) = %v, %v", got, err)
	}
	if !strings.Contains(out.String(), "Plugin not found: demo.Missing") {
		t.Errorf("output = %q", out.String())
	}

	if _, err := e.InstallHooks(&pluginHooks{}); err != nil {
		t.Fatal(err)
	}
	got, err = e.RunPlugIn(ctx, "demo.Intercepted", "x")
	if err != nil || got != "intercepted x" {
		t.Errorf("intercepted RunPlugIn = %v, %v", got, err)
	}
}

func TestInstallHooks(t *testing.T) {
	e, _ := newEnv(t)
	ctx := context.Background()
	for _, p := range []string{"a.jar", "b.jar", "c.jar"} {
		if err := e.AddPluginClasspath(p); err != nil {
			t.Fatal(err)
		}
	}

	h1, h2 := &pluginHooks{}, &pluginHooks{}
	if _, err := InstallHooks(e.loader, h1); !errors.Is(err, hooks.ErrNotPatched) {
		t.Fatalf("InstallHooks before patching = %v", err)
	}
	if err := e.ApplyPatches(ctx); err != nil {
		t.Fatal(err)
	}
	prev, err := InstallHooks(e.loader, h1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := prev.(*hooks.Essential); !ok {
		t.Errorf("previous hooks = %T, want *hooks.Essential", prev)
	}
	prev, err = e.InstallHooks(h2)
	if err != nil {
		t.Fatal(err)
	}
	if prev != h1 {
		t.Errorf("previous hooks = %p, want %p", prev, h1)
	}

	prev, err = e.InstallHooks(nil)
	if err != nil {
		t.Fatalf("InstallHooks(nil): %v", err)
	}
	if prev != h2 {
		t.Errorf("previous hooks = %p, want %p", prev, h2)
	}
	if _, ok := e.Hooks().(*hooks.Essential); !ok {
		t.Errorf("hooks after nil install = %T, want *hooks.Essential", e.Hooks())
	}
	if _, err := InstallHooks(e.loader, h2); err != nil {
		t.Fatal(err)
	}
	if e.Hooks() != h2 {
		t.Error("current hooks are not the last installed")
	}
	if got := h2.HandleExtraPluginJars(); !slices.Equal(got, []string{"a.jar", "b.jar", "c.jar"}) {
		t.Errorf("configuration after swap = %v", got)
	}
}

func TestPluginClasspath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, unit.ClassPath("demo.Extra"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("class demo.Extra {\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name            string
		noPluginLoader  bool
		patchedLoader   bool
		loadedAfterInit bool
	}{
		{"plugin class loader", false, true, false},
		{"boundary class path", true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEnv(t)
			ctx := context.Background()
			if err := e.AddPluginClasspath(dir); err != nil {
				t.Fatal(err)
			}
			if tt.noPluginLoader {
				if err := e.NoPluginClassLoader(); err != nil {
					t.Fatal(err)
				}
			}
			if err := e.ApplyPatches(ctx); err != nil {
				t.Fatal(err)
			}
			if got := e.loader.HasClass("demo.Extra"); got != tt.loadedAfterInit {
				t.Errorf("demo.Extra visible after init = %v, want %v", got, tt.loadedAfterInit)
			}

			c, err := e.loader.Class(legacyapp.PluginLoader)
			if err != nil {
				t.Fatal(err)
			}
			src := unit.New(c.Decl, "").Source()
			if got := strings.Contains(src, "newPluginClassLoader"); got != tt.patchedLoader {
				t.Errorf("plugin loader constructor patched = %v, want %v", got, tt.patchedLoader)
			}

			if err := e.Main(ctx); err != nil {
				t.Fatal(err)
			}
			if !e.loader.HasClass("demo.Extra") {
				t.Error("demo.Extra not visible after main")
			}
		})
	}
}

func TestHeadless(t *testing.T) {
	e, _ := newEnv(t, WithHeadless())
	if err := e.After(patch.StubOut{Locator: patch.Locator{Class: legacyapp.Main}, Members: []string{"void dispose()"}}); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyPatches(context.Background()); err != nil {
		t.Fatal(err)
	}
	c, err := e.loader.Class(legacyapp.ImageWindow)
	if err != nil {
		t.Fatal(err)
	}
	if c.Decl.Super != "" {
		t.Errorf("ImageWindow superclass = %q", c.Decl.Super)
	}
}

func TestFailedPatchIsFatal(t *testing.T) {
	e, _ := newEnv(t)
	missing := patch.InsertAtTop{Locator: patch.Locator{Class: legacyapp.Main, Member: "void nope()"}, Body: "log(\"x\");"}
	if err := e.Before(missing); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := e.ApplyPatches(ctx); !errors.Is(err, patch.ErrTargetNotFound) {
		t.Fatalf("ApplyPatches = %v, want ErrTargetNotFound", err)
	}
	if _, err := e.RunMacro(ctx, "Echo", "echo", ""); err == nil {
		t.Error("entry point ran on a failed boundary")
	}
}
