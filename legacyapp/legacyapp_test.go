package legacyapp

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/chazu/retrofit/unit"
	"github.com/chazu/retrofit/vm"
)

func TestUnitsParse(t *testing.T) {
	src := Source()
	names, err := src.Classes()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{Frame, ImagePlus, ImageWindow, Macro, Main, Menus, Opener, PluginLoader, Prefs, StackWindow}
	slices.Sort(names)
	if !slices.Equal(names, want) {
		t.Fatalf("classes = %v, want %v", names, want)
	}
	for _, name := range names {
		text, err := src.Read(name)
		if err != nil {
			t.Fatal(err)
		}
		u, err := unit.Parse(text, Origin)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if u.Name() != name {
			t.Errorf("unit at %s declares %s", name, u.Name())
		}
	}
}

func newLoader(t *testing.T) (*vm.Loader, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return vm.NewLoader(Pool(), Main, vm.WithOutput(&out)), &out
}

func TestRunsUnpatched(t *testing.T) {
	l, out := newLoader(t)
	if err := l.Main(context.Background(), Main); err != nil {
		t.Fatalf("Main: %v", err)
	}
	want := "checking for updates\nstatus: LegacyApp 1.0 started with 3 plugins\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestUnpatchedBehavior(t *testing.T) {
	l, _ := newLoader(t)
	ctx := context.Background()

	if got, err := l.InvokeStatic(ctx, Macro, "run", "x", nil); err != nil || got != "ran x" {
		t.Errorf("Macro.run = %v, %v", got, err)
	}
	l.InvokeStatic(ctx, Macro, "setOptions", "size=3")
	if got, _ := l.InvokeStatic(ctx, Macro, "getOptions"); got != nil {
		t.Errorf("options outside a run frame = %v, want null", got)
	}

	image, err := l.InvokeStatic(ctx, "app.Opener", "open", "a.tif")
	if err == nil {
		t.Fatalf("static call of an instance method succeeded: %v", image)
	}
	opener, err := l.Instantiate(ctx, Opener)
	if err != nil {
		t.Fatal(err)
	}
	image, err = l.Invoke(ctx, opener, "open", "a.tif")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := l.Invoke(ctx, image, "isVisible"); got != true {
		t.Errorf("opened image visible = %v", got)
	}

	win, err := l.Instantiate(ctx, ImageWindow)
	if err == nil {
		t.Fatalf("ImageWindow has no no-arg constructor, got %v", win)
	}
	obj, err := l.InvokeStatic(ctx, Macro, "run", "fail", nil)
	var exc *vm.Exception
	if !errors.As(err, &exc) || exc.Message() != "macro failed" {
		t.Errorf("Macro.run(fail) = %v, %v", obj, err)
	}
}

func TestRunDispatchesCommands(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"Quit", "disposed\n"},
		{"File>Quit", "disposed\n"},
		{"Open...", ""},
		{"Nope", "Unrecognized command: Nope\n"},
		{"app.Missing", "Unrecognized command: app.Missing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			l, out := newLoader(t)
			if _, err := l.InvokeStatic(context.Background(), Main, "run", tt.command, "a.tif"); err != nil {
				t.Fatalf("run(%q): %v", tt.command, err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestMacroArgument(t *testing.T) {
	l, _ := newLoader(t)
	ctx := context.Background()
	got, err := l.InvokeStatic(ctx, Macro, "run", "blur", "a.tif")
	if err != nil || got != "ran blur on a.tif" {
		t.Errorf("Macro.run(blur, a.tif) = %v, %v", got, err)
	}
	if arg, _ := l.InvokeStatic(ctx, Macro, "getArgument"); arg != "a.tif" {
		t.Errorf("getArgument() = %v, want a.tif", arg)
	}
}
