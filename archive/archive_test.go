package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/chazu/retrofit/engine"
	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/legacyapp"
	"github.com/chazu/retrofit/unit"
	"github.com/chazu/retrofit/vm"
)

func build(t *testing.T) []*unit.Loadable {
	t.Helper()
	lds, err := engine.Build(context.Background(), legacyapp.Pool(), legacyapp.Main, engine.DefaultPlan())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return lds
}

func write(t *testing.T, lds []*unit.Loadable, opts Options) *Archive {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, lds, opts); err != nil {
		t.Fatalf("Write: %v", err)
	}
	a, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "test.zip")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPatchedOnly(t *testing.T) {
	lds := build(t)
	a := write(t, lds, Options{Entry: legacyapp.Main})

	var want []string
	for _, ld := range lds {
		want = append(want, ld.Name)
	}
	slices.Sort(want)
	got, _ := a.Classes()
	if !slices.Equal(got, want) {
		t.Errorf("classes = %v, want %v", got, want)
	}
	if !slices.Equal(a.Manifest().Patched(), want) {
		t.Errorf("patched = %v, want %v", a.Manifest().Patched(), want)
	}
	if a.Manifest().Entry != legacyapp.Main {
		t.Errorf("entry = %q", a.Manifest().Entry)
	}
	if _, err := a.Read(legacyapp.Prefs); !errors.Is(err, unit.ErrNotFound) {
		t.Errorf("Read(untouched) = %v, want ErrNotFound", err)
	}
	src, err := a.Read(legacyapp.Main)
	if err != nil {
		t.Fatal(err)
	}
	if src != lds[slices.IndexFunc(lds, func(ld *unit.Loadable) bool { return ld.Name == legacyapp.Main })].Source {
		t.Error("archived source differs from the committed unit")
	}
	if cfg, err := a.Config(); err != nil || cfg != nil {
		t.Errorf("Config = %v, %v; want none", cfg, err)
	}
}

func TestFullArchiveLoadsPrePatched(t *testing.T) {
	pool := legacyapp.Pool()
	cfg := hooks.NewConfig()
	cfg.AppName = "Fiji"
	cfg.EnablePluginDirs = false
	a := write(t, build(t), Options{Entry: legacyapp.Main, Full: true, Pool: pool, Config: cfg})

	names, _ := a.Classes()
	for _, want := range []string{legacyapp.Prefs, legacyapp.Main, engine.HooksUnit, engine.EssentialUnit} {
		if !slices.Contains(names, want) {
			t.Errorf("full archive lacks %s", want)
		}
	}
	for _, u := range a.Manifest().Units {
		if u.Name == legacyapp.Prefs && u.Patched {
			t.Error("untouched unit marked patched")
		}
	}

	stored, err := a.Config()
	if err != nil {
		t.Fatal(err)
	}
	if stored.AppName != "Fiji" || stored.EnablePluginDirs {
		t.Errorf("stored config = %+v", stored)
	}

	var out bytes.Buffer
	l := vm.NewLoader(unit.NewPool(a), legacyapp.Main, vm.WithOutput(&out), vm.WithConfig(stored))
	if !engine.IsAlreadyPatched(l) {
		t.Fatal("archive not recognized as pre-patched")
	}
	ctx := context.Background()
	if err := engine.Apply(ctx, l, engine.DefaultPlan()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := l.Main(ctx, legacyapp.Main); err != nil {
		t.Fatal(err)
	}
	if want := "status: Fiji 1.0 started with 3 plugins\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestFullNeedsPool(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, Options{Full: true}); err == nil {
		t.Fatal("full archive without a pool succeeded")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, build(t), Options{}); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()
	if a.Name() != path {
		t.Errorf("name = %q", a.Name())
	}
	if _, err := a.Read(engine.HooksUnit); err != nil {
		t.Errorf("Read(%s): %v", engine.HooksUnit, err)
	}
}

func TestNotAnArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hello"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	_, err = NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "plain.zip")
	if !errors.Is(err, ErrNotArchive) {
		t.Fatalf("NewReader = %v, want ErrNotArchive", err)
	}
}
