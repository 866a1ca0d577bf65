package unit

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/txtar"
)

// Ext is the file extension of unit source files.
const Ext = ".unit"

// Source is one classpath element that can provide unit source text.
type Source interface {
	// Name describes the source for diagnostics, e.g. a path.
	Name() string
	// Read returns the source text of the named class or ErrNotFound.
	Read(class string) (string, error)
	// Classes lists every class the source provides, sorted.
	Classes() ([]string, error)
}

// ClassPath converts a class name to its relative file path: a.b.C -> a/b/C.unit.
func ClassPath(class string) string {
	return strings.ReplaceAll(class, ".", "/") + Ext
}

// ClassName converts a relative file path back to a class name.
func ClassName(path string) (string, bool) {
	path = filepath.ToSlash(path)
	if !strings.HasSuffix(path, Ext) {
		return "", false
	}
	return strings.ReplaceAll(strings.TrimSuffix(path, Ext), "/", "."), true
}

// ---------------------------------------------------------------------------
// DirSource
// ---------------------------------------------------------------------------

// DirSource reads units from a directory tree of .unit files.
type DirSource struct {
	Root string
}

// NewDirSource returns a source rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Root: dir}
}

func (d *DirSource) Name() string { return d.Root }

func (d *DirSource) Read(class string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(ClassPath(class))))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s in %s", ErrNotFound, class, d.Root)
		}
		return "", err
	}
	return string(data), nil
}

func (d *DirSource) Classes() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		if name, ok := ClassName(rel); ok {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.Root, err)
	}
	sort.Strings(out)
	return out, nil
}

// ---------------------------------------------------------------------------
// TxtarSource
// ---------------------------------------------------------------------------

// TxtarSource serves units from a txtar archive whose file names are
// relative .unit paths.
type TxtarSource struct {
	name  string
	files map[string]string
}

// NewTxtarSource parses a txtar archive held in memory.
func NewTxtarSource(name string, data []byte) *TxtarSource {
	return txtarSource(name, txtar.Parse(data))
}

// OpenTxtar reads a txtar archive from disk.
func OpenTxtar(path string) (*TxtarSource, error) {
	a, err := txtar.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return txtarSource(path, a), nil
}

func txtarSource(name string, a *txtar.Archive) *TxtarSource {
	s := &TxtarSource{name: name, files: make(map[string]string)}
	for _, f := range a.Files {
		if class, ok := ClassName(f.Name); ok {
			s.files[class] = string(f.Data)
		}
	}
	return s
}

func (s *TxtarSource) Name() string { return s.name }

func (s *TxtarSource) Read(class string) (string, error) {
	src, ok := s.files[class]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, class, s.name)
	}
	return src, nil
}

func (s *TxtarSource) Classes() ([]string, error) {
	out := make([]string, 0, len(s.files))
	for name := range s.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// FormatTxtar renders units as a txtar archive, one file per class.
func FormatTxtar(comment string, sources map[string]string) []byte {
	a := &txtar.Archive{Comment: []byte(comment)}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.Files = append(a.Files, txtar.File{Name: ClassPath(name), Data: []byte(sources[name])})
	}
	return txtar.Format(a)
}

// ---------------------------------------------------------------------------
// MemSource
// ---------------------------------------------------------------------------

// MemSource is an in-memory source keyed by class name.
type MemSource struct {
	name  string
	files map[string]string
}

// NewMemSource returns a source serving the given class sources.
func NewMemSource(name string, sources map[string]string) *MemSource {
	files := make(map[string]string, len(sources))
	for k, v := range sources {
		files[k] = v
	}
	return &MemSource{name: name, files: files}
}

func (m *MemSource) Name() string { return m.name }

func (m *MemSource) Read(class string) (string, error) {
	src, ok := m.files[class]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, class, m.name)
	}
	return src, nil
}

func (m *MemSource) Classes() ([]string, error) {
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
