// Package manifest handles retrofit.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/retrofit/archive"
	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/legacyapp"
	"github.com/chazu/retrofit/unit"
)

// FileName is the name of the manifest file.
const FileName = "retrofit.toml"

// Manifest represents a retrofit.toml configuration.
type Manifest struct {
	Target   Target        `toml:"target"`
	Plugins  Plugins       `toml:"plugins"`
	Features Features      `toml:"features"`
	App      App           `toml:"app"`
	Archive  ArchiveConfig `toml:"archive"`

	// Dir is the directory containing the retrofit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Target locates the code to patch.
type Target struct {
	// Sources are unit directories, .txtar files, archives (.zip) and unit
	// databases (.db), searched in order. Empty means the bundled target.
	Sources []string `toml:"sources"`
	Entry   string   `toml:"entry"`
	Macro   string   `toml:"macro"`
}

// Plugins configures plugin discovery.
type Plugins struct {
	Classpath   []string `toml:"classpath"`
	Dirs        []string `toml:"dirs"`
	Initializer string   `toml:"initializer"`
}

// Features toggles default behavior.
type Features struct {
	DisablePluginDirs       bool `toml:"disable-plugin-dirs"`
	DisableInitializer      bool `toml:"disable-initializer"`
	NoPluginClassLoader     bool `toml:"no-plugin-class-loader"`
	SuppressScriptDiscovery bool `toml:"suppress-script-discovery"`
	Headless                bool `toml:"headless"`
}

// App overrides the target's branding.
type App struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Icon    string `toml:"icon"`
}

// ArchiveConfig configures archive output.
type ArchiveConfig struct {
	Output string `toml:"output"`
	Full   bool   `toml:"full"`
}

// Load parses a retrofit.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// Default returns the manifest used when no retrofit.toml exists: the
// bundled target with default features, rooted at dir.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	m := &Manifest{Dir: abs}
	m.applyDefaults()
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Target.Entry == "" {
		m.Target.Entry = legacyapp.Main
	}
	if m.Target.Macro == "" {
		m.Target.Macro = legacyapp.Macro
	}
	if m.Plugins.Initializer == "" {
		m.Plugins.Initializer = hooks.DefaultInitializer
	}
	if m.Archive.Output == "" {
		m.Archive.Output = "retrofit.zip"
	}
}

// FindAndLoad walks up from startDir to find a retrofit.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Config returns the hook configuration the manifest describes.
func (m *Manifest) Config() *hooks.Config {
	cfg := hooks.NewConfig()
	cfg.AddPluginClasspath(m.resolve(m.Plugins.Classpath)...)
	cfg.PluginDirs = m.resolve(m.Plugins.Dirs)
	cfg.EnablePluginDirs = !m.Features.DisablePluginDirs
	cfg.Initializer = m.Plugins.Initializer
	cfg.DisableInitializer = m.Features.DisableInitializer
	cfg.NoPluginClassLoader = m.Features.NoPluginClassLoader
	cfg.SuppressScriptDiscovery = m.Features.SuppressScriptDiscovery
	cfg.AppName = m.App.Name
	cfg.AppVersion = m.App.Version
	cfg.IconURL = m.App.Icon
	return cfg
}

// SourcePaths returns absolute paths for the configured target sources.
func (m *Manifest) SourcePaths() []string {
	return m.resolve(m.Target.Sources)
}

// ArchivePath returns the absolute path of the archive output.
func (m *Manifest) ArchivePath() string {
	if filepath.IsAbs(m.Archive.Output) {
		return m.Archive.Output
	}
	return filepath.Join(m.Dir, m.Archive.Output)
}

func (m *Manifest) resolve(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(m.Dir, p)
		}
		out = append(out, p)
	}
	return out
}

// OpenPool opens the target sources as a pool. The returned function
// releases the sources that hold files open.
func (m *Manifest) OpenPool() (*unit.Pool, func() error, error) {
	paths := m.SourcePaths()
	if len(paths) == 0 {
		return legacyapp.Pool(), func() error { return nil }, nil
	}
	var sources []unit.Source
	var closers []io.Closer
	release := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}
	for _, p := range paths {
		src, err := openSource(p)
		if err != nil {
			release()
			return nil, nil, err
		}
		if c, ok := src.(io.Closer); ok {
			closers = append(closers, c)
		}
		sources = append(sources, src)
	}
	return unit.NewPool(sources...), release, nil
}

func openSource(path string) (unit.Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txtar":
		return unit.OpenTxtar(path)
	case ".zip":
		return archive.Open(path)
	case ".db", ".sqlite":
		return unit.OpenSQLite(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a unit directory, .txtar, .zip or .db file", path)
	}
	return unit.NewDirSource(path), nil
}
