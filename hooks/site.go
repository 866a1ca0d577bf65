package hooks

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Site: per-boundary state shared by every installed hook
// ---------------------------------------------------------------------------

// Site is the state a patched boundary hands to whichever hooks are
// installed. Swapping hooks keeps the Site, so configuration collected
// before a swap (plugin class path, feature flags) survives it.
type Site struct {
	// Entry is the class carrying the hook slot accessor; its static
	// handleException routine receives reported errors.
	Entry   string
	Config  *Config
	Menu    *Menu
	Runtime Runtime

	initOnce sync.Once
}

// NewSite creates a site with an empty menu.
func NewSite(entry string, cfg *Config, rt Runtime) *Site {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Site{Entry: entry, Config: cfg, Menu: &Menu{}, Runtime: rt}
}

// Runtime is the view of the patched boundary that hooks may use to call
// back into the target.
type Runtime interface {
	// InvokeStatic calls a static method of a loaded class.
	InvokeStatic(ctx context.Context, class, method string, args ...any) (any, error)
	// Instantiate creates an object of class via its no-argument constructor.
	Instantiate(ctx context.Context, class string) (any, error)
	// Invoke calls an instance method.
	Invoke(ctx context.Context, recv any, method string, args ...any) (any, error)
	// HasClass reports whether the boundary can load the class.
	HasClass(name string) bool
	// ClassLocations lists every origin providing the class.
	ClassLocations(name string) []string
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config is the explicit, serializable configuration of a boundary's hooks.
// It is mutated only while the environment is being configured, before the
// target starts; afterwards it is read-only.
type Config struct {
	PluginClasspath         []string `cbor:"plugin_classpath,omitempty"`
	PluginDirs              []string `cbor:"plugin_dirs,omitempty"`
	EnablePluginDirs        bool     `cbor:"enable_plugin_dirs"`
	Initializer             string   `cbor:"initializer,omitempty"`
	DisableInitializer      bool     `cbor:"disable_initializer"`
	NoPluginClassLoader     bool     `cbor:"no_plugin_class_loader"`
	SuppressScriptDiscovery bool     `cbor:"suppress_script_discovery"`
	AppName                 string   `cbor:"app_name,omitempty"`
	AppVersion              string   `cbor:"app_version,omitempty"`
	IconURL                 string   `cbor:"icon_url,omitempty"`
}

// DefaultInitializer is the initializer class run after the target starts
// unless configured otherwise.
const DefaultInitializer = "retrofit.plugin.Initializer"

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{EnablePluginDirs: true, Initializer: DefaultInitializer}
}

// AddPluginClasspath appends paths, keeping insertion order and skipping
// duplicates.
func (c *Config) AddPluginClasspath(paths ...string) {
	for _, p := range paths {
		if !slices.Contains(c.PluginClasspath, p) {
			c.PluginClasspath = append(c.PluginClasspath, p)
		}
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.PluginClasspath = slices.Clone(c.PluginClasspath)
	out.PluginDirs = slices.Clone(c.PluginDirs)
	return &out
}

var configEncMode cbor.EncMode

func init() {
	var err error
	configEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("hooks: failed to create CBOR enc mode: " + err.Error())
	}
}

// MarshalConfig encodes a config in canonical CBOR.
func MarshalConfig(c *Config) ([]byte, error) {
	return configEncMode.Marshal(c)
}

// UnmarshalConfig decodes a config written by MarshalConfig.
func UnmarshalConfig(data []byte) (*Config, error) {
	var c Config
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---------------------------------------------------------------------------
// Menu
// ---------------------------------------------------------------------------

// MenuEntry is one command in the target's menu structure.
type MenuEntry struct {
	Path    string
	Command string
}

// Menu records the target's menu structure in insertion order. Separator
// paths ending in ">-" are numbered (">-1", ">-2", ...) so each stays
// distinct.
type Menu struct {
	mu      sync.Mutex
	entries []MenuEntry
	index   map[string]int
}

// Add records a menu item. An empty path clears the structure, which the
// target does when it rebuilds its menus.
func (m *Menu) Add(path, command string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if path == "" {
		m.entries = nil
		m.index = nil
		return
	}
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if strings.HasSuffix(path, ">-") {
		i := 1
		for {
			if _, ok := m.index[path+strconv.Itoa(i)]; !ok {
				break
			}
			i++
		}
		path += strconv.Itoa(i)
	}
	if i, ok := m.index[path]; ok {
		m.entries[i].Command = command
		return
	}
	m.index[path] = len(m.entries)
	m.entries = append(m.entries, MenuEntry{Path: path, Command: command})
}

// Entries returns a copy of the menu structure in insertion order.
func (m *Menu) Entries() []MenuEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MenuEntry(nil), m.entries...)
}

// Lookup returns the command registered at path.
func (m *Menu) Lookup(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[path]
	if !ok {
		return "", false
	}
	return m.entries[i].Command, true
}
