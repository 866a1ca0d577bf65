package hooks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Base implements every extension point with the target's default
// behavior. Embed it to override a subset:
//
//	type myHooks struct{ hooks.Base }
//
//	func (h *myHooks) ShowStatus(s string) { ... }
type Base struct {
	site *Site
	self Hooks
}

var _ Hooks = (*Base)(nil)

func (b *Base) bind(site *Site, self Hooks) {
	b.site = site
	b.self = self
}

// Site returns the site of the boundary the hooks are installed in, or nil
// before installation.
func (b *Base) Site() *Site { return b.site }

// hooks returns the outermost implementation, so defaults that call other
// extension points reach overrides.
func (b *Base) hooks() Hooks {
	if b.self != nil {
		return b.self
	}
	return b
}

func (b *Base) config() *Config {
	if b.site == nil || b.site.Config == nil {
		return NewConfig()
	}
	return b.site.Config
}

// Lifecycle

func (b *Base) Installed()      {}
func (b *Base) Dispose()        {}
func (b *Base) Initialized()    {}
func (b *Base) Disposing() bool { return true }
func (b *Base) Quit() bool      { return true }

// Status reporting

func (b *Base) ShowProgress(progress float64)        {}
func (b *Base) ShowProgressCount(current, final int) {}
func (b *Base) ShowStatus(status string)             {}
func (b *Base) Log(message string)                   {}
func (b *Base) RegisterImage(image any)              {}
func (b *Base) UnregisterImage(image any)            {}

func (b *Base) Debug(message string) {
	log.Debug(message)
}

func (b *Base) Error(err error) {
	log.Errorf("%s", err)
}

// Interception

func (b *Base) InterceptRunPlugIn(className, arg string) any       { return nil }
func (b *Base) OpenInEditor(path string) bool                      { return false }
func (b *Base) CreateInEditor(fileName, content string) bool       { return false }
func (b *Base) InterceptFileOpen(path string) any                  { return nil }
func (b *Base) InterceptOpenImage(path string, planeIndex int) any { return nil }
func (b *Base) InterceptOpenRecent(path string) any                { return nil }
func (b *Base) InterceptDragAndDropFile(path string) any           { return nil }
func (b *Base) InterceptKeyPressed(key string) bool                { return false }
func (b *Base) InterceptCloseAllWindows() bool                     { return true }
func (b *Base) InterceptImageWindowClose(window any)               {}
func (b *Base) NewPluginClassLoader(loader any)                    {}
func (b *Base) RunAfterRefreshMenus()                              {}

// AddPluginDirectory moves known fat archives to the end of the load order.
func (b *Base) AddPluginDirectory(dir string, names []string) []string {
	SortFatJarsLast(names)
	return names
}

// HandleExtraPluginJars returns the configured plugin class path followed,
// unless plugin directories are disabled, by every plugin directory and the
// .jar files found beneath it.
func (b *Base) HandleExtraPluginJars() []string {
	cfg := b.config()
	result := append([]string(nil), cfg.PluginClasspath...)
	if !cfg.EnablePluginDirs {
		return result
	}
	dirs := cfg.PluginDirs
	if len(dirs) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return result
		}
		dirs = []string{filepath.Join(home, ".plugins")}
	}
	jars, err := DiscoverPluginJars(dirs)
	if err != nil {
		log.Warningf("plugin directory discovery: %s", err)
	}
	return append(result, jars...)
}

// PropsFile marks an unpacked target distribution, whose own plugin
// configuration is authoritative.
const PropsFile = "Props.txt"

// AutoGenerateConfigFile derives plugin menu entries from the unit files in
// dir. Files whose names contain an underscore become commands; directories
// become submenus of "Plugins". Nothing is generated when script discovery
// is suppressed.
func (b *Base) AutoGenerateConfigFile(dir string) (string, bool) {
	if b.config().SuppressScriptDiscovery {
		return "", false
	}
	if _, err := os.Stat(filepath.Join(dir, PropsFile)); err == nil {
		return "", false
	}
	var sb strings.Builder
	autoGenerate(&sb, dir, dir, "Plugins", "")
	return sb.String(), true
}

func autoGenerate(sb *strings.Builder, top, dir, menuPath, pkg string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "_") {
			continue
		}
		if e.IsDir() {
			autoGenerate(sb, top, filepath.Join(dir, name),
				menuPath+">"+strings.ReplaceAll(name, "_", " "), pkg+name+".")
			continue
		}
		base, ok := strings.CutSuffix(name, ".unit")
		if !ok || !strings.Contains(base, "_") || strings.Contains(base, "$") {
			continue
		}
		if top == dir && unicode.IsLower([]rune(base)[0]) {
			continue
		}
		fmt.Fprintf(sb, "%s, %q, %s\n", menuPath, strings.ReplaceAll(base, "_", " "), pkg+base)
	}
}

// AddMenuItem records the item in the site's menu structure.
func (b *Base) AddMenuItem(menuPath, command string) {
	if b.site == nil {
		return
	}
	b.site.Menu.Add(menuPath, command)
}

// HandleNoSuchMethodError reports which class path elements provide the
// class whose method could not be found. It returns false when the class
// cannot be located, leaving the target to report the error itself.
func (b *Base) HandleNoSuchMethodError(err error) bool {
	if b.site == nil || b.site.Runtime == nil || err == nil {
		return false
	}
	msg := err.Error()
	var m interface{ Message() string }
	if errors.As(err, &m) {
		msg = m.Message()
	}
	paren := strings.IndexByte(msg, '(')
	if paren < 0 {
		return false
	}
	dot := strings.LastIndexByte(msg[:paren], '.')
	if dot < 0 {
		return false
	}
	class := msg[:dot]
	locations := b.site.Runtime.ClassLocations(class)
	if len(locations) == 0 {
		return false
	}
	b.hooks().Error(&LinkageError{Method: msg, Class: class, Locations: locations, Err: err})
	return true
}

// Queries

func (b *Base) IsLegacyMode() bool        { return true }
func (b *Base) Context() any              { return nil }
func (b *Base) AppName() string           { return b.config().AppName }
func (b *Base) AppVersion() string        { return b.config().AppVersion }
func (b *Base) IconURL() string           { return b.config().IconURL }
func (b *Base) ThreadAncestors() []string { return nil }

func (b *Base) MenuStructure() []MenuEntry {
	if b.site == nil {
		return nil
	}
	return b.site.Menu.Entries()
}

// ---------------------------------------------------------------------------
// LinkageError
// ---------------------------------------------------------------------------

// LinkageError explains a missing method by listing where its class was
// loaded from. More than one location usually means a stale copy shadows
// the intended one.
type LinkageError struct {
	Method    string
	Class     string
	Locations []string
	Err       error
}

func (e *LinkageError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "could not find method %s\n", e.Method)
	fmt.Fprintf(&sb, "There was a problem with the class %s which can be found here:\n", e.Class)
	for _, loc := range e.Locations {
		sb.WriteString(loc)
		sb.WriteByte('\n')
	}
	if e.MultipleLocations() {
		sb.WriteString("\nWARNING: multiple locations found!\n")
	}
	return sb.String()
}

func (e *LinkageError) Unwrap() error { return e.Err }

// MultipleLocations reports whether the class was found more than once.
func (e *LinkageError) MultipleLocations() bool { return len(e.Locations) > 1 }
