// Package hooks implements the hook protocol: the table of extension points
// that patched target code consults at runtime, a default implementation of
// every point, the essential hooks installed after patching, and the
// per-boundary slot through which hooks are swapped.
//
// Implementations embed Base (or Essential) and override what they need.
// Everything a hook reads about its boundary lives in the Site, which
// survives swaps.
package hooks

import (
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("retrofit.hooks")

// Hooks is the set of extension points available to patched code.
//
// Interception points return a "proceed" value (nil, false or true, as
// documented per method) when the target should continue with its own
// behavior.
type Hooks interface {
	// Lifecycle

	// Installed runs when the hooks are placed into a boundary's slot.
	Installed()
	// Dispose runs when the hooks are replaced or the target quits.
	Dispose()
	// Initialized runs once the target has started.
	Initialized()
	// Disposing is a last chance to veto quitting; true proceeds.
	Disposing() bool
	// Quit intercepts the target's quit routine; true proceeds.
	Quit() bool

	// Status reporting

	ShowProgress(progress float64)
	ShowProgressCount(current, final int)
	ShowStatus(status string)
	Log(message string)
	Debug(message string)
	Error(err error)
	RegisterImage(image any)
	UnregisterImage(image any)

	// Interception

	// InterceptRunPlugIn returns the plugin result, or nil to proceed.
	InterceptRunPlugIn(className, arg string) any
	// OpenInEditor returns true when the hook opened its own editor.
	OpenInEditor(path string) bool
	// CreateInEditor returns true when the hook opened its own editor.
	CreateInEditor(fileName, content string) bool
	InterceptFileOpen(path string) any
	InterceptOpenImage(path string, planeIndex int) any
	InterceptOpenRecent(path string) any
	InterceptDragAndDropFile(path string) any
	// InterceptKeyPressed returns true when the key was consumed.
	InterceptKeyPressed(key string) bool
	// InterceptCloseAllWindows returns whether quitting may go on.
	InterceptCloseAllWindows() bool
	InterceptImageWindowClose(window any)
	// HandleNoSuchMethodError returns true when the error was reported.
	HandleNoSuchMethodError(err error) bool
	NewPluginClassLoader(loader any)
	// AddPluginDirectory returns the jar names of dir in load order.
	AddPluginDirectory(dir string, names []string) []string
	// HandleExtraPluginJars returns extra plugin class path elements.
	HandleExtraPluginJars() []string
	// AutoGenerateConfigFile returns generated plugin configuration for a
	// directory, or false to let the target read its own.
	AutoGenerateConfigFile(dir string) (string, bool)
	RunAfterRefreshMenus()
	// AddMenuItem records a menu entry; an empty path clears the menu.
	AddMenuItem(menuPath, command string)

	// Queries

	IsLegacyMode() bool
	Context() any
	AppName() string
	AppVersion() string
	IconURL() string
	MenuStructure() []MenuEntry
	ThreadAncestors() []string
}

// siteBinder is satisfied by every type embedding Base.
type siteBinder interface {
	bind(site *Site, self Hooks)
}

// Migrator is implemented by hooks that keep private state worth carrying
// over when they are replaced.
type Migrator interface {
	// Migrate receives the hooks being replaced, before they are disposed.
	Migrate(previous Hooks)
}
