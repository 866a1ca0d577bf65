// Package legacyapp bundles the reference target: a small legacy imaging
// application written in unit source. Its routines are the edit targets of
// the engine's core catalogue, and the environment drives it through the
// entry points named here.
package legacyapp

import (
	_ "embed"

	"github.com/chazu/retrofit/unit"
)

//go:embed app.txtar
var archive []byte

// Origin is the origin reported for the bundled units.
const Origin = "legacyapp"

// Class names of the target.
const (
	Main         = "app.Main"
	Menus        = "app.Menus"
	PluginLoader = "app.PluginLoader"
	Opener       = "app.Opener"
	Macro        = "app.Macro"
	Prefs        = "app.Prefs"
	ImagePlus    = "app.ImagePlus"
	Frame        = "app.Frame"
	ImageWindow  = "app.ImageWindow"
	StackWindow  = "app.StackWindow"
)

// Source returns the bundled units as a source.
func Source() unit.Source {
	return unit.NewTxtarSource(Origin, archive)
}

// Pool returns a pool reading the bundled units, followed by extra sources
// such as plugin directories.
func Pool(extra ...unit.Source) *unit.Pool {
	return unit.NewPool(append([]unit.Source{Source()}, extra...)...)
}

// Archive returns the raw txtar archive of the bundled units.
func Archive() []byte {
	return append([]byte(nil), archive...)
}
