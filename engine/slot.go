package engine

import (
	"fmt"

	"github.com/chazu/retrofit/lang"
	"github.com/chazu/retrofit/patch"
	"github.com/chazu/retrofit/unit"
)

// MarkerField is the static field added to the entry class when the hook
// slot is installed. Its presence marks a unit as patched.
const MarkerField = "_hooks"

// Units created by the slot phase.
const (
	HooksUnit     = "retrofit.Hooks"
	EssentialUnit = "retrofit.EssentialHooks"
)

// hookOrigin is the origin reported for units the engine creates.
const hookOrigin = "retrofit"

var hookUnits = []struct {
	name string
	src  string
}{
	{HooksUnit, `class retrofit.Hooks {
	static Object current() native "hooks.slot";
}`},
	{EssentialUnit, `class retrofit.EssentialHooks {
	static void install() native "hooks.installEssential";
}`},
}

func isHookUnit(name string) bool {
	for _, h := range hookUnits {
		if h.name == name {
			return true
		}
	}
	return false
}

// slotOps returns the operations installing the hook slot into entry: the
// marker field and the accessor patched call sites go through.
func slotOps(entry string) []patch.Op {
	loc := patch.Locator{Class: entry}
	return []patch.Op{
		patch.AddField{Locator: loc, Type: "Object", Name: MarkerField, Static: true},
		patch.AddMethod{Locator: loc, Decl: fmt.Sprintf("static Object %s() native \"hooks.slot\";", MarkerField)},
	}
}

// createHookUnits adds the hook units unless the pool already provides
// them, as a pre-patched archive does.
func createHookUnits(s *unit.Session) error {
	for _, h := range hookUnits {
		if s.Touched(h.name) || s.Pool().Has(h.name) {
			continue
		}
		decl, err := lang.ParseClass(h.src)
		if err != nil {
			return fmt.Errorf("hook unit %s: %w", h.name, err)
		}
		if _, err := s.Create(decl, hookOrigin); err != nil {
			return err
		}
		log.Debugf("created %s", h.name)
	}
	return nil
}
