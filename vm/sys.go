package vm

import (
	_ "embed"

	"github.com/chazu/retrofit/unit"
)

// The built-in sys classes. Every loader reads sys.* names from these
// instead of its pool.
//
//go:embed sys.txtar
var sysArchive []byte

// SysOrigin is the origin reported for built-in classes.
const SysOrigin = "sys"

func sysSource() unit.Source {
	return unit.NewTxtarSource(SysOrigin, sysArchive)
}
