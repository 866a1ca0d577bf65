// Package vm loads committed units into a class-loading boundary and runs
// them with a tree-walking interpreter.
//
// A Loader is one boundary: it owns the classes defined in it, the hook
// slot patched code consults, and the patch status of the boundary. Classes
// nobody patched are loaded lazily from the loader's pool the first time
// they are referenced.
//
// Values are plain Go values:
//
//	null          nil
//	boolean       bool
//	int, long     int64
//	double        float64
//	String        string
//	objects       *Object
//	sys.List      *List
//	sys.Class     *Class
//	sys.Thread    *Thread
//	sys.Loader    *Loader
//	hook table    *HookRef
//
// Exceptions thrown by unit code surface in Go as *Exception errors.
package vm
