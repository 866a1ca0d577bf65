package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/unit"
)

var log = commonlog.GetLogger("retrofit.vm")

// ErrClassNotFound is returned when no source provides a class.
var ErrClassNotFound = errors.New("vm: class not found")

// ---------------------------------------------------------------------------
// Patch state
// ---------------------------------------------------------------------------

// PatchState is the patch status of a boundary.
type PatchState int

const (
	Unpatched PatchState = iota
	Patching
	Patched
	Failed
)

func (s PatchState) String() string {
	switch s {
	case Unpatched:
		return "unpatched"
	case Patching:
		return "patching"
	case Patched:
		return "patched"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("PatchState(%d)", int(s))
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Loader is a class-loading boundary. Each loader holds its own defined
// classes, hook slot and patch state; two loaders over the same pool are
// independent.
type Loader struct {
	id    uuid.UUID
	pool  *unit.Pool
	sys   *unit.Pool
	entry string

	mu      sync.Mutex
	classes map[string]*Class
	missing map[string]bool
	natives map[string]Native
	props   map[string]string

	outMu sync.Mutex
	out   io.Writer

	patchMu sync.Mutex
	stateMu sync.Mutex
	state   PatchState
	cause   error
	// initStack is where the boundary was first initialized.
	initStack string

	slot *hooks.Slot
}

var _ hooks.Runtime = (*Loader)(nil)

// Option configures a Loader.
type Option func(*Loader)

// WithOutput directs sys.Out to w.
func WithOutput(w io.Writer) Option {
	return func(l *Loader) { l.out = w }
}

// WithConfig sets the hook configuration of the boundary.
func WithConfig(cfg *hooks.Config) Option {
	return func(l *Loader) { l.slot.Site().Config = cfg }
}

// NewLoader creates a boundary reading classes from pool. entry names the
// class that carries the hook accessor once the boundary is patched.
func NewLoader(pool *unit.Pool, entry string, opts ...Option) *Loader {
	l := &Loader{
		id:      uuid.New(),
		pool:    pool,
		sys:     unit.NewPool(sysSource()),
		entry:   entry,
		classes: make(map[string]*Class),
		missing: make(map[string]bool),
		natives: make(map[string]Native, len(builtinNatives)),
		props:   make(map[string]string),
		out:     os.Stdout,
	}
	for name, fn := range builtinNatives {
		l.natives[name] = fn
	}
	l.slot = hooks.NewSlot(hooks.NewSite(entry, nil, l))
	for _, opt := range opts {
		opt(l)
	}
	log.Debugf("new loader %s (entry %s)", l.id, entry)
	return l
}

// ID returns the boundary's unique id.
func (l *Loader) ID() uuid.UUID { return l.id }

// Pool returns the pool classes are loaded from.
func (l *Loader) Pool() *unit.Pool { return l.pool }

// Entry returns the entry class name.
func (l *Loader) Entry() string { return l.entry }

// Slot returns the boundary's hook slot.
func (l *Loader) Slot() *hooks.Slot { return l.slot }

// Config returns the boundary's hook configuration.
func (l *Loader) Config() *hooks.Config { return l.slot.Site().Config }

// SetOutput redirects sys.Out.
func (l *Loader) SetOutput(w io.Writer) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	l.out = w
}

func (l *Loader) write(s string) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	io.WriteString(l.out, s)
}

// RegisterNative binds a native method implementation, replacing any
// previous binding of the same name.
func (l *Loader) RegisterNative(binding string, fn Native) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.natives[binding] = fn
}

func (l *Loader) native(binding string) Native {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.natives[binding]
}

// Property returns a sys.System property.
func (l *Loader) Property(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.props[key]
	return v, ok
}

// SetProperty sets a sys.System property.
func (l *Loader) SetProperty(key, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.props[key] = value
}

// ---------------------------------------------------------------------------
// Patch state
// ---------------------------------------------------------------------------

// WithPatchLock runs f holding the boundary's patch lock.
func (l *Loader) WithPatchLock(f func() error) error {
	l.patchMu.Lock()
	defer l.patchMu.Unlock()
	return f()
}

// PatchState returns the boundary's patch state and, when Failed, its
// cause.
func (l *Loader) PatchState() (PatchState, error) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state, l.cause
}

// SetPatchState records a state transition.
func (l *Loader) SetPatchState(s PatchState, cause error) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	log.Debugf("loader %s: %s -> %s", l.id, l.state, s)
	l.state = s
	l.cause = cause
}

// RecordInitStack records stack as the place the boundary was initialized,
// unless a stack is recorded already. It returns the recorded stack and
// whether this call recorded it.
func (l *Loader) RecordInitStack(stack string) (string, bool) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.initStack != "" {
		return l.initStack, false
	}
	l.initStack = stack
	return stack, true
}

// InitStack returns the stack recorded by RecordInitStack, or "".
func (l *Loader) InitStack() string {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.initStack
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (l *Loader) poolFor(name string) *unit.Pool {
	if strings.HasPrefix(name, "sys.") {
		return l.sys
	}
	return l.pool
}

// Loaded reports whether the class is already defined.
func (l *Loader) Loaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.classes[name]
	return ok
}

// Class returns the defined class, loading and committing it unmodified
// from the pool on first reference.
func (l *Loader) Class(name string) (*Class, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.classes[name]; ok {
		return c, nil
	}
	if l.missing[name] {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	u, err := l.poolFor(name).Lookup(name)
	if errors.Is(err, unit.ErrNotFound) {
		l.missing[name] = true
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	ld, err := unit.Commit(u)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	c := newClass(l, ld)
	l.classes[name] = c
	log.Debugf("loader %s: loaded %s from %s", l.id, name, ld.Origin)
	return c, nil
}

// Define adds committed units to the boundary as one batch. Nothing is
// defined if any of the classes is already loaded.
func (l *Loader) Define(lds ...*unit.Loadable) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ld := range lds {
		if _, ok := l.classes[ld.Name]; ok {
			return fmt.Errorf("%w: %s is already loaded in %s", unit.ErrAlreadyCommitted, ld.Name, l.id)
		}
	}
	for _, ld := range lds {
		l.classes[ld.Name] = newClass(l, ld)
		delete(l.missing, ld.Name)
	}
	return nil
}

// Classes lists the defined classes, sorted.
func (l *Loader) Classes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.classes))
	for name := range l.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasClass reports whether the class is defined or can be loaded.
func (l *Loader) HasClass(name string) bool {
	if l.Loaded(name) {
		return true
	}
	return l.poolFor(name).Has(name)
}

// ClassLocations lists every source providing the class.
func (l *Loader) ClassLocations(name string) []string {
	return l.poolFor(name).Locations(name)
}

// AddPath appends a directory of units or a txtar archive to the pool.
func (l *Loader) AddPath(path string) error {
	var src unit.Source
	if strings.HasSuffix(path, ".txtar") {
		ts, err := unit.OpenTxtar(path)
		if err != nil {
			return err
		}
		src = ts
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory or .txtar archive", path)
		}
		src = unit.NewDirSource(path)
	}
	l.pool.Append(src)
	l.mu.Lock()
	clear(l.missing)
	l.mu.Unlock()
	log.Infof("loader %s: added %s", l.id, path)
	return nil
}

// ---------------------------------------------------------------------------
// Invocation (hooks.Runtime)
// ---------------------------------------------------------------------------

// InvokeStatic calls a static method. Go errors among args are converted to
// sys.RuntimeException objects.
func (l *Loader) InvokeStatic(ctx context.Context, class, method string, args ...any) (result any, err error) {
	in := l.interp(ctx)
	defer in.recover(&err)
	c, err := l.Class(class)
	if err != nil {
		return nil, err
	}
	uargs, err := in.fromGoArgs(args)
	if err != nil {
		return nil, err
	}
	return in.send(&classRef{c}, method, uargs)
}

// Instantiate creates an instance through the no-argument constructor.
func (l *Loader) Instantiate(ctx context.Context, class string) (result any, err error) {
	in := l.interp(ctx)
	defer in.recover(&err)
	c, err := l.Class(class)
	if err != nil {
		return nil, err
	}
	return in.newInstance(c, nil)
}

// Invoke calls a method on recv.
func (l *Loader) Invoke(ctx context.Context, recv any, method string, args ...any) (result any, err error) {
	in := l.interp(ctx)
	defer in.recover(&err)
	uargs, err := in.fromGoArgs(args)
	if err != nil {
		return nil, err
	}
	return in.send(recv, method, uargs)
}

// Main runs the static main(List) method of class with string arguments.
func (l *Loader) Main(ctx context.Context, class string, args ...string) error {
	list := NewList()
	for _, a := range args {
		list.Add(a)
	}
	_, err := l.InvokeStatic(ctx, class, "main", list)
	return err
}

func (l *Loader) interp(ctx context.Context) *interp {
	ctx, t := EnsureThread(ctx, l)
	return &interp{ctx: ctx, l: l, thread: t}
}
