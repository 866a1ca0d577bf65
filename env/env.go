// Package env drives a patched target inside one class-loading boundary.
//
// An Environment is configured first (plugin class path, feature flags,
// extra operations), then initialized: the boundary is patched on the
// first call to ApplyPatches or to any entry point. Configuration after
// that point fails with an AlreadyInitializedError carrying the stack of
// the call that initialized the boundary, whichever environment made it.
//
// Calls into the target are framed: the calling thread's name is set to
// "Run$_" plus the call's name and its context loader to the boundary for
// the duration of the call. Parts of the target recover their call context
// from the thread name alone. The target only tests the prefix, so the
// suffix names the call rather than the thread's previous name.
package env

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/retrofit/engine"
	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/legacyapp"
	"github.com/chazu/retrofit/patch"
	"github.com/chazu/retrofit/vm"
)

var log = commonlog.GetLogger("retrofit.env")

// FramePrefix starts the thread name of a framed call.
const FramePrefix = "Run$_"

// ErrAlreadyInitialized matches every AlreadyInitializedError.
var ErrAlreadyInitialized = errors.New("env: already initialized")

// AlreadyInitializedError reports configuration attempted after the
// environment, or its boundary, was initialized.
type AlreadyInitializedError struct {
	Op string
	// Stack is where the boundary's initialization began. It is empty when
	// the boundary was patched without an environment.
	Stack string
}

func (e *AlreadyInitializedError) Error() string {
	if e.Stack == "" {
		return fmt.Sprintf("env: %s: boundary already patched", e.Op)
	}
	return fmt.Sprintf("env: %s: already initialized at:\n%s", e.Op, e.Stack)
}

func (e *AlreadyInitializedError) Is(target error) bool { return target == ErrAlreadyInitialized }

// Target names the classes an Environment calls into.
type Target struct {
	// Main has static main(List), run(String, String),
	// runPlugIn(String, String) and getInstance().
	Main string
	// Macro has static run(String, String) and setOptions(String).
	Macro string
}

// DefaultTarget returns the classes of the bundled reference target.
func DefaultTarget() Target {
	return Target{Main: legacyapp.Main, Macro: legacyapp.Macro}
}

// Option configures an Environment.
type Option func(*Environment)

// WithTarget sets the classes entry points call into.
func WithTarget(t Target) Option {
	return func(e *Environment) { e.target = t }
}

// WithCore replaces the core catalogue, for targets other than the
// reference one.
func WithCore(ops ...patch.Op) Option {
	return func(e *Environment) { e.core = ops }
}

// WithHeadless appends the headless patches to the after phase.
func WithHeadless() Option {
	return func(e *Environment) { e.headless = true }
}

// Environment is one patched instance of the target.
type Environment struct {
	loader   *vm.Loader
	target   Target
	core     []patch.Op
	headless bool

	mu          sync.Mutex
	before      []patch.Op
	after       []patch.Op
	initialized bool

	classpathOnce sync.Once
}

// New returns an environment over the boundary l.
func New(l *vm.Loader, opts ...Option) *Environment {
	e := &Environment{loader: l, target: DefaultTarget()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loader initializes the environment and returns its boundary.
func (e *Environment) Loader(ctx context.Context) (*vm.Loader, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	return e.loader, nil
}

// Config returns the boundary's hook configuration.
func (e *Environment) Config() *hooks.Config { return e.loader.Config() }

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// configure runs f while configuration is still legal.
func (e *Environment) configure(op string, f func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stack := e.loader.InitStack(); stack != "" {
		return &AlreadyInitializedError{Op: op, Stack: stack}
	}
	if state, _ := e.loader.PatchState(); state != vm.Unpatched {
		return &AlreadyInitializedError{Op: op}
	}
	f()
	return nil
}

// AddPluginClasspath appends plugin class path elements.
func (e *Environment) AddPluginClasspath(paths ...string) error {
	return e.configure("AddPluginClasspath", func() { e.Config().AddPluginClasspath(paths...) })
}

// DisablePluginDirs stops the plugin directory scan.
func (e *Environment) DisablePluginDirs() error {
	return e.configure("DisablePluginDirs", func() { e.Config().EnablePluginDirs = false })
}

// DisableInitializer skips the initializer run after the target starts.
func (e *Environment) DisableInitializer() error {
	return e.configure("DisableInitializer", func() { e.Config().DisableInitializer = true })
}

// NoPluginClassLoader loads plugins through the boundary's own class path.
func (e *Environment) NoPluginClassLoader() error {
	return e.configure("NoPluginClassLoader", func() { e.Config().NoPluginClassLoader = true })
}

// SuppressScriptDiscovery stops plugin menus being generated from plugin
// directories.
func (e *Environment) SuppressScriptDiscovery() error {
	return e.configure("SuppressScriptDiscovery", func() { e.Config().SuppressScriptDiscovery = true })
}

// Before registers operations to run before the hook slot is installed.
func (e *Environment) Before(ops ...patch.Op) error {
	return e.configure("Before", func() { e.before = append(e.before, ops...) })
}

// After registers operations to run after the core catalogue.
func (e *Environment) After(ops ...patch.Op) error {
	return e.configure("After", func() { e.after = append(e.after, ops...) })
}

// ---------------------------------------------------------------------------
// Initialization
// ---------------------------------------------------------------------------

// ApplyPatches initializes the environment. It fails when the environment
// was already initialized.
func (e *Environment) ApplyPatches(ctx context.Context) error {
	plan, err := e.begin("ApplyPatches", true)
	if err != nil {
		return err
	}
	return e.patch(ctx, plan)
}

// ensure initializes the environment if needed.
func (e *Environment) ensure(ctx context.Context) error {
	plan, err := e.begin("", false)
	if err != nil {
		return err
	}
	return e.patch(ctx, plan)
}

func (e *Environment) begin(op string, strict bool) (engine.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized && strict {
		return engine.Plan{}, &AlreadyInitializedError{Op: op, Stack: e.loader.InitStack()}
	}
	if !e.initialized {
		e.initialized = true
		e.loader.RecordInitStack(string(debug.Stack()))
	}
	return e.plan(), nil
}

// Plan returns the plan the environment applies when it initializes. It
// does not initialize the environment.
func (e *Environment) Plan() engine.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plan()
}

func (e *Environment) plan() engine.Plan {
	core := e.core
	if core == nil {
		core = engine.Catalogue(e.Config())
	}
	after := append([]patch.Op(nil), e.after...)
	if e.headless {
		after = append(after, engine.HeadlessPatches()...)
	}
	return engine.Plan{Before: append([]patch.Op(nil), e.before...), Core: core, After: after}
}

func (e *Environment) patch(ctx context.Context, plan engine.Plan) error {
	if err := engine.Apply(ctx, e.loader, plan); err != nil {
		return err
	}
	if e.Config().NoPluginClassLoader {
		e.classpathOnce.Do(e.extendClasspath)
	}
	return nil
}

// extendClasspath puts the extra plugin class path onto the boundary when
// there is no plugin class loader to take it. Discovery runs outside the
// patch lock.
func (e *Environment) extendClasspath() {
	h := e.Hooks()
	if h == nil {
		return
	}
	for _, path := range h.HandleExtraPluginJars() {
		if err := e.loader.AddPath(path); err != nil {
			log.Warningf("plugin class path %s: %s", path, err)
		}
	}
}

// IsInitialized reports whether the target has started in this
// environment's boundary.
func (e *Environment) IsInitialized(ctx context.Context) bool {
	return engine.IsInitialized(ctx, e.loader)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Run calls f framed as the target call name, patching first if needed.
// Framed calls nest: an inner call restores the outer call's frame.
func (e *Environment) Run(ctx context.Context, name string, f func(ctx context.Context) (any, error)) (any, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	ctx, t := vm.EnsureThread(ctx, e.loader)
	name0, loader0 := t.Name(), t.ContextLoader()
	t.SetName(FramePrefix + name)
	t.SetContextLoader(e.loader)
	defer func() {
		t.SetName(name0)
		t.SetContextLoader(loader0)
	}()
	return f(ctx)
}

// Main runs the target's main routine.
func (e *Environment) Main(ctx context.Context, args ...string) error {
	_, err := e.Run(ctx, "main", func(ctx context.Context) (any, error) {
		return nil, e.loader.Main(ctx, e.target.Main, args...)
	})
	return err
}

// RunCommand runs the target command named command, a menu label or
// path, with options for the macro layer to read.
func (e *Environment) RunCommand(ctx context.Context, command, options string) error {
	_, err := e.Run(ctx, command, func(ctx context.Context) (any, error) {
		return e.loader.InvokeStatic(ctx, e.target.Main, "run", command, options)
	})
	return err
}

// RunMacro runs code as the macro called name, passing arg for the macro
// to read, and returns its result, or "" when the macro yields null.
func (e *Environment) RunMacro(ctx context.Context, name, code, arg string) (string, error) {
	v, err := e.Run(ctx, name, func(ctx context.Context) (any, error) {
		return e.loader.InvokeStatic(ctx, e.target.Macro, "run", code, arg)
	})
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("env: macro %s returned %T", name, v)
	}
	return s, nil
}

// SetMacroOptions sets the options the next macro reads.
func (e *Environment) SetMacroOptions(ctx context.Context, options string) error {
	_, err := e.Run(ctx, "setOptions", func(ctx context.Context) (any, error) {
		return e.loader.InvokeStatic(ctx, e.target.Macro, "setOptions", options)
	})
	return err
}

// RunPlugIn runs the plugin class with arg and returns its result.
func (e *Environment) RunPlugIn(ctx context.Context, className, arg string) (any, error) {
	return e.Run(ctx, className, func(ctx context.Context) (any, error) {
		return e.loader.InvokeStatic(ctx, e.target.Main, "runPlugIn", className, arg)
	})
}

// MenuStructure initializes the environment and returns the menu entries
// the target registered, in order. Separators carry numbered paths such as
// "File>-1".
func (e *Environment) MenuStructure(ctx context.Context) ([]hooks.MenuEntry, error) {
	if err := e.ensure(ctx); err != nil {
		return nil, err
	}
	if h := e.Hooks(); h != nil {
		return h.MenuStructure(), nil
	}
	return e.loader.Slot().Site().Menu.Entries(), nil
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

// Hooks returns the boundary's installed hooks, or nil before patching.
func (e *Environment) Hooks() hooks.Hooks { return e.loader.Slot().Current() }

// InstallHooks installs h into the environment's boundary.
func (e *Environment) InstallHooks(h hooks.Hooks) (hooks.Hooks, error) {
	return InstallHooks(e.loader, h)
}

// InstallHooks makes h the hooks of the patched boundary l and returns the
// previous ones.
func InstallHooks(l *vm.Loader, h hooks.Hooks) (hooks.Hooks, error) {
	if !IsAlreadyPatched(l) {
		return nil, fmt.Errorf("%w: %s", hooks.ErrNotPatched, l.ID())
	}
	return l.Slot().Install(h), nil
}

// IsAlreadyPatched reports whether l is patched, without patching it.
func IsAlreadyPatched(l *vm.Loader) bool {
	return engine.IsAlreadyPatched(l)
}
