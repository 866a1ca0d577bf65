package hooks

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrUnknownHook is returned by Dispatch for names outside the hook table.
var ErrUnknownHook = errors.New("hooks: unknown extension point")

var (
	hookCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrofit_hook_calls_total",
		Help: "Hook invocations from patched code, by extension point",
	}, []string{"hook"})

	hookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrofit_hook_failures_total",
		Help: "Hook invocations that panicked and fell back to the default, by extension point",
	}, []string{"hook"})
)

// adapter maps the loosely typed arguments of a patched call site onto one
// extension point. fallback yields the value the call site treats as
// "proceed with the target's own behavior".
type adapter struct {
	call     func(h Hooks, args []any) any
	fallback func(args []any) any
}

func constant(v any) func([]any) any {
	return func([]any) any { return v }
}

var (
	proceedNil   = constant(nil)
	proceedTrue  = constant(true)
	proceedFalse = constant(false)
)

func void(f func(h Hooks, args []any)) func(Hooks, []any) any {
	return func(h Hooks, args []any) any {
		f(h, args)
		return nil
	}
}

// nilIfEmpty maps empty strings to null for the target's string queries.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var adapters = map[string]adapter{
	"installed":   {void(func(h Hooks, _ []any) { h.Installed() }), proceedNil},
	"dispose":     {void(func(h Hooks, _ []any) { h.Dispose() }), proceedNil},
	"initialized": {void(func(h Hooks, _ []any) { h.Initialized() }), proceedNil},
	"disposing":   {func(h Hooks, _ []any) any { return h.Disposing() }, proceedTrue},
	"quit":        {func(h Hooks, _ []any) any { return h.Quit() }, proceedTrue},

	"showStatus": {void(func(h Hooks, a []any) { h.ShowStatus(argString(a, 0)) }), proceedNil},
	"showProgress": {void(func(h Hooks, a []any) {
		if len(a) >= 2 {
			h.ShowProgressCount(argInt(a, 0), argInt(a, 1))
			return
		}
		h.ShowProgress(argFloat(a, 0))
	}), proceedNil},
	"log":             {void(func(h Hooks, a []any) { h.Log(argString(a, 0)) }), proceedNil},
	"debug":           {void(func(h Hooks, a []any) { h.Debug(argString(a, 0)) }), proceedNil},
	"error":           {void(func(h Hooks, a []any) { h.Error(argError(a, 0)) }), proceedNil},
	"registerImage":   {void(func(h Hooks, a []any) { h.RegisterImage(arg(a, 0)) }), proceedNil},
	"unregisterImage": {void(func(h Hooks, a []any) { h.UnregisterImage(arg(a, 0)) }), proceedNil},

	"interceptRunPlugIn": {func(h Hooks, a []any) any {
		return h.InterceptRunPlugIn(argString(a, 0), argString(a, 1))
	}, proceedNil},
	"openInEditor": {func(h Hooks, a []any) any { return h.OpenInEditor(argString(a, 0)) }, proceedFalse},
	"createInEditor": {func(h Hooks, a []any) any {
		return h.CreateInEditor(argString(a, 0), argString(a, 1))
	}, proceedFalse},
	"interceptFileOpen": {func(h Hooks, a []any) any { return h.InterceptFileOpen(argString(a, 0)) }, proceedNil},
	"interceptOpenImage": {func(h Hooks, a []any) any {
		return h.InterceptOpenImage(argString(a, 0), argInt(a, 1))
	}, proceedNil},
	"interceptOpenRecent":       {func(h Hooks, a []any) any { return h.InterceptOpenRecent(argString(a, 0)) }, proceedNil},
	"interceptDragAndDropFile":  {func(h Hooks, a []any) any { return h.InterceptDragAndDropFile(argString(a, 0)) }, proceedNil},
	"interceptKeyPressed":       {func(h Hooks, a []any) any { return h.InterceptKeyPressed(argString(a, 0)) }, proceedFalse},
	"interceptCloseAllWindows":  {func(h Hooks, _ []any) any { return h.InterceptCloseAllWindows() }, proceedTrue},
	"interceptImageWindowClose": {void(func(h Hooks, a []any) { h.InterceptImageWindowClose(arg(a, 0)) }), proceedNil},
	"handleNoSuchMethodError": {func(h Hooks, a []any) any {
		return h.HandleNoSuchMethodError(argError(a, 0))
	}, proceedFalse},
	"newPluginClassLoader": {void(func(h Hooks, a []any) { h.NewPluginClassLoader(arg(a, 0)) }), proceedNil},
	"addPluginDirectory": {func(h Hooks, a []any) any {
		return h.AddPluginDirectory(argString(a, 0), argStrings(a, 1))
	}, func(a []any) any { return argStrings(a, 1) }},
	"handleExtraPluginJars": {func(h Hooks, _ []any) any { return h.HandleExtraPluginJars() }, constant([]string(nil))},
	"autoGenerateConfigFile": {func(h Hooks, a []any) any {
		if cfg, ok := h.AutoGenerateConfigFile(argString(a, 0)); ok {
			return cfg
		}
		return nil
	}, proceedNil},
	"runAfterRefreshMenus": {void(func(h Hooks, _ []any) { h.RunAfterRefreshMenus() }), proceedNil},
	"addMenuItem": {void(func(h Hooks, a []any) {
		h.AddMenuItem(argString(a, 0), argString(a, 1))
	}), proceedNil},

	"isLegacyMode":       {func(h Hooks, _ []any) any { return h.IsLegacyMode() }, proceedTrue},
	"getContext":         {func(h Hooks, _ []any) any { return h.Context() }, proceedNil},
	"getAppName":         {func(h Hooks, _ []any) any { return nilIfEmpty(h.AppName()) }, proceedNil},
	"getAppVersion":      {func(h Hooks, _ []any) any { return nilIfEmpty(h.AppVersion()) }, proceedNil},
	"getIconURL":         {func(h Hooks, _ []any) any { return nilIfEmpty(h.IconURL()) }, proceedNil},
	"getThreadAncestors": {func(h Hooks, _ []any) any { return h.ThreadAncestors() }, proceedNil},
}

// Dispatch invokes the extension point called name on h with the arguments
// of a patched call site.
//
// A hook that panics never takes the target down: the failure is logged and
// counted, and the extension point's proceed value is returned instead. A
// nil h behaves like a hook that always proceeds.
func Dispatch(h Hooks, name string, args ...any) (result any, err error) {
	a, ok := adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHook, name)
	}
	if h == nil {
		return a.fallback(args), nil
	}
	hookCalls.WithLabelValues(name).Inc()
	defer func() {
		if r := recover(); r != nil {
			hookFailures.WithLabelValues(name).Inc()
			log.Errorf("hook %s (%T) failed: %v", name, h, r)
			result = a.fallback(args)
		}
	}()
	return a.call(h, args), nil
}

// ---------------------------------------------------------------------------
// Argument conversion
// ---------------------------------------------------------------------------

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(args []any, i int) string {
	switch v := arg(args, i).(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func argInt(args []any, i int) int {
	switch v := arg(args, i).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case nil:
		return 0
	default:
		panic(fmt.Sprintf("argument %d: want integer, got %T", i, v))
	}
}

func argFloat(args []any, i int) float64 {
	switch v := arg(args, i).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case nil:
		return 0
	default:
		panic(fmt.Sprintf("argument %d: want number, got %T", i, v))
	}
}

func argStrings(args []any, i int) []string {
	switch v := arg(args, i).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for j, s := range v {
			out[j] = fmt.Sprint(s)
		}
		return out
	case nil:
		return nil
	default:
		panic(fmt.Sprintf("argument %d: want list, got %T", i, v))
	}
}

func argError(args []any, i int) error {
	switch v := arg(args, i).(type) {
	case error:
		return v
	case nil:
		return errors.New("unknown error")
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
