package hooks

import (
	"context"
)

// Essential are the hooks installed into a boundary right after patching.
// They forward reported errors to the target's own exception handler and
// run the configured initializer once the target has started.
type Essential struct {
	Base
}

// NewEssential returns the essential hooks.
func NewEssential() *Essential {
	return &Essential{}
}

// Error hands the error to the target's static handleException routine.
func (e *Essential) Error(err error) {
	site := e.Site()
	if site == nil || site.Runtime == nil || site.Entry == "" {
		e.Base.Error(err)
		return
	}
	if _, herr := site.Runtime.InvokeStatic(context.Background(), site.Entry, "handleException", err); herr != nil {
		log.Errorf("handleException failed: %s (reporting %s)", herr, err)
	}
}

// Initialized runs the configured initializer, at most once per boundary.
func (e *Essential) Initialized() {
	site := e.Site()
	if site == nil {
		return
	}
	site.initOnce.Do(func() { RunInitializer(context.Background(), site) })
}

// RunInitializer instantiates the site's initializer class and calls its
// run method. A missing initializer class is not an error.
func RunInitializer(ctx context.Context, site *Site) {
	cfg := site.Config
	if cfg.DisableInitializer || cfg.Initializer == "" || site.Runtime == nil {
		return
	}
	if !site.Runtime.HasClass(cfg.Initializer) {
		log.Debugf("initializer %s not found", cfg.Initializer)
		return
	}
	obj, err := site.Runtime.Instantiate(ctx, cfg.Initializer)
	if err != nil {
		log.Errorf("initializer %s: %s", cfg.Initializer, err)
		return
	}
	if _, err := site.Runtime.Invoke(ctx, obj, "run"); err != nil {
		log.Errorf("initializer %s: %s", cfg.Initializer, err)
	}
}
