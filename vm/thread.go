package vm

import (
	"context"
	"sync"
)

// Thread is the call frame identity code runs under: a name and a context
// loader, both of which target code can read and change.
type Thread struct {
	mu     sync.Mutex
	name   string
	loader *Loader
}

// NewThread returns a thread with the given name and context loader.
func NewThread(name string, loader *Loader) *Thread {
	return &Thread{name: name, loader: loader}
}

func (t *Thread) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Thread) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

// ContextLoader returns the loader plugin lookups go through.
func (t *Thread) ContextLoader() *Loader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loader
}

func (t *Thread) SetContextLoader(l *Loader) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loader = l
}

type threadKey struct{}

// WithThread returns a context carrying t. Invocations made with the
// context run on t.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, t)
}

// ThreadFrom returns the thread carried by ctx, or nil.
func ThreadFrom(ctx context.Context) *Thread {
	t, _ := ctx.Value(threadKey{}).(*Thread)
	return t
}

// EnsureThread returns ctx unchanged when it already carries a thread, and
// otherwise a context with a fresh "main" thread whose context loader is l.
func EnsureThread(ctx context.Context, l *Loader) (context.Context, *Thread) {
	if t := ThreadFrom(ctx); t != nil {
		return ctx, t
	}
	t := NewThread("main", l)
	return WithThread(ctx, t), t
}
