package hooks

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotPatched is returned when hooks are installed into a slot whose
// boundary has not been patched.
var ErrNotPatched = errors.New("hooks: boundary not patched")

// Slot is the swappable hook reference of one boundary. Readers (patched
// call sites) load the current hooks without locking; installs are
// serialized.
type Slot struct {
	mu      sync.Mutex
	site    *Site
	current atomic.Pointer[entry]
}

type entry struct {
	h Hooks
}

// NewSlot returns an empty slot for site.
func NewSlot(site *Site) *Slot {
	return &Slot{site: site}
}

// Site returns the per-boundary state shared by installed hooks.
func (s *Slot) Site() *Site { return s.site }

// Current returns the installed hooks, or nil.
func (s *Slot) Current() Hooks {
	if e := s.current.Load(); e != nil {
		return e.h
	}
	return nil
}

// Install makes h the boundary's hooks and returns the previous ones. A nil
// h installs fresh essential hooks.
//
// The new hooks are bound to the slot's site and, if they implement
// Migrator, receive the previous hooks before they are published. Call
// sites running concurrently observe either the old or the new hooks,
// never a partially installed one. The previous hooks are disposed and the
// new ones notified after the swap, outside the slot's lock, so Installed
// may itself install more specialized hooks.
func (s *Slot) Install(h Hooks) Hooks {
	if h == nil {
		h = NewEssential()
	}
	if b, ok := h.(siteBinder); ok {
		b.bind(s.site, h)
	}

	s.mu.Lock()
	prev := s.Current()
	if prev != nil && prev != h {
		if m, ok := h.(Migrator); ok {
			m.Migrate(prev)
		}
	}
	s.current.Store(&entry{h: h})
	s.mu.Unlock()
	log.Debugf("installed hooks %T", h)

	if prev != nil && prev != h {
		safely("dispose", prev.Dispose)
	}
	safely("installed", h.Installed)
	return prev
}

// safely runs a lifecycle callback, logging instead of propagating panics.
func safely(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			hookFailures.WithLabelValues(name).Inc()
			log.Errorf("hook %s panicked: %v", name, r)
		}
	}()
	f()
}
