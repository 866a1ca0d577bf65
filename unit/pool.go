package unit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/retrofit/lang"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("retrofit.unit")

// Pool is an ordered list of sources, searched first to last like a class
// path. Units are parsed on first reference and cached; the cached
// declarations are read-only, and callers wanting to edit a unit take a
// working copy through a Session.
type Pool struct {
	mu      sync.Mutex
	sources []Source
	cache   map[string]*poolEntry
}

type poolEntry struct {
	text   string
	origin string
	decl   *lang.ClassDecl
}

// NewPool creates a pool over the given sources.
func NewPool(sources ...Source) *Pool {
	return &Pool{
		sources: append([]Source(nil), sources...),
		cache:   make(map[string]*poolEntry),
	}
}

// Append adds a source to the end of the search order.
func (p *Pool) Append(src Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, src)
}

// Sources returns the sources in search order.
func (p *Pool) Sources() []Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Source(nil), p.sources...)
}

// entry finds and parses a class, caching the result.
func (p *Pool) entry(name string) (*poolEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.cache[name]; ok {
		return e, nil
	}
	for _, src := range p.sources {
		text, err := src.Read(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		decl, err := lang.ParseClass(text)
		if err != nil {
			return nil, fmt.Errorf("%s from %s: %w", name, src.Name(), err)
		}
		if decl.Name != name {
			return nil, fmt.Errorf("%s from %s declares class %s", name, src.Name(), decl.Name)
		}
		e := &poolEntry{text: text, origin: src.Name(), decl: decl}
		p.cache[name] = e
		log.Debugf("parsed %s from %s", name, src.Name())
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Has reports whether any source provides the class.
func (p *Pool) Has(name string) bool {
	_, err := p.entry(name)
	return err == nil
}

// Decl returns the cached, read-only declaration of a class.
func (p *Pool) Decl(name string) (*lang.ClassDecl, error) {
	e, err := p.entry(name)
	if err != nil {
		return nil, err
	}
	return e.decl, nil
}

// Lookup returns a fresh, editable unit for the class.
func (p *Pool) Lookup(name string) (*Unit, error) {
	e, err := p.entry(name)
	if err != nil {
		return nil, err
	}
	return Parse(e.text, e.origin)
}

// Text returns the unmodified source text of a class and its origin.
func (p *Pool) Text(name string) (text, origin string, err error) {
	e, err := p.entry(name)
	if err != nil {
		return "", "", err
	}
	return e.text, e.origin, nil
}

// Locations lists every source providing the class, in search order. More
// than one location means the class is shadowed.
func (p *Pool) Locations(name string) []string {
	var out []string
	for _, src := range p.Sources() {
		if _, err := src.Read(name); err == nil {
			out = append(out, src.Name())
		}
	}
	return out
}

// Classes lists the classes visible through the pool. A class provided by
// several sources is listed once.
func (p *Pool) Classes() ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, src := range p.Sources() {
		names, err := src.Classes()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name(), err)
		}
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out, nil
}

// Supers returns the superclass chain of a class, nearest first. Missing
// ancestors end the chain with ErrNotFound.
func (p *Pool) Supers(name string) ([]string, error) {
	var chain []string
	seen := map[string]bool{name: true}
	for {
		decl, err := p.Decl(name)
		if err != nil {
			return chain, err
		}
		if decl.Super == "" {
			return chain, nil
		}
		if seen[decl.Super] {
			return chain, fmt.Errorf("cyclic superclass chain at %s", decl.Super)
		}
		seen[decl.Super] = true
		chain = append(chain, decl.Super)
		name = decl.Super
	}
}
