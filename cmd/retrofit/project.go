package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chazu/retrofit/engine"
	"github.com/chazu/retrofit/env"
	"github.com/chazu/retrofit/manifest"
	"github.com/chazu/retrofit/unit"
	"github.com/chazu/retrofit/vm"
)

// project is an opened retrofit.toml with its target sources.
type project struct {
	manifest *manifest.Manifest
	pool     *unit.Pool
	release  func() error
	// found is false when running on defaults without a retrofit.toml.
	found bool
}

func openProject(dir string) (*project, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	found := m != nil
	if !found {
		if m, err = manifest.Default(dir); err != nil {
			return nil, err
		}
	}
	pool, release, err := m.OpenPool()
	if err != nil {
		return nil, fmt.Errorf("opening target sources: %w", err)
	}
	return &project{manifest: m, pool: pool, release: release, found: found}, nil
}

func (p *project) Close() error { return p.release() }

// loader returns a fresh boundary over the project's target writing the
// target's output to out.
func (p *project) loader(out io.Writer) *vm.Loader {
	m := p.manifest
	return vm.NewLoader(p.pool, m.Target.Entry, vm.WithOutput(out), vm.WithConfig(m.Config()))
}

// environment returns a fresh, unpatched environment over the project's
// target writing the target's output to out.
func (p *project) environment(out io.Writer) *env.Environment {
	m := p.manifest
	l := p.loader(out)
	opts := []env.Option{env.WithTarget(env.Target{Main: m.Target.Entry, Macro: m.Target.Macro})}
	if m.Features.Headless {
		opts = append(opts, env.WithHeadless())
	}
	return env.New(l, opts...)
}

// build runs the project's patch plan without loading anything.
func (p *project) build(ctx context.Context) ([]*unit.Loadable, error) {
	e := p.environment(io.Discard)
	return engine.Build(ctx, p.pool, p.manifest.Target.Entry, e.Plan())
}

// withEnvironment opens the project at opts.dir and calls f with a fresh
// environment writing to out.
func withEnvironment(opts *globalOptions, out io.Writer, f func(e *env.Environment) error) error {
	p, err := openProject(opts.dir)
	if err != nil {
		return err
	}
	defer p.Close()
	return f(p.environment(out))
}
