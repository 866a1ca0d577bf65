// Package engine applies patch plans to a class-loading boundary.
//
// A run takes working copies of the target's units, applies the plan's
// phases in order (before, hook slot, core, after), commits every touched
// unit and defines the batch in the boundary. Runs are serialized per
// boundary and happen at most once: the boundary's patch state moves from
// Unpatched through Patching to Patched, or to Failed, which is terminal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tliron/commonlog"

	"github.com/chazu/retrofit/hooks"
	"github.com/chazu/retrofit/lang"
	"github.com/chazu/retrofit/patch"
	"github.com/chazu/retrofit/unit"
	"github.com/chazu/retrofit/vm"
)

var log = commonlog.GetLogger("retrofit.engine")

// ErrBoundaryFailed is returned when patching a boundary that already
// failed to patch. It wraps the original cause.
var ErrBoundaryFailed = errors.New("engine: boundary failed to patch")

// Phase names, as reported in PlanBuildError.
const (
	PhaseWitness = "witness"
	PhaseBefore  = "before"
	PhaseSlot    = "slot"
	PhaseCore    = "core"
	PhaseAfter   = "after"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrofit_engine_runs_total",
		Help: "Patch runs per boundary, by result",
	}, []string{"result"})

	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retrofit_engine_ops_total",
		Help: "Patch operations processed, by kind and outcome",
	}, []string{"kind", "outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "retrofit_engine_run_duration_seconds",
		Help:    "Time spent patching a boundary",
		Buckets: prometheus.DefBuckets,
	})
)

// ---------------------------------------------------------------------------
// Plan and errors
// ---------------------------------------------------------------------------

// Plan is an ordered list of operations in three phases. Before runs
// first, then the hook slot is installed, then Core, then After.
type Plan struct {
	Before []patch.Op
	Core   []patch.Op
	After  []patch.Op
}

// DefaultPlan returns the plan for the bundled reference target.
func DefaultPlan() Plan {
	return Plan{Core: CoreCatalogue()}
}

// Len returns the number of operations in the plan.
func (p Plan) Len() int {
	return len(p.Before) + len(p.Core) + len(p.After)
}

// PlanBuildError reports an operation that could not be applied. Nothing
// of the run is committed.
type PlanBuildError struct {
	Phase string
	Op    patch.Op // nil when the failure is not tied to one operation
	Err   error
}

func (e *PlanBuildError) Error() string {
	if e.Op == nil {
		return fmt.Sprintf("engine: %s phase: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("engine: %s phase: %s: %v", e.Phase, e.Op, e.Err)
}

func (e *PlanBuildError) Unwrap() error { return e.Err }

// CommitError reports a unit that could not be committed or defined.
type CommitError struct {
	Unit string
	Err  error
}

func (e *CommitError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("engine: commit: %v", e.Err)
	}
	return fmt.Sprintf("engine: commit %s: %v", e.Unit, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// Apply patches the boundary with plan, once. Concurrent callers wait for
// the first run; later callers return nil when it succeeded and an error
// wrapping ErrBoundaryFailed and the original cause when it failed.
func Apply(ctx context.Context, l *vm.Loader, plan Plan) error {
	return l.WithPatchLock(func() error {
		switch state, cause := l.PatchState(); state {
		case vm.Patched:
			return nil
		case vm.Failed:
			return fmt.Errorf("%w: %w", ErrBoundaryFailed, cause)
		}

		start := time.Now()
		l.SetPatchState(vm.Patching, nil)
		err := patchBoundary(ctx, l, plan)
		runDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			l.SetPatchState(vm.Failed, err)
			runsTotal.WithLabelValues("failed").Inc()
			log.Errorf("patching %s failed: %s", l.ID(), err)
			return err
		}
		l.SetPatchState(vm.Patched, nil)
		runsTotal.WithLabelValues("patched").Inc()
		log.Infof("patched %s in %s", l.ID(), time.Since(start))
		return nil
	})
}

func patchBoundary(ctx context.Context, l *vm.Loader, plan Plan) error {
	if l.Loaded(l.Entry()) {
		return &CommitError{Unit: l.Entry(), Err: fmt.Errorf("%w: loaded before patching", unit.ErrAlreadyCommitted)}
	}
	lds, err := Build(ctx, l.Pool(), l.Entry(), plan)
	if err != nil {
		return err
	}
	for _, ld := range lds {
		if l.Loaded(ld.Name) {
			return &CommitError{Unit: ld.Name, Err: fmt.Errorf("%w: loaded before patching", unit.ErrAlreadyCommitted)}
		}
	}
	if err := l.Define(lds...); err != nil {
		return &CommitError{Err: err}
	}
	log.Infof("defined %d patched units in %s", len(lds), l.ID())

	if _, err := l.InvokeStatic(ctx, EssentialUnit, "install"); err != nil {
		log.Warningf("installing essential hooks through %s: %s", EssentialUnit, err)
		l.Slot().Install(hooks.NewEssential())
	}
	return nil
}

// Build runs plan against working copies of the pool's units and returns
// the committed units, hook units first. The pool is not modified.
//
// When the entry class already carries the hook slot marker the source
// is pre-patched: no phase runs and the entry is committed as-is.
func Build(ctx context.Context, pool *unit.Pool, entry string, plan Plan) ([]*unit.Loadable, error) {
	s := unit.NewSession(pool)
	u, err := s.Unit(entry)
	if err != nil {
		return nil, &PlanBuildError{Phase: PhaseWitness, Err: err}
	}

	if u.HasField(MarkerField) {
		log.Infof("%s already carries the hook slot; committing as-is", entry)
	} else {
		phases := []struct {
			name string
			ops  []patch.Op
		}{
			{PhaseBefore, plan.Before},
			{PhaseSlot, slotOps(entry)},
			{PhaseCore, plan.Core},
			{PhaseAfter, plan.After},
		}
		for _, ph := range phases {
			if err := runPhase(ctx, s, ph.name, ph.ops); err != nil {
				return nil, err
			}
			if ph.name == PhaseSlot {
				if err := createHookUnits(s); err != nil {
					return nil, &PlanBuildError{Phase: PhaseSlot, Err: err}
				}
			}
		}
	}
	return commitAll(s)
}

func runPhase(ctx context.Context, s *unit.Session, phase string, ops []patch.Op) error {
	if len(ops) == 0 {
		return nil
	}
	log.Infof("%s phase: %d operations", phase, len(ops))
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return &PlanBuildError{Phase: phase, Op: op, Err: err}
		}
		applied, err := patch.Run(op, s)
		if err != nil {
			return &PlanBuildError{Phase: phase, Op: op, Err: err}
		}
		outcome := "applied"
		if !applied {
			outcome = "skipped"
		}
		opsTotal.WithLabelValues(op.Kind(), outcome).Inc()
	}
	return nil
}

// commitAll commits every touched unit, hook units first.
func commitAll(s *unit.Session) ([]*unit.Loadable, error) {
	units := s.Units()
	slices.SortStableFunc(units, func(a, b *unit.Unit) int {
		return rank(a.Name()) - rank(b.Name())
	})
	lds := make([]*unit.Loadable, 0, len(units))
	for _, u := range units {
		ld, err := unit.Commit(u)
		if err != nil {
			return nil, &CommitError{Unit: u.Name(), Err: err}
		}
		lds = append(lds, ld)
	}
	return lds, nil
}

func rank(name string) int {
	if isHookUnit(name) {
		return 0
	}
	return 1
}

// ---------------------------------------------------------------------------
// Witness queries
// ---------------------------------------------------------------------------

// IsAlreadyPatched reports whether the boundary's entry class carries the
// hook slot, either because the boundary was patched or because its source
// is pre-patched. It never loads or patches anything.
func IsAlreadyPatched(l *vm.Loader) bool {
	if state, _ := l.PatchState(); state == vm.Patched {
		return true
	}
	if l.Loaded(l.Entry()) {
		c, err := l.Class(l.Entry())
		return err == nil && c.HasField(MarkerField)
	}
	decl, err := l.Pool().Decl(l.Entry())
	if err != nil {
		return false
	}
	return hasField(decl, MarkerField)
}

// IsInitialized reports whether the boundary is patched and the target has
// started, i.e. its entry class returns an instance from getInstance().
func IsInitialized(ctx context.Context, l *vm.Loader) bool {
	if state, _ := l.PatchState(); state != vm.Patched {
		return false
	}
	v, err := l.InvokeStatic(ctx, l.Entry(), "getInstance")
	return err == nil && v != nil
}

func hasField(decl *lang.ClassDecl, name string) bool {
	for _, f := range decl.Fields() {
		if f.Name == name {
			return true
		}
	}
	return false
}
