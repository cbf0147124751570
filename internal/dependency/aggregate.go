package dependency

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// Aggregate maintains an ordered list of every bound service (spec.md §4.F
// "Aggregate"). The injected value is always a fresh copy of the list.
type Aggregate struct {
	base

	mu       sync.Mutex
	order    []int64
	byID     map[int64]*registry.Reference
	services map[int64]any
	bound    bool
}

var (
	_ handler.Handler         = (*Aggregate)(nil)
	_ handler.Starter         = (*Aggregate)(nil)
	_ handler.Stopper         = (*Aggregate)(nil)
	_ handler.ValidityChecker = (*Aggregate)(nil)
)

// NewAggregate builds an Aggregate dependency handler.
func NewAggregate(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) *Aggregate {
	a := &Aggregate{
		byID:     make(map[int64]*registry.Reference),
		services: make(map[int64]any),
	}
	a.base = newBase(req, ctx, binder, a)
	return a
}

func (a *Aggregate) IsValid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order) > 0 || a.req.Optional
}

// snapshotLocked builds a fresh []any copy of the bound services in
// ranking/registration order. Caller must hold a.mu.
func (a *Aggregate) snapshotLocked() []any {
	out := make([]any, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.services[id])
	}
	return out
}

func (a *Aggregate) onArrival(ref *registry.Reference) {
	a.mu.Lock()
	if _, exists := a.byID[ref.ID()]; exists {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	svc, err := a.ctx.GetService(ref)
	if err != nil {
		return
	}

	a.mu.Lock()
	if _, exists := a.byID[ref.ID()]; exists {
		a.mu.Unlock()
		safeUnget(a.ctx, ref)
		return
	}
	old := a.snapshotLocked()
	a.byID[ref.ID()] = ref
	a.services[ref.ID()] = svc
	a.order = append(a.order, ref.ID())
	newList := a.snapshotLocked()
	wasBound := a.bound
	a.bound = true
	a.mu.Unlock()

	if wasBound {
		a.bind.Update(a.req.ID, old, newList)
	} else {
		a.bind.Bind(a.req.ID, newList)
	}
}

func (a *Aggregate) onDeparture(ref *registry.Reference) {
	a.mu.Lock()
	if _, exists := a.byID[ref.ID()]; !exists {
		a.mu.Unlock()
		return
	}
	old := a.snapshotLocked()
	delete(a.byID, ref.ID())
	delete(a.services, ref.ID())
	for i, id := range a.order {
		if id == ref.ID() {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	newList := a.snapshotLocked()
	becameEmpty := len(a.order) == 0
	if becameEmpty && !a.req.Optional {
		a.bound = false
	}
	a.mu.Unlock()

	if becameEmpty && !a.req.Optional {
		a.bind.Unbind(a.req.ID)
	} else {
		a.bind.Update(a.req.ID, old, newList)
	}
	safeUnget(a.ctx, ref)
}

// AggregateInner adapts NewAggregate to the InnerFactory shape
// Variable-filter expects.
func AggregateInner(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) innerDependency {
	return NewAggregate(req, ctx, binder)
}

func (a *Aggregate) onModified(ref *registry.Reference) {
	a.mu.Lock()
	_, exists := a.byID[ref.ID()]
	a.mu.Unlock()
	if !exists {
		a.onArrival(ref)
	}
}
