package dependency

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// BroadcastProxy is injected in place of a single service instance
// (spec.md §4.F "Broadcast"): calling Invoke fans out to every currently
// bound service concurrently.
type BroadcastProxy struct {
	b *Broadcast
}

// Invoke calls fn against every bound service concurrently. Every call runs
// even if another fails; the first failure is returned, or, when the handler
// was built with suppressErrors, it is handed to the broadcast's logger (if
// any) and nil is returned.
func (p *BroadcastProxy) Invoke(fn func(service any) error) error {
	p.b.mu.Lock()
	services := make([]any, 0, len(p.b.values))
	for _, id := range p.b.order {
		services = append(services, p.b.values[id])
	}
	p.b.mu.Unlock()

	g := new(errgroup.Group)
	for _, svc := range services {
		svc := svc
		g.Go(func() error { return fn(svc) })
	}
	err := g.Wait()
	if err != nil && p.b.suppressErrors {
		if p.b.logger != nil {
			p.b.logger("broadcast dependency", err)
		}
		return nil
	}
	return err
}

// Broadcast holds a set of bound services and injects a BroadcastProxy
// (spec.md §4.F "Broadcast").
type Broadcast struct {
	base

	suppressErrors bool
	logger         func(subsystem string, err error)

	mu     sync.Mutex
	order  []int64
	byID   map[int64]*registry.Reference
	values map[int64]any
}

var (
	_ handler.Handler         = (*Broadcast)(nil)
	_ handler.Starter         = (*Broadcast)(nil)
	_ handler.Stopper         = (*Broadcast)(nil)
	_ handler.ValidityChecker = (*Broadcast)(nil)
)

// NewBroadcast builds a Broadcast dependency handler. logger, if non-nil,
// receives suppressed per-callee errors.
func NewBroadcast(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder, suppressErrors bool, logger func(string, error)) *Broadcast {
	b := &Broadcast{
		suppressErrors: suppressErrors,
		logger:         logger,
		byID:           make(map[int64]*registry.Reference),
		values:         make(map[int64]any),
	}
	b.base = newBase(req, ctx, binder, b)
	return b
}

func (b *Broadcast) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order) > 0 || b.req.Optional
}

func (b *Broadcast) onArrival(ref *registry.Reference) {
	b.mu.Lock()
	if _, exists := b.byID[ref.ID()]; exists {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	svc, err := b.ctx.GetService(ref)
	if err != nil {
		return
	}

	b.mu.Lock()
	if _, exists := b.byID[ref.ID()]; exists {
		b.mu.Unlock()
		safeUnget(b.ctx, ref)
		return
	}
	first := len(b.order) == 0
	b.byID[ref.ID()] = ref
	b.values[ref.ID()] = svc
	b.order = append(b.order, ref.ID())
	b.mu.Unlock()

	if first {
		b.bind.Bind(b.req.ID, &BroadcastProxy{b: b})
	}
}

func (b *Broadcast) onDeparture(ref *registry.Reference) {
	b.mu.Lock()
	if _, exists := b.byID[ref.ID()]; !exists {
		b.mu.Unlock()
		return
	}
	delete(b.byID, ref.ID())
	delete(b.values, ref.ID())
	for i, id := range b.order {
		if id == ref.ID() {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	empty := len(b.order) == 0
	b.mu.Unlock()

	if empty && !b.req.Optional {
		b.bind.Unbind(b.req.ID)
	}
	safeUnget(b.ctx, ref)
}

func (b *Broadcast) onModified(ref *registry.Reference) {
	b.mu.Lock()
	_, exists := b.byID[ref.ID()]
	b.mu.Unlock()
	if !exists {
		b.onArrival(ref)
	}
}
