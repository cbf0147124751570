package dependency

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// Best is Simple with reselection: on arrival of a strictly higher-ranked
// candidate it unbinds the current service and binds the newcomer
// (spec.md §4.F "Best").
type Best struct {
	base

	mu      sync.Mutex
	bound   *registry.Reference
	ranking int
	service any
}

var (
	_ handler.Handler         = (*Best)(nil)
	_ handler.Starter         = (*Best)(nil)
	_ handler.Stopper         = (*Best)(nil)
	_ handler.ValidityChecker = (*Best)(nil)
)

// NewBest builds a Best dependency handler.
func NewBest(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) *Best {
	b := &Best{}
	b.base = newBase(req, ctx, binder, b)
	return b
}

func (b *Best) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound != nil || b.req.Optional
}

func ranking(ref *registry.Reference) int {
	return ref.Properties().Ranking()
}

func (b *Best) onArrival(ref *registry.Reference) {
	rank := ranking(ref)

	b.mu.Lock()
	if b.bound != nil && rank <= b.ranking {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	svc, err := b.ctx.GetService(ref)
	if err != nil {
		return
	}

	b.mu.Lock()
	if b.bound != nil && rank <= b.ranking {
		b.mu.Unlock()
		safeUnget(b.ctx, ref)
		return
	}
	old := b.bound
	b.bound = ref
	b.ranking = rank
	b.service = svc
	b.mu.Unlock()

	if old == nil {
		b.bind.Bind(b.req.ID, svc)
	} else {
		b.bind.Unbind(b.req.ID)
		b.bind.Bind(b.req.ID, svc)
		safeUnget(b.ctx, old)
	}
}

func (b *Best) onDeparture(ref *registry.Reference) {
	b.mu.Lock()
	if b.bound == nil || b.bound.ID() != ref.ID() {
		b.mu.Unlock()
		return
	}
	b.bound = nil
	b.ranking = 0
	b.service = nil
	b.mu.Unlock()

	b.bind.Unbind(b.req.ID)
	safeUnget(b.ctx, ref)

	replacement := b.findBest(ref.ID())
	if replacement != nil {
		b.onArrival(replacement)
	}
}

func (b *Best) onModified(ref *registry.Reference) {
	b.mu.Lock()
	boundHere := b.bound != nil && b.bound.ID() == ref.ID()
	b.mu.Unlock()
	if boundHere {
		return
	}
	b.onArrival(ref)
}

func (b *Best) findBest(excludeID int64) *registry.Reference {
	refs, err := b.ctx.FindReferences(b.req.Specification, b.req.Filter)
	if err != nil {
		return nil
	}
	for _, ref := range refs {
		if ref.ID() != excludeID {
			return ref
		}
	}
	return nil
}
