package dependency

import (
	"sync"
	"time"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// TemporalProxy is injected in place of the bound service (spec.md §4.F
// "Temporal"): a call blocks up to the handler's timeout waiting for a
// replacement if the bound service has just departed.
type TemporalProxy struct {
	t *Temporal
}

// Invoke blocks, if necessary, until a replacement service is bound or the
// grace period expires, then calls fn against whichever service is current.
// Grounded on pelix/ipopo/handlers/temporal.py's _TemporalServiceSubstitute.
func (p *TemporalProxy) Invoke(fn func(service any) error) error {
	t := p.t
	t.mu.Lock()
	for t.service == nil && t.pending {
		t.cond.Wait()
	}
	svc := t.service
	timedOut := svc == nil
	t.mu.Unlock()

	if timedOut {
		return &ErrTemporalTimeout{RequirementID: t.req.ID}
	}
	return fn(svc)
}

// Temporal behaves like Simple, except that losing the bound service opens
// a grace period instead of unbinding immediately: the component stays
// valid and proxy calls block until a replacement arrives or the timeout
// expires (spec.md §4.F "Temporal", §8 scenario S4).
type Temporal struct {
	base

	timeout time.Duration

	mu         sync.Mutex
	cond       *sync.Cond
	bound      *registry.Reference
	service    any
	pending    bool
	generation int
}

var (
	_ handler.Handler         = (*Temporal)(nil)
	_ handler.Starter         = (*Temporal)(nil)
	_ handler.Stopper         = (*Temporal)(nil)
	_ handler.ValidityChecker = (*Temporal)(nil)
)

// NewTemporal builds a Temporal dependency handler with the given grace
// period.
func NewTemporal(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder, timeout time.Duration) *Temporal {
	t := &Temporal{timeout: timeout}
	t.cond = sync.NewCond(&t.mu)
	t.base = newBase(req, ctx, binder, t)
	return t
}

func (t *Temporal) IsValid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bound != nil || t.pending || t.req.Optional
}

func (t *Temporal) onArrival(ref *registry.Reference) {
	t.mu.Lock()
	if t.bound != nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	svc, err := t.ctx.GetService(ref)
	if err != nil {
		return
	}

	t.mu.Lock()
	if t.bound != nil {
		t.mu.Unlock()
		safeUnget(t.ctx, ref)
		return
	}
	wasPending := t.pending
	t.pending = false
	t.generation++
	t.bound = ref
	t.service = svc
	t.cond.Broadcast()
	t.mu.Unlock()

	if !wasPending {
		t.bind.Bind(t.req.ID, &TemporalProxy{t: t})
	}
	// if wasPending, blocked Invoke calls were unblocked above and the
	// proxy transparently resumed with the new service; no bind callback,
	// no invalidation (spec.md §4.F "switches without invalidation").
}

func (t *Temporal) onDeparture(ref *registry.Reference) {
	t.mu.Lock()
	if t.bound == nil || t.bound.ID() != ref.ID() {
		t.mu.Unlock()
		return
	}
	t.bound = nil
	t.service = nil
	t.pending = true
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	safeUnget(t.ctx, ref)

	time.AfterFunc(t.timeout, func() { t.onTimeout(gen) })
}

func (t *Temporal) onTimeout(gen int) {
	t.mu.Lock()
	if !t.pending || t.generation != gen {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.cond.Broadcast()
	t.mu.Unlock()

	t.bind.Unbind(t.req.ID)
}

func (t *Temporal) onModified(ref *registry.Reference) {
	t.mu.Lock()
	boundHere := t.bound != nil && t.bound.ID() == ref.ID()
	t.mu.Unlock()
	if !boundHere {
		t.onArrival(ref)
	}
}
