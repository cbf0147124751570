// Package dependency implements the seven dependency-handler kinds
// (spec.md §4.F): Simple, Aggregate, Best, Map, Broadcast, Temporal and
// Variable-filter. All share target Requirement, owning bundle context and
// a mutex, subscribe to the dispatcher with their full filter, and react to
// REGISTERED, UNREGISTERING, MODIFIED_ENDMATCH (departure) and MODIFIED
// (possible arrival).
//
// Grounded on pelix/ipopo/handlers/simple.py, .../temporal.py,
// .../_MapDependency and .../_BroadcastDependency (original_source), and on
// giantswarm-muster's use of golang.org/x/sync for bounded concurrent
// fan-out (borrowed here for Broadcast's per-callee invocation).
package dependency

import (
	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// reactor is the subtype-specific half of a dependency handler: how it
// reacts to a candidate's arrival, departure or in-place modification. base
// owns subscription and event-kind dispatch; each concrete handler supplies
// a reactor (itself).
type reactor interface {
	onArrival(ref *registry.Reference)
	onDeparture(ref *registry.Reference)
	onModified(ref *registry.Reference)
}

// base is embedded by every dependency handler. It owns subscription,
// Kind() and ServiceChanged() dispatch; each concrete handler implements
// reactor and adds its own IsValid() (the validity rule differs per kind).
type base struct {
	req  compcontext.Requirement
	ctx  *bundle.Context
	bind handler.Binder

	react reactor
}

func newBase(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder, react reactor) base {
	return base{req: req, ctx: ctx, bind: binder, react: react}
}

// Start subscribes to the dispatcher and feeds every currently-registered
// match through onArrival, mirroring pelix's "attach then prime" sequence.
func (b *base) Start() error {
	if _, err := b.ctx.AddServiceListener(b, b.req.Specification, b.req.Filter); err != nil {
		return err
	}
	refs, err := b.ctx.FindReferences(b.req.Specification, b.req.Filter)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		b.react.onArrival(ref)
	}
	return nil
}

// Stop unsubscribes; it does not unbind, so the handler's current bindings
// stay in place after Stop.
func (b *base) Stop() error {
	b.ctx.RemoveServiceListener(b)
	return nil
}

// Kind every dependency handler reports (spec.md §4.E kind declaration).
func (b *base) Kind() handler.Kind { return handler.KindDependency }

// ServiceChanged dispatches by event kind to the reactor (spec.md §4.F
// "react to REGISTERED, UNREGISTERING, MODIFIED_ENDMATCH ... and MODIFIED").
func (b *base) ServiceChanged(event events.ServiceEvent) {
	ref, ok := event.Reference.(*registry.Reference)
	if !ok {
		return
	}
	switch event.Kind {
	case events.ServiceRegistered:
		b.react.onArrival(ref)
	case events.ServiceUnregistering, events.ServiceModifiedEndmatch:
		b.react.onDeparture(ref)
	case events.ServiceModified:
		b.react.onModified(ref)
	}
}

// ErrTemporalTimeout is returned by a Temporal proxy call that waited past
// its grace period without a replacement service appearing (spec.md §4.F
// "Temporal", §8 scenario S4).
type ErrTemporalTimeout struct {
	RequirementID string
}

func (e *ErrTemporalTimeout) Error() string {
	return "temporal dependency timed out: " + e.RequirementID
}

// safeUnget releases a reference's usage without surfacing an error from a
// handler callback. UngetService errors (an unknown service, or a
// prototype-scope reference, which UngetService rejects) are dropped; a
// repeated release is not an error, since the registry's usage counter
// never goes below zero.
func safeUnget(ctx *bundle.Context, ref *registry.Reference) {
	_, _ = ctx.UngetService(ref)
}
