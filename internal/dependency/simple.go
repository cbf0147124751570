package dependency

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// Simple binds at most one reference at a time (spec.md §4.F "Simple").
type Simple struct {
	base

	mu      sync.Mutex
	boundID int64
	bound   *registry.Reference
	service any
}

var (
	_ handler.Handler         = (*Simple)(nil)
	_ handler.Starter         = (*Simple)(nil)
	_ handler.Stopper         = (*Simple)(nil)
	_ handler.ValidityChecker = (*Simple)(nil)
)

// NewSimple builds a Simple dependency handler bound to binder under
// requirement ID req.ID.
func NewSimple(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) *Simple {
	s := &Simple{}
	s.base = newBase(req, ctx, binder, s)
	return s
}

func (s *Simple) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound != nil || s.req.Optional
}

func (s *Simple) onArrival(ref *registry.Reference) {
	s.mu.Lock()
	if s.bound != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	svc, err := s.ctx.GetService(ref)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.bound != nil {
		s.mu.Unlock()
		safeUnget(s.ctx, ref)
		return
	}
	s.bound = ref
	s.boundID = ref.ID()
	s.service = svc
	s.mu.Unlock()

	s.bind.Bind(s.req.ID, svc)
}

func (s *Simple) onDeparture(ref *registry.Reference) {
	s.mu.Lock()
	if s.bound == nil || s.bound.ID() != ref.ID() {
		s.mu.Unlock()
		return
	}
	old := s.service
	s.mu.Unlock()

	var replacement *registry.Reference
	if s.req.ImmediateRebind {
		replacement = s.findReplacement(ref.ID())
	}

	if replacement == nil {
		s.mu.Lock()
		s.bound = nil
		s.service = nil
		s.mu.Unlock()
		s.bind.Unbind(s.req.ID)
		safeUnget(s.ctx, ref)
		return
	}

	newSvc, err := s.ctx.GetService(replacement)
	if err != nil {
		s.mu.Lock()
		s.bound = nil
		s.service = nil
		s.mu.Unlock()
		s.bind.Unbind(s.req.ID)
		safeUnget(s.ctx, ref)
		return
	}

	s.mu.Lock()
	s.bound = replacement
	s.boundID = replacement.ID()
	s.service = newSvc
	s.mu.Unlock()

	s.bind.Update(s.req.ID, old, newSvc)
	safeUnget(s.ctx, ref)
}

func (s *Simple) onModified(ref *registry.Reference) {
	s.mu.Lock()
	alreadyBound := s.bound != nil && s.bound.ID() == ref.ID()
	s.mu.Unlock()
	if !alreadyBound {
		s.onArrival(ref)
	}
}

// SimpleInner adapts NewSimple to the InnerFactory shape Variable-filter
// expects.
func SimpleInner(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) innerDependency {
	return NewSimple(req, ctx, binder)
}

// findReplacement looks up the next best match excluding excludeID, used to
// implement immediate_rebind (spec.md §4.F "look up a replacement before
// publishing the departure").
func (s *Simple) findReplacement(excludeID int64) *registry.Reference {
	refs, err := s.ctx.FindReferences(s.req.Specification, s.req.Filter)
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
