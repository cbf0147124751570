// Package component implements the per-instance lifecycle state machine
// that sits at the centre of the component model (spec.md §4.G "Component
// Instance Manager"), composing the pluggable internal/handler set around a
// single StoredInstance.
//
// Grounded on pelix/ipopo/instance.py (original_source), rewritten around
// Go's lack of runtime class patching per spec.md §9: instead of injecting
// accessor methods onto the user object, StoredInstance exposes a fixed
// handler.Binder table and optional user-object callback interfaces
// (Validatable, Invalidatable, BindCallback, ...).
package component

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
)

// State is a StoredInstance's lifecycle state (spec.md §3 "StoredInstance").
type State int

const (
	StateInvalid State = iota
	StateValidating
	StateValid
	StateErroneous
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateValidating:
		return "validating"
	case StateValid:
		return "valid"
	case StateErroneous:
		return "erroneous"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Validatable/Invalidatable are the optional user-object lifecycle
// callbacks a component's generic validate/invalidate hooks dispatch to
// (spec.md §4.G "Callback safety").
type Validatable interface{ Validate() error }
type Invalidatable interface{ Invalidate() }

// BindCallback/UnbindCallback/UpdateCallback are the optional user-object
// callbacks invoked around a binding transition (spec.md §4.G "Binding life
// cycle"). Go has no per-field accessor patching, so the generic and
// per-field pelix hooks collapse into this single typed callback per
// requirement ID (spec.md §9).
type BindCallback interface {
	OnBind(requirementID string, service any)
}
type UnbindCallback interface {
	OnUnbind(requirementID string, service any)
}
type UpdateCallback interface {
	OnUpdate(requirementID string, old, new any)
}

// StoredInstance is the per-component record the instance manager drives
// (spec.md §3 "StoredInstance"). It implements handler.Instance and
// handler.Binder.
type StoredInstance struct {
	mu sync.Mutex

	factoryName string
	name        string
	ctx         *compcontext.ComponentContext
	userObject  any

	handlers []handler.Handler

	state       State
	errorTrace  string
	controllers map[string]bool
	bound       map[string]any

	onKilled        func()
	onFrameworkStop func(reason string)
}

var _ handler.Instance = (*StoredInstance)(nil)
var _ handler.Binder = (*StoredInstance)(nil)

// New builds a StoredInstance in the Invalid state. onKilled, if non-nil, is
// invoked once when the instance reaches StateKilled (used by the owning
// facade to drop bookkeeping).
func New(factoryName, name string, ctx *compcontext.ComponentContext, userObject any, handlers []handler.Handler, onKilled func()) *StoredInstance {
	return &StoredInstance{
		factoryName: factoryName,
		name:        name,
		ctx:         ctx,
		userObject:  userObject,
		handlers:    handlers,
		state:       StateInvalid,
		controllers: make(map[string]bool),
		bound:       make(map[string]any),
		onKilled:    onKilled,
	}
}

// SetFrameworkStopHandler installs the callback run when a Validate call
// fails with *ErrFrameworkStop and StopFramework is set (spec.md §4.G
// "Callback safety"); the owning facade uses it to request the framework
// actually stop.
func (s *StoredInstance) SetFrameworkStopHandler(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrameworkStop = fn
}

func (s *StoredInstance) Name() string        { return s.name }
func (s *StoredInstance) FactoryName() string  { return s.factoryName }
func (s *StoredInstance) Context() *compcontext.ComponentContext { return s.ctx }
func (s *StoredInstance) UserObject() any      { return s.userObject }

// State returns the current lifecycle state.
func (s *StoredInstance) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorTrace returns the formatted error recorded when the instance last
// became Erroneous.
func (s *StoredInstance) ErrorTrace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorTrace
}

// Handlers returns the handler set backing this instance.
func (s *StoredInstance) Handlers() []handler.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]handler.Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// Bind assigns requirementID's field value, invokes the generic and
// per-field bind callbacks, then re-checks lifecycle (spec.md §4.G "on bind
// the field is assigned... then the user's generic bind callback fires;
// then the per-field bind callback; then check_lifecycle").
func (s *StoredInstance) Bind(requirementID string, service any) {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return
	}
	s.bound[requirementID] = service
	s.mu.Unlock()

	if cb, ok := s.userObject.(BindCallback); ok {
		safeCall(func() { cb.OnBind(requirementID, service) })
	}
	s.CheckLifecycle()
}

// Update invokes the per-field and generic update callbacks for a bound
// service's property change (spec.md §4.G "On update: per-field update,
// then generic update").
func (s *StoredInstance) Update(requirementID string, old, new any) {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return
	}
	s.bound[requirementID] = new
	s.mu.Unlock()

	if cb, ok := s.userObject.(UpdateCallback); ok {
		safeCall(func() { cb.OnUpdate(requirementID, old, new) })
	}
}

// Unbind re-evaluates lifecycle *before* the callbacks run (so invalidation
// sees the old service still present), then runs the unbind callback, then
// clears the field (spec.md §4.G "Binding life cycle").
func (s *StoredInstance) Unbind(requirementID string) {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return
	}
	service := s.bound[requirementID]
	s.mu.Unlock()

	s.CheckLifecycle()

	if cb, ok := s.userObject.(UnbindCallback); ok {
		safeCall(func() { cb.OnUnbind(requirementID, service) })
	}

	s.mu.Lock()
	delete(s.bound, requirementID)
	s.mu.Unlock()
}

// BoundService returns the value currently injected for requirementID.
func (s *StoredInstance) BoundService(requirementID string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.bound[requirementID]
	return v, ok
}

// SetController records a named controller's boolean state and notifies
// every handler.ControllerChangeListener (spec.md §4.G "Controller
// gating").
func (s *StoredInstance) SetController(name string, value bool) {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return
	}
	prev, existed := s.controllers[name]
	s.controllers[name] = value
	handlers := append([]handler.Handler(nil), s.handlers...)
	s.mu.Unlock()

	if existed && prev == value {
		return
	}
	for _, h := range handlers {
		if l, ok := h.(handler.ControllerChangeListener); ok {
			safeCall(func() { l.OnControllerChange(name, value) })
		}
	}
}

// Controller reports a named controller's current value; absent
// controllers default to true (spec.md §4.G: publication requires the
// component valid and "the named controller (if any) is true").
func (s *StoredInstance) Controller(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.controllers[name]
	if !ok {
		return true
	}
	return v
}

// Kill moves the instance to the terminal Killed state. Safe to call
// multiple times; only the first call runs teardown (spec.md §8 invariant 7
// "A component never transitions from killed to any other state").
func (s *StoredInstance) Kill() {
	s.mu.Lock()
	if s.state == StateKilled {
		s.mu.Unlock()
		return
	}
	wasValid := s.state == StateValid
	s.state = StateKilled
	handlers := append([]handler.Handler(nil), s.handlers...)
	s.mu.Unlock()

	if wasValid {
		runInvalidationHooks(s.userObject, handlers)
	}
	for _, h := range handlers {
		if c, ok := h.(handler.Clearer); ok {
			safeCall(c.Clear)
		}
		if st, ok := h.(handler.Stopper); ok {
			safeCall(func() { _ = st.Stop() })
		}
	}
	if s.onKilled != nil {
		s.onKilled()
	}
}

func safeCall(fn func()) {
	defer func() { recover() }() //nolint:errcheck
	fn()
}

func runInvalidationHooks(userObject any, handlers []handler.Handler) {
	for _, h := range handlers {
		if p, ok := h.(handler.PreInvalidator); ok {
			safeCall(func() { _ = p.PreInvalidate() })
		}
	}
	if inv, ok := userObject.(Invalidatable); ok {
		safeCall(inv.Invalidate)
	}
	for _, h := range handlers {
		if p, ok := h.(handler.PostInvalidator); ok {
			safeCall(func() { _ = p.PostInvalidate() })
		}
	}
}
