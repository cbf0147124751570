// Package ipopo is the component-factory facade: it registers factories,
// instantiates and kills components, and notifies anything watching for new
// factories (the waiting list) when one is registered (spec.md §4.H,
// and the "iPOPO service" referenced throughout §4.G/§4.H).
//
// Grounded on pelix/ipopo/core.py's _IPopoService (original_source) as the
// single entry point tying the handler framework, instance manager and
// waiting list together.
package ipopo

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/component"
	"github.com/tcalmant/ipopo-sub000/internal/dependency"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
)

// ErrUnknownFactory is returned by Instantiate when factoryName was never
// registered.
type ErrUnknownFactory struct{ FactoryName string }

func (e *ErrUnknownFactory) Error() string { return "unknown component factory: " + e.FactoryName }

// ErrDuplicateInstance is returned by Instantiate when instanceName is
// already running.
type ErrDuplicateInstance struct{ InstanceName string }

func (e *ErrDuplicateInstance) Error() string { return "instance already running: " + e.InstanceName }

// ErrDuplicateFactory is returned by RegisterFactory when Name is already
// registered.
type ErrDuplicateFactory struct{ FactoryName string }

func (e *ErrDuplicateFactory) Error() string { return "factory already registered: " + e.FactoryName }

// HandlerBuilder builds the handler set for one instance given its
// requirements, owning bundle context and binder.
type HandlerBuilder func(reqs []compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) ([]handler.Handler, error)

// Factory is a registered component blueprint (spec.md §4.E "handler
// factory", generalized here to the whole component, not just one
// handler kind).
type Factory struct {
	Name          string
	Requirements  []compcontext.Requirement
	Properties    map[string]any
	NewUserObject func() any
	BuildHandlers HandlerBuilder // nil uses DefaultHandlers
}

// DefaultHandlers builds one Simple or Aggregate dependency handler per
// requirement, depending on its Aggregate flag.
func DefaultHandlers(reqs []compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) ([]handler.Handler, error) {
	handlers := make([]handler.Handler, 0, len(reqs))
	for _, req := range reqs {
		if req.Aggregate {
			handlers = append(handlers, dependency.NewAggregate(req, ctx, binder))
		} else {
			handlers = append(handlers, dependency.NewSimple(req, ctx, binder))
		}
	}
	return handlers, nil
}

// FactoryListener is notified when a new factory is registered; the
// waiting list satisfies this structurally via its FactoryRegistered
// method.
type FactoryListener interface {
	FactoryRegistered(factoryName string)
}

// instanceBinder defers to a StoredInstance created after the handler set
// it is itself handed to (handlers need a Binder before the instance they
// back exists).
type instanceBinder struct {
	inst *component.StoredInstance
}

func (b *instanceBinder) Bind(requirementID string, service any)    { b.inst.Bind(requirementID, service) }
func (b *instanceBinder) Update(requirementID string, old, new any) { b.inst.Update(requirementID, old, new) }
func (b *instanceBinder) Unbind(requirementID string)               { b.inst.Unbind(requirementID) }

// Service is the iPOPO facade: factory registry plus running-instance
// table.
type Service struct {
	bundleCtx *bundle.Context

	onFrameworkStop func(reason string)

	mu        sync.Mutex
	factories map[string]*Factory
	instances map[string]*component.StoredInstance
	listeners []FactoryListener
}

// New builds an empty facade bound to bundleCtx, whose bundle context is
// used by every dependency handler instances create.
func New(bundleCtx *bundle.Context) *Service {
	return &Service{
		bundleCtx: bundleCtx,
		factories: make(map[string]*Factory),
		instances: make(map[string]*component.StoredInstance),
	}
}

// SetFrameworkStopHandler installs the callback run when a component
// demands a framework stop (spec.md §4.G "Callback safety").
func (s *Service) SetFrameworkStopHandler(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrameworkStop = fn
}

// AddFactoryListener registers l to be notified of future factory
// registrations.
func (s *Service) AddFactoryListener(l FactoryListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RegisterFactory adds a component factory and notifies every
// FactoryListener (spec.md §4.H "iPOPO-factory-registered event").
func (s *Service) RegisterFactory(f *Factory) error {
	s.mu.Lock()
	if _, exists := s.factories[f.Name]; exists {
		s.mu.Unlock()
		return &ErrDuplicateFactory{FactoryName: f.Name}
	}
	s.factories[f.Name] = f
	listeners := append([]FactoryListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.FactoryRegistered(f.Name)
	}
	return nil
}

// Instantiate creates and starts one component instance (spec.md §4.G/§4.H).
func (s *Service) Instantiate(factoryName, instanceName string, properties map[string]any) (*component.StoredInstance, error) {
	s.mu.Lock()
	f, known := s.factories[factoryName]
	if !known {
		s.mu.Unlock()
		return nil, &ErrUnknownFactory{FactoryName: factoryName}
	}
	if _, running := s.instances[instanceName]; running {
		s.mu.Unlock()
		return nil, &ErrDuplicateInstance{InstanceName: instanceName}
	}
	onStop := s.onFrameworkStop
	s.mu.Unlock()

	ctx := compcontext.New(factoryName, instanceName, f.Properties, properties)

	binder := &instanceBinder{}
	build := f.BuildHandlers
	if build == nil {
		build = DefaultHandlers
	}
	handlers, err := build(f.Requirements, s.bundleCtx, binder)
	if err != nil {
		return nil, err
	}

	inst := component.New(factoryName, instanceName, ctx, f.NewUserObject(), handlers, func() {
		s.mu.Lock()
		delete(s.instances, instanceName)
		s.mu.Unlock()
	})
	binder.inst = inst
	if onStop != nil {
		inst.SetFrameworkStopHandler(onStop)
	}

	s.mu.Lock()
	s.instances[instanceName] = inst
	s.mu.Unlock()

	for _, h := range handlers {
		if starter, ok := h.(handler.Starter); ok {
			if err := starter.Start(); err != nil {
				inst.Kill()
				return nil, err
			}
		}
	}
	inst.CheckLifecycle()

	return inst, nil
}

// Kill stops and removes a running instance; a no-op if it is not running.
func (s *Service) Kill(instanceName string) {
	s.mu.Lock()
	inst, ok := s.instances[instanceName]
	s.mu.Unlock()
	if !ok {
		return
	}
	inst.Kill()
}

// Instance looks up a currently-running instance by name.
func (s *Service) Instance(instanceName string) (*component.StoredInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceName]
	return inst, ok
}

// WaitingAttempter adapts Service to the waiting package's Attempter
// interface without internal/ipopo importing internal/ipopo/waiting
// (kept a sub-package, not a dependency, to avoid the cycle: waiting
// imports this package's sibling descriptor package only).
type WaitingAttempter struct{ Service *Service }

// Instantiate discards the created instance, matching waiting.Attempter.
func (a WaitingAttempter) Instantiate(factoryName, instanceName string, properties map[string]any) error {
	_, err := a.Service.Instantiate(factoryName, instanceName, properties)
	return err
}
