// Package handler defines the pluggable-behavior protocol component
// instances are built from (spec.md §4.E "Handler Framework"). A handler
// implements only the hooks it cares about; Go has no notion of an
// optionally-implemented interface method, so each hook is its own small
// interface and callers type-assert for it, the same shape
// internal/events.ListenerHook uses for its single optional hook.
//
// Grounded on pelix/ipopo/handlers/*.py (original_source) and on spec.md §9
// "Dynamic dispatch on component instances": the source patches accessor
// methods onto user classes at `manipulate` time; here a Handler is instead
// an opaque collaborator invoked through this fixed set of typed hooks.
package handler

import "github.com/tcalmant/ipopo-sub000/internal/events"

// Kind classifies what a handler does, per spec.md §4.E.
type Kind int

const (
	KindProperties Kind = iota
	KindDependency
	KindServiceProvider
)

func (k Kind) String() string {
	switch k {
	case KindProperties:
		return "properties"
	case KindDependency:
		return "dependency"
	case KindServiceProvider:
		return "service_provider"
	default:
		return "unknown"
	}
}

// Handler is the minimum every handler implements: its kind. Every other
// hook is optional and discovered via a type assertion against the
// interfaces below.
type Handler interface {
	Kind() Kind
}

// Manipulator is the hook for a handler's attachment to a fresh instance.
// Neither internal/component nor internal/ipopo calls Manipulate.
type Manipulator interface {
	Manipulate(instance Instance) error
}

// Starter/Stopper/Clearer mirror the handler's own lifecycle, independent of
// the component's.
type Starter interface{ Start() error }
type Stopper interface{ Stop() error }
type Clearer interface{ Clear() }

// PreValidator/PostValidator/PreInvalidator/PostInvalidator bracket the
// component's own validate/invalidate callbacks.
type PreValidator interface{ PreValidate() error }
type PostValidator interface{ PostValidate() error }
type PreInvalidator interface{ PreInvalidate() error }
type PostInvalidator interface{ PostInvalidate() error }

// ControllerChangeListener is notified when a named controller flips
// true/false (spec.md §4.G "Controller gating").
type ControllerChangeListener interface {
	OnControllerChange(name string, value bool)
}

// PropertyChangeListener is the hook for a public property change.
// ComponentContext.Set and Merge do not notify it, and neither
// internal/component nor internal/ipopo calls OnPropertyChange.
type PropertyChangeListener interface {
	OnPropertyChange(name string, oldValue, newValue any)
}

// EventChecker lets a handler report whether a service event is relevant to
// it. Neither internal/component nor internal/ipopo calls CheckEvent.
type EventChecker interface {
	CheckEvent(event events.ServiceEvent) bool
}

// ValidityChecker reports whether the handler currently considers itself
// satisfied; the instance manager ANDs this across all handlers to decide
// whether the component may validate (spec.md §4.G "all handlers valid").
type ValidityChecker interface {
	IsValid() bool
}

// Binder is the narrow view of a component instance's field-injection table
// that dependency handlers push bind/update/unbind notifications through
// (spec.md §4.G "Binding life cycle", §9 "opaque handle plus table of typed
// hooks" in place of patched accessor methods). internal/component's
// StoredInstance implements this.
type Binder interface {
	Bind(requirementID string, service any)
	Update(requirementID string, old, new any)
	Unbind(requirementID string)
}

// Instance is the minimal read-only view of a component instance a handler
// needs, e.g. at Manipulate time.
type Instance interface {
	Name() string
	FactoryName() string
}

// Factory produces the handler set backing one specific instance. It is
// itself registered in the service registry under a well-known
// specification and keyed by an opaque ID (spec.md §4.E "handler factory").
type Factory interface {
	ID() string
	GetHandlers(instance Instance) ([]Handler, error)
}
