// Package events implements the event dispatcher: independent bundle,
// service and framework-stop listener sets, each protected by its own mutex
// (spec.md §4.C "Event Dispatcher").
//
// Grounded on pelix/internals/events.py and the EventDispatcher section of
// pelix/internals/registry.py (original_source), rewritten synchronously per
// spec.md §9 "Coroutine remnants". Listeners are small Go interfaces called
// directly and synchronously, in place of Python's duck-typed listener
// objects; no channels are involved.
package events

// BundleEventKind enumerates bundle lifecycle notifications (spec.md §3
// "BundleEvent").
type BundleEventKind int

const (
	BundleInstalled BundleEventKind = iota
	BundleStarting
	BundleStarted
	BundleStopping
	BundleStoppingPreclean
	BundleStopped
	BundleUpdated
	BundleUpdateBegin
	BundleUpdateFailed
	BundleUninstalled
)

func (k BundleEventKind) String() string {
	switch k {
	case BundleInstalled:
		return "INSTALLED"
	case BundleStarting:
		return "STARTING"
	case BundleStarted:
		return "STARTED"
	case BundleStopping:
		return "STOPPING"
	case BundleStoppingPreclean:
		return "STOPPING_PRECLEAN"
	case BundleStopped:
		return "STOPPED"
	case BundleUpdated:
		return "UPDATED"
	case BundleUpdateBegin:
		return "UPDATE_BEGIN"
	case BundleUpdateFailed:
		return "UPDATE_FAILED"
	case BundleUninstalled:
		return "UNINSTALLED"
	default:
		return "UNKNOWN"
	}
}

// ServiceEventKind enumerates service notifications (spec.md §3
// "ServiceEvent").
type ServiceEventKind int

const (
	ServiceRegistered ServiceEventKind = iota
	ServiceModified
	ServiceModifiedEndmatch
	ServiceUnregistering
)

func (k ServiceEventKind) String() string {
	switch k {
	case ServiceRegistered:
		return "REGISTERED"
	case ServiceModified:
		return "MODIFIED"
	case ServiceModifiedEndmatch:
		return "MODIFIED_ENDMATCH"
	case ServiceUnregistering:
		return "UNREGISTERING"
	default:
		return "UNKNOWN"
	}
}

// ServiceRef is the minimal view a ServiceEvent needs from a service
// reference; internal/registry.Reference satisfies it. Kept narrow so this
// package never imports internal/registry (registry imports events, not the
// reverse).
type ServiceRef interface {
	ID() int64
	Property(name string) (any, bool)
	PropertyKeys() []string
}

// ServiceEvent is an immutable record of a service state transition
// (spec.md §3 "ServiceEvent"). Properties is the snapshot taken when the
// event was created; PreviousProperties is populated only for MODIFIED and
// MODIFIED_ENDMATCH.
type ServiceEvent struct {
	Kind               ServiceEventKind
	Reference          ServiceRef
	Properties         map[string]any
	PreviousProperties map[string]any
}

// Bundle is the minimal view a BundleEvent needs.
type Bundle interface {
	ID() int64
	SymbolicName() string
}

// BundleEvent is an immutable record of a bundle lifecycle transition
// (spec.md §3 "BundleEvent").
type BundleEvent struct {
	Kind   BundleEventKind
	Bundle Bundle
}
