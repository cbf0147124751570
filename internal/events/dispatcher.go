package events

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/ldap"
)

// ServiceListener receives service events.
type ServiceListener interface {
	ServiceChanged(event ServiceEvent)
}

// BundleListener receives bundle events.
type BundleListener interface {
	BundleChanged(event BundleEvent)
}

// FrameworkStopListener is notified right before the framework stops.
type FrameworkStopListener interface {
	FrameworkStopping()
}

// ErrorLogger receives exceptions raised by user listener/handler callbacks;
// the dispatcher never lets a panic escape a notification.
type ErrorLogger interface {
	Error(subsystem string, err error, messageFmt string, args ...any)
}

type svcListenerEntry struct {
	context       any
	listener      ServiceListener
	specification string // "" means "any specification"
	filter        ldap.Expr
}

// Dispatcher routes bundle/service events to listeners and applies listener
// hooks (spec.md §4.C). Three independent listener sets, each protected by
// its own mutex, as spec.md §5 "Lock discipline" requires.
type Dispatcher struct {
	logger ErrorLogger

	bndMu        sync.Mutex
	bndListeners []BundleListener

	svcMu        sync.Mutex
	svcListeners map[string][]*svcListenerEntry
	svcByID      map[ServiceListener]*svcListenerEntry

	fwMu        sync.Mutex
	fwListeners []FrameworkStopListener

	hooksMu sync.Mutex
	hooks   []ListenerHook
}

// New creates an empty dispatcher. A nil logger falls back to a discarding
// logger.
func New(logger ErrorLogger) *Dispatcher {
	if logger == nil {
		logger = discardLogger{}
	}
	return &Dispatcher{
		logger:       logger,
		svcListeners: make(map[string][]*svcListenerEntry),
		svcByID:      make(map[ServiceListener]*svcListenerEntry),
	}
}

type discardLogger struct{}

func (discardLogger) Error(string, error, string, ...any) {}

// AddBundleListener registers a bundle listener; returns false if already
// registered.
func (d *Dispatcher) AddBundleListener(l BundleListener) bool {
	d.bndMu.Lock()
	defer d.bndMu.Unlock()
	for _, existing := range d.bndListeners {
		if existing == l {
			return false
		}
	}
	d.bndListeners = append(d.bndListeners, l)
	return true
}

// RemoveBundleListener unregisters a bundle listener.
func (d *Dispatcher) RemoveBundleListener(l BundleListener) bool {
	d.bndMu.Lock()
	defer d.bndMu.Unlock()
	for i, existing := range d.bndListeners {
		if existing == l {
			d.bndListeners = append(d.bndListeners[:i], d.bndListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddFrameworkStopListener registers a framework-stop listener.
func (d *Dispatcher) AddFrameworkStopListener(l FrameworkStopListener) bool {
	d.fwMu.Lock()
	defer d.fwMu.Unlock()
	for _, existing := range d.fwListeners {
		if existing == l {
			return false
		}
	}
	d.fwListeners = append(d.fwListeners, l)
	return true
}

// RemoveFrameworkStopListener unregisters a framework-stop listener.
func (d *Dispatcher) RemoveFrameworkStopListener(l FrameworkStopListener) bool {
	d.fwMu.Lock()
	defer d.fwMu.Unlock()
	for i, existing := range d.fwListeners {
		if existing == l {
			d.fwListeners = append(d.fwListeners[:i], d.fwListeners[i+1:]...)
			return true
		}
	}
	return false
}

// AddServiceListener registers a service listener for a specification
// ("" for any) with an optional filter string (spec.md §4.D "listeners
// added through it"). context is an opaque key (typically the owning
// BundleContext) used by hooks to group listeners.
func (d *Dispatcher) AddServiceListener(context any, l ServiceListener, specification, filterString string) (bool, error) {
	expr, err := ldap.Parse(filterString)
	if err != nil {
		return false, err
	}

	d.svcMu.Lock()
	defer d.svcMu.Unlock()

	if _, exists := d.svcByID[l]; exists {
		return false, nil
	}

	entry := &svcListenerEntry{context: context, listener: l, specification: specification, filter: expr}
	d.svcByID[l] = entry
	d.svcListeners[specification] = append(d.svcListeners[specification], entry)
	return true, nil
}

// RemoveServiceListener unregisters a service listener.
func (d *Dispatcher) RemoveServiceListener(l ServiceListener) bool {
	d.svcMu.Lock()
	defer d.svcMu.Unlock()

	entry, exists := d.svcByID[l]
	if !exists {
		return false
	}
	delete(d.svcByID, l)

	list := d.svcListeners[entry.specification]
	for i, e := range list {
		if e == entry {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.svcListeners, entry.specification)
	} else {
		d.svcListeners[entry.specification] = list
	}
	return true
}

// RemoveServiceListenersForContext removes every listener registered
// through the given context, mirroring spec.md §4.D: "listeners added
// through [a BundleContext] are removed automatically when the bundle
// stops".
func (d *Dispatcher) RemoveServiceListenersForContext(context any) {
	d.svcMu.Lock()
	var toRemove []ServiceListener
	for l, e := range d.svcByID {
		if e.context == context {
			toRemove = append(toRemove, l)
		}
	}
	d.svcMu.Unlock()

	for _, l := range toRemove {
		d.RemoveServiceListener(l)
	}
}

// AddListenerHook registers a well-known hook that may shrink (never grow)
// the candidate listener set for an in-flight service event.
func (d *Dispatcher) AddListenerHook(h ListenerHook) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	d.hooks = append(d.hooks, h)
}

// FireBundleEvent notifies bundle listeners synchronously, in snapshot
// order (spec.md §4.C "Ordering").
func (d *Dispatcher) FireBundleEvent(event BundleEvent) {
	d.bndMu.Lock()
	snapshot := make([]BundleListener, len(d.bndListeners))
	copy(snapshot, d.bndListeners)
	d.bndMu.Unlock()

	for _, l := range snapshot {
		d.safeCall(func() { l.BundleChanged(event) }, "bundle listener")
	}
}

// FireFrameworkStopping notifies framework-stop listeners synchronously.
func (d *Dispatcher) FireFrameworkStopping() {
	d.fwMu.Lock()
	snapshot := make([]FrameworkStopListener, len(d.fwListeners))
	copy(snapshot, d.fwListeners)
	d.fwMu.Unlock()

	for _, l := range snapshot {
		d.safeCall(func() { l.FrameworkStopping() }, "framework stop listener")
	}
}

// FireServiceEvent delivers a service event following spec.md §4.C:
//  1. collect candidates by each of the event's objectClass entries plus the
//     "any spec" bucket, de-duplicated;
//  2. let listener hooks shrink the candidate set;
//  3. per surviving listener, evaluate its filter, downgrading an
//     already-failing MODIFIED to MODIFIED_ENDMATCH when the previous
//     properties matched, or dropping it silently when neither did;
//  4. invoke; exceptions are logged and do not stop delivery.
func (d *Dispatcher) FireServiceEvent(event ServiceEvent) {
	objectClasses := objectClassesOf(event.Properties[objectClassKey()])

	d.svcMu.Lock()
	seen := make(map[ServiceListener]*svcListenerEntry)
	for _, spec := range objectClasses {
		for _, e := range d.svcListeners[spec] {
			seen[e.listener] = e
		}
	}
	for _, e := range d.svcListeners[""] {
		seen[e.listener] = e
	}
	candidates := make(map[any][]ServiceListener)
	for l, e := range seen {
		candidates[e.context] = append(candidates[e.context], l)
	}
	d.svcMu.Unlock()

	d.applyHooks(event, candidates)

	endmatch := event
	endmatch.Kind = ServiceModifiedEndmatch
	isModified := event.Kind == ServiceModified

	for _, listeners := range candidates {
		for _, l := range listeners {
			entry := seen[l]
			toSend := event

			if entry.filter != nil {
				props := propsAdapter(event.Properties)
				if !entry.filter.Matches(props) {
					if isModified && event.PreviousProperties != nil && entry.filter.Matches(propsAdapter(event.PreviousProperties)) {
						toSend = endmatch
					} else {
						continue
					}
				}
			}

			ll := l
			ev := toSend
			d.safeCall(func() { ll.ServiceChanged(ev) }, "service listener")
		}
	}
}

func (d *Dispatcher) applyHooks(event ServiceEvent, candidates map[any][]ServiceListener) {
	d.hooksMu.Lock()
	hooks := make([]ListenerHook, len(d.hooks))
	copy(hooks, d.hooks)
	d.hooksMu.Unlock()

	for _, h := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("EventDispatcher", nil, "listener hook panicked: %v", r)
				}
			}()
			h.Event(event, candidates)
		}()
	}
}

func (d *Dispatcher) safeCall(fn func(), kind string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("EventDispatcher", nil, "%s panicked: %v", kind, r)
		}
	}()
	fn()
}

// objectClassKey exists so this file doesn't need to import
// internal/property just for one constant string; kept here rather than
// hardcoding "objectClass" inline at the call site above.
func objectClassKey() string { return "objectClass" }

// objectClassesOf normalizes a ServiceEvent's objectClass property, which
// internal/registry stores as []any (internal/property.Map's generic list
// representation) but callers that build a ServiceEvent by hand may set as
// []string.
func objectClassesOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

type mapProps map[string]any

func (m mapProps) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func propsAdapter(m map[string]any) ldap.Properties {
	return mapProps(m)
}
