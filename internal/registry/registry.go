package registry

import (
	"sort"
	"strconv"
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/ldap"
	"github.com/tcalmant/ipopo-sub000/internal/property"
)

// EventSink is the minimal surface the registry needs to publish service
// events; *events.Dispatcher satisfies it. A narrow interface here (rather
// than a concrete *events.Dispatcher field) keeps registry_test.go free to
// swap in a recording fake.
type EventSink interface {
	FireServiceEvent(event events.ServiceEvent)
}

// Registry is the synchronous, mutex-protected service registry (spec.md
// §4.B). One Registry exists per framework instance.
type Registry struct {
	mu sync.RWMutex

	nextID int64
	byID   map[int64]*Reference
	bySpec map[string][]*Reference // kept sorted per Reference.Less

	// pending holds references that have been hidden (e.g. by
	// HideBundleServices) but not yet finalized: they no longer appear in
	// FindReferences results but GetService/UngetService/SetProperties
	// still resolve them (spec.md §4.B "pending-unregister set").
	pending map[*Reference]struct{}

	factories map[*Reference]*factoryUsage

	sink EventSink
}

// New creates an empty registry publishing events through sink. A nil sink
// is legal; events are simply dropped.
func New(sink EventSink) *Registry {
	return &Registry{
		byID:      make(map[int64]*Reference),
		bySpec:    make(map[string][]*Reference),
		pending:   make(map[*Reference]struct{}),
		factories: make(map[*Reference]*factoryUsage),
		sink:      sink,
	}
}

func cloneProps(in map[string]any, bundleID, serviceID int64, scope string, objectClass []string) *property.Map {
	p := property.New()
	for k, v := range in {
		if k == property.ObjectClass || k == property.ServiceID || k == property.ServiceBundle || k == property.ServiceScope {
			continue
		}
		p.Set(k, v)
	}
	oc := make([]any, len(objectClass))
	for i, s := range objectClass {
		oc[i] = s
	}
	p.Set(property.ObjectClass, oc)
	p.Set(property.ServiceID, serviceID)
	p.Set(property.ServiceBundle, bundleID)
	p.Set(property.ServiceScope, scope)
	return p
}

// register indexes a new reference. The caller fires REGISTERED once the
// reference's factoryUsage is stored, so listeners can GetService it.
func (r *Registry) register(bundle Bundle, objectClass []string, props map[string]any, scope string) (*Reference, error) {
	if len(objectClass) == 0 {
		return nil, &ErrInvalidRegistration{Reason: "objectClass list is empty"}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	full := cloneProps(props, bundle.ID(), id, scope, objectClass)
	ref := newReference(bundle, id, full)

	r.byID[id] = ref
	for _, spec := range objectClass {
		r.bySpec[spec] = insertSorted(r.bySpec[spec], ref)
	}
	r.mu.Unlock()
	return ref, nil
}

// RegisterService publishes a plain singleton service instance and returns
// its Registration handle (callers retrieve the instance via GetService,
// matching the rest of the scope family).
func (r *Registry) RegisterService(bundle Bundle, objectClass []string, serviceObject any, props map[string]any) (*Registration, error) {
	ref, err := r.register(bundle, objectClass, props, property.ScopeSingleton)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	fu := newFactoryUsage()
	fu.instance = serviceObject
	r.factories[ref] = fu
	r.mu.Unlock()
	r.fireEvent(events.ServiceRegistered, ref, nil, nil)
	return &Registration{registry: r, ref: ref}, nil
}

// RegisterServiceFactory publishes a bundle-scope factory: GetService calls
// factory.GetService once per distinct consumer bundle and caches the
// result (spec.md §4.B "Bundle factory").
func (r *Registry) RegisterServiceFactory(bundle Bundle, objectClass []string, factory ServiceFactory, props map[string]any) (*Registration, error) {
	ref, err := r.register(bundle, objectClass, props, property.ScopeBundle)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	fu := newFactoryUsage()
	fu.factory = factory
	r.factories[ref] = fu
	r.mu.Unlock()
	r.fireEvent(events.ServiceRegistered, ref, nil, nil)
	return &Registration{registry: r, ref: ref}, nil
}

// RegisterPrototypeServiceFactory publishes a prototype-scope factory:
// GetService calls factory.GetService on every invocation, producing a
// fresh instance each time (spec.md §4.B "Prototype factory").
func (r *Registry) RegisterPrototypeServiceFactory(bundle Bundle, objectClass []string, factory PrototypeServiceFactory, props map[string]any) (*Registration, error) {
	ref, err := r.register(bundle, objectClass, props, property.ScopePrototype)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	fu := newFactoryUsage()
	fu.prototypeFactory = factory
	r.factories[ref] = fu
	r.mu.Unlock()
	r.fireEvent(events.ServiceRegistered, ref, nil, nil)
	return &Registration{registry: r, ref: ref}, nil
}

// GetService resolves a service instance for consumer, applying the
// reference's scope rules, and marks consumer as a using bundle (spec.md §4.B
// "get_service").
func (r *Registry) GetService(consumer Bundle, ref *Reference) (any, error) {
	r.mu.RLock()
	fu, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownService{ServiceID: ref.ID()}
	}

	scope := ref.scope()

	fu.mu.Lock()
	entry, exists := fu.byReference[consumer.ID()]
	if !exists {
		entry = &factoryEntry{}
		fu.byReference[consumer.ID()] = entry
	}
	entry.counter.inc()
	ref.markUsedBy(consumer.ID())
	needsCreate := scope == ScopeBundle && !entry.hasInstance
	fu.mu.Unlock()

	switch scope {
	case ScopeSingleton:
		return fu.instance, nil

	case ScopeBundle:
		if needsCreate {
			registration := &Registration{registry: r, ref: ref}
			instance := fu.factory.GetService(consumer, registration)

			fu.mu.Lock()
			entry.instance = instance
			entry.hasInstance = true
			fu.mu.Unlock()
		}
		fu.mu.Lock()
		instance := entry.instance
		fu.mu.Unlock()
		return instance, nil

	case ScopePrototype:
		registration := &Registration{registry: r, ref: ref}
		instance := fu.prototypeFactory.GetService(consumer, registration)

		fu.mu.Lock()
		entry.instances = append(entry.instances, instance)
		fu.mu.Unlock()
		return instance, nil

	default:
		return nil, &ErrScopeViolation{ServiceID: ref.ID(), Scope: string(scope)}
	}
}

// UngetService releases one usage of a singleton or bundle-scope service.
// For prototype-scope services, use UngetServiceInstance instead (spec.md
// §4.B "unget_service" / "unget_service_instance").
func (r *Registry) UngetService(consumer Bundle, ref *Reference) (bool, error) {
	if ref.IsPrototype() {
		return false, &ErrScopeViolation{ServiceID: ref.ID(), Scope: string(ScopePrototype)}
	}

	r.mu.RLock()
	fu, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		return false, &ErrUnknownService{ServiceID: ref.ID()}
	}

	fu.mu.Lock()
	entry, exists := fu.byReference[consumer.ID()]
	if !exists {
		fu.mu.Unlock()
		return false, nil
	}
	stillUsed := entry.counter.dec()
	releaseFactory := !stillUsed && ref.scope() == ScopeBundle && entry.hasInstance
	if releaseFactory {
		entry.hasInstance = false
	}
	fu.mu.Unlock()

	if !stillUsed {
		ref.markUnusedBy(consumer.ID())
	}
	if releaseFactory {
		registration := &Registration{registry: r, ref: ref}
		fu.factory.UngetService(consumer, registration)
		fu.mu.Lock()
		entry.instance = nil
		fu.mu.Unlock()
	}
	return true, nil
}

// UngetServiceInstance releases one specific prototype-scope instance
// (spec.md §4.B "unget_service_instance").
func (r *Registry) UngetServiceInstance(consumer Bundle, ref *Reference, instance any) (bool, error) {
	if !ref.IsPrototype() {
		return false, &ErrScopeViolation{ServiceID: ref.ID(), Scope: string(ref.scope())}
	}

	r.mu.RLock()
	fu, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		return false, &ErrUnknownService{ServiceID: ref.ID()}
	}

	fu.mu.Lock()
	entry, exists := fu.byReference[consumer.ID()]
	if !exists {
		fu.mu.Unlock()
		return false, nil
	}
	removed := false
	for i, inst := range entry.instances {
		if inst == instance {
			entry.instances = append(entry.instances[:i], entry.instances[i+1:]...)
			removed = true
			break
		}
	}
	fu.mu.Unlock()
	if !removed {
		return false, nil
	}

	registration := &Registration{registry: r, ref: ref}
	fu.prototypeFactory.UngetServiceInstance(consumer, registration, instance)

	stillUsed := entry.counter.dec()
	if !stillUsed {
		ref.markUnusedBy(consumer.ID())
		fu.prototypeFactory.UngetService(consumer, registration)
	}
	return true, nil
}

// FindReferences returns every non-hidden reference matching specification
// (empty string for "any") and filterString (empty string for "match all"),
// in the registry's total order (spec.md §4.B "find_service_references").
func (r *Registry) FindReferences(specification, filterString string) ([]*Reference, error) {
	expr, err := ldap.Parse(filterString)
	if err != nil {
		return nil, &ErrBadFilter{Cause: err}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Reference
	if specification == "" {
		seen := make(map[int64]struct{}, len(r.byID))
		for _, ref := range r.byID {
			if _, dup := seen[ref.ID()]; dup {
				continue
			}
			seen[ref.ID()] = struct{}{}
			candidates = append(candidates, ref)
		}
	} else {
		candidates = append(candidates, r.bySpec[specification]...)
	}

	var out []*Reference
	for _, ref := range candidates {
		if _, hidden := r.pending[ref]; hidden {
			continue
		}
		if expr == nil || expr.Matches(ref.Properties()) {
			out = append(out, ref)
		}
	}
	sortRefs(out)
	return out, nil
}

// Unregister removes ref from the registry immediately, firing UNREGISTERING
// before the removal takes effect (spec.md §4.B "unregister_service").
func (r *Registry) Unregister(ref *Reference) (bool, error) {
	r.mu.RLock()
	_, known := r.byID[ref.ID()]
	r.mu.RUnlock()
	if !known {
		return false, &ErrUnknownService{ServiceID: ref.ID()}
	}

	r.fireEvent(events.ServiceUnregistering, ref, nil, nil)

	r.mu.Lock()
	delete(r.byID, ref.ID())
	for _, spec := range ref.Properties().ObjectClasses() {
		r.bySpec[spec] = removeRef(r.bySpec[spec], ref)
	}
	delete(r.pending, ref)
	delete(r.factories, ref)
	r.mu.Unlock()
	return true, nil
}

// HideBundleServices removes every service owned by bundle from lookup
// results (FindReferences) without yet releasing its factory bookkeeping,
// implementing the two-phase "hide, then finalize" bundle-stop sequence
// (spec.md §4.B / original_source's pending-unregister supplement). Fires
// UNREGISTERING for each hidden reference. Call FinalizeBundleServices once
// consumers have had a chance to release their usages.
func (r *Registry) HideBundleServices(bundle Bundle) []*Reference {
	r.mu.Lock()
	var hidden []*Reference
	for _, ref := range r.byID {
		if ref.Bundle().ID() == bundle.ID() {
			r.pending[ref] = struct{}{}
			hidden = append(hidden, ref)
		}
	}
	r.mu.Unlock()

	sortRefs(hidden)
	for _, ref := range hidden {
		r.fireEvent(events.ServiceUnregistering, ref, nil, nil)
	}
	return hidden
}

// FinalizeBundleServices actually removes every reference previously hidden
// by HideBundleServices for bundle.
func (r *Registry) FinalizeBundleServices(bundle Bundle) {
	r.mu.RLock()
	var toRemove []*Reference
	for ref := range r.pending {
		if ref.Bundle().ID() == bundle.ID() {
			toRemove = append(toRemove, ref)
		}
	}
	r.mu.RUnlock()

	for _, ref := range toRemove {
		r.FinalizeService(ref)
	}
}

// FinalizeService removes one previously-hidden reference. It is a no-op if
// ref isn't in the pending set. Exposed standalone (rather than only the
// bulk FinalizeBundleServices) so callers such as bundle.Context can fan the
// work out across references concurrently (spec.md §4.B bundle-stop
// sequence; the registry mutex still serializes each individual removal).
func (r *Registry) FinalizeService(ref *Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, pending := r.pending[ref]; !pending {
		return
	}
	delete(r.byID, ref.ID())
	for _, spec := range ref.Properties().ObjectClasses() {
		r.bySpec[spec] = removeRef(r.bySpec[spec], ref)
	}
	delete(r.pending, ref)
	delete(r.factories, ref)
}

// setProperties updates ref's mutable properties, recomputing its sort key
// and firing MODIFIED. objectClass, service.id and service.bundleid are
// immutable and silently ignored (spec.md §6 "ServiceRegistration").
func (r *Registry) setProperties(ref *Reference, update map[string]any) error {
	r.mu.Lock()
	_, known := r.byID[ref.ID()]
	r.mu.Unlock()
	if !known {
		return &ErrUnknownService{ServiceID: ref.ID()}
	}

	previous := ref.Properties()

	r.mu.Lock()
	for _, spec := range previous.ObjectClasses() {
		r.bySpec[spec] = removeRef(r.bySpec[spec], ref)
	}

	ref.mu.Lock()
	for k, v := range update {
		if ignoredOnUpdate(k) || k == property.ServiceBundle {
			continue
		}
		if k == property.ServiceRank {
			switch t := v.(type) {
			case int, int64, float64:
			case string:
				if _, err := strconv.Atoi(t); err != nil {
					continue
				}
			default:
				continue
			}
			ref.props.Set(k, property.CoerceInt(v))
			continue
		}
		ref.props.Set(k, v)
	}
	ref.mu.Unlock()
	ref.recomputeSortKey()

	for _, spec := range ref.Properties().ObjectClasses() {
		r.bySpec[spec] = insertSorted(r.bySpec[spec], ref)
	}
	r.mu.Unlock()

	r.fireEvent(events.ServiceModified, ref, previous.ToMap(), nil)
	return nil
}

func (r *Registry) fireEvent(kind events.ServiceEventKind, ref *Reference, previous map[string]any, update map[string]any) {
	if r.sink == nil {
		return
	}
	current := ref.Properties().ToMap()
	if update != nil {
		for k, v := range update {
			if !ignoredOnUpdate(k) {
				current[k] = v
			}
		}
	}
	r.sink.FireServiceEvent(events.ServiceEvent{
		Kind:               kind,
		Reference:          ref,
		Properties:         current,
		PreviousProperties: previous,
	})
}

func insertSorted(list []*Reference, ref *Reference) []*Reference {
	idx := sort.Search(len(list), func(i int) bool { return ref.Less(list[i]) })
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = ref
	return list
}

func removeRef(list []*Reference, ref *Reference) []*Reference {
	for i, r := range list {
		if r == ref {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
