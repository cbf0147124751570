// Package registry implements the service registry and its reference,
// registration and usage-accounting types (spec.md §4.B "Service Registry",
// the runtime's hard core alongside the LDAP engine and event dispatcher).
//
// Grounded on pelix/internals/registry.py (original_source), but rewritten as
// a synchronous, mutex-protected structure per spec.md §9 "Coroutine
// remnants": the source file is a half-finished async rewrite; this package
// implements the synchronous contract the rest of the system (handlers,
// dispatcher, waiting list, tests) actually assumes.
package registry

import (
	"sort"
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/property"
)

// Scope mirrors spec.md §3 service.scope values.
type Scope string

const (
	ScopeSingleton Scope = property.ScopeSingleton
	ScopeBundle    Scope = property.ScopeBundle
	ScopePrototype Scope = property.ScopePrototype
)

// Bundle is the minimal identity surface the registry needs from a bundle
// (spec.md §6 "Bundle").
type Bundle interface {
	ID() int64
}

// sortKey is (−ranking, service_id): references compare so that higher
// ranking sorts earlier, ties broken by smaller (older) ID (spec.md §3
// "ServiceReference" invariants).
type sortKey struct {
	negRanking int
	id         int64
}

func (k sortKey) less(o sortKey) bool {
	if k.negRanking != o.negRanking {
		return k.negRanking < o.negRanking
	}
	return k.id < o.id
}

// Reference is a handle identifying one registered service (spec.md §3
// "ServiceReference").
type Reference struct {
	mu sync.RWMutex

	bundle Bundle
	id     int64
	props  *property.Map
	key    sortKey

	usingBundles map[int64]struct{}
}

func newReference(bundle Bundle, id int64, props *property.Map) *Reference {
	r := &Reference{
		bundle:       bundle,
		id:           id,
		props:        props,
		usingBundles: make(map[int64]struct{}),
	}
	r.key = sortKey{negRanking: -props.Ranking(), id: id}
	return r
}

// Bundle returns the owning bundle.
func (r *Reference) Bundle() Bundle {
	return r.bundle
}

// ID returns the immutable, monotonic service ID.
func (r *Reference) ID() int64 {
	return r.id
}

// Property returns a single property value.
func (r *Reference) Property(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.props.Get(name)
}

// PropertyKeys returns the property map's keys.
func (r *Reference) PropertyKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.props.Keys()
}

// Properties returns a snapshot clone of the current properties.
func (r *Reference) Properties() *property.Map {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.props.Clone()
}

// IsFactory reports whether this reference has bundle or prototype scope.
func (r *Reference) IsFactory() bool {
	s := r.scope()
	return s == ScopeBundle || s == ScopePrototype
}

// IsPrototype reports whether this reference has prototype scope.
func (r *Reference) IsPrototype() bool {
	return r.scope() == ScopePrototype
}

func (r *Reference) scope() Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, _ := r.props.Get(property.ServiceScope)
	s, _ := v.(string)
	return Scope(s)
}

// GetUsingBundles returns the IDs of consumer bundles currently holding a
// nonzero usage count for this reference (spec.md original_source
// supplement: ServiceReference.get_using_bundles()).
func (r *Reference) GetUsingBundles() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.usingBundles))
	for id := range r.usingBundles {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Reference) markUsedBy(bundleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usingBundles[bundleID] = struct{}{}
}

func (r *Reference) markUnusedBy(bundleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.usingBundles, bundleID)
}

// sortKeySnapshot returns the current sort key under lock.
func (r *Reference) sortKeySnapshot() sortKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.key
}

// recomputeSortKey recomputes the sort key from the current ranking. Callers
// must hold the registry mutex and perform the index remove/reinsert dance
// (spec.md §4.B "Sort invariant").
func (r *Reference) recomputeSortKey() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.key = sortKey{negRanking: -r.props.Ranking(), id: r.id}
}

// Less implements the total ordering used by per-spec indices and by
// find_references results (spec.md §8 invariant 2 "Total order").
func (r *Reference) Less(o *Reference) bool {
	return r.sortKeySnapshot().less(o.sortKeySnapshot())
}

func sortRefs(refs []*Reference) {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
}
