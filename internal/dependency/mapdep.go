package dependency

import (
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// Map groups bound services by a configured property key (spec.md §4.F
// "Map"). Simple-map keeps one service per key; Aggregate-map keeps a list.
// A null key (the property absent from a reference) is only admitted when
// AllowNullKey is set.
type Map struct {
	base

	keyProperty  string
	aggregate    bool
	allowNullKey bool

	mu      sync.Mutex
	keyOf   map[int64]string // ref ID -> bucket key, to detect migration
	buckets map[string][]int64
	values  map[int64]any
	refs    map[int64]*registry.Reference
}

var (
	_ handler.Handler         = (*Map)(nil)
	_ handler.Starter         = (*Map)(nil)
	_ handler.Stopper         = (*Map)(nil)
	_ handler.ValidityChecker = (*Map)(nil)
)

// NewMap builds a Map dependency handler keyed on keyProperty.
func NewMap(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder, keyProperty string, aggregate, allowNullKey bool) *Map {
	m := &Map{
		keyProperty:  keyProperty,
		aggregate:    aggregate,
		allowNullKey: allowNullKey,
		keyOf:        make(map[int64]string),
		buckets:      make(map[string][]int64),
		values:       make(map[int64]any),
		refs:         make(map[int64]*registry.Reference),
	}
	m.base = newBase(req, ctx, binder, m)
	return m
}

func (m *Map) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refs) > 0 || m.req.Optional
}

func (m *Map) keyFor(ref *registry.Reference) (string, bool) {
	v, ok := ref.Property(m.keyProperty)
	if !ok {
		return "", m.allowNullKey
	}
	s, ok := v.(string)
	return s, ok || m.allowNullKey
}

// snapshotLocked builds the full map value: bucket -> service (simple-map)
// or bucket -> []any (aggregate-map). Caller must hold m.mu.
func (m *Map) snapshotLocked() map[string]any {
	out := make(map[string]any, len(m.buckets))
	for key, ids := range m.buckets {
		if m.aggregate {
			list := make([]any, 0, len(ids))
			for _, id := range ids {
				list = append(list, m.values[id])
			}
			out[key] = list
		} else if len(ids) > 0 {
			out[key] = m.values[ids[0]]
		}
	}
	return out
}

func (m *Map) onArrival(ref *registry.Reference) {
	key, ok := m.keyFor(ref)
	if !ok {
		return
	}

	m.mu.Lock()
	if _, exists := m.refs[ref.ID()]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	svc, err := m.ctx.GetService(ref)
	if err != nil {
		return
	}

	m.mu.Lock()
	if _, exists := m.refs[ref.ID()]; exists {
		m.mu.Unlock()
		safeUnget(m.ctx, ref)
		return
	}
	if !m.aggregate {
		if _, taken := m.buckets[key]; taken && len(m.buckets[key]) > 0 {
			m.mu.Unlock()
			safeUnget(m.ctx, ref)
			return
		}
	}
	old := m.snapshotLocked()
	m.refs[ref.ID()] = ref
	m.values[ref.ID()] = svc
	m.keyOf[ref.ID()] = key
	m.buckets[key] = append(m.buckets[key], ref.ID())
	first := len(m.refs) == 1
	newVal := m.snapshotLocked()
	m.mu.Unlock()

	if first {
		m.bind.Bind(m.req.ID, newVal)
	} else {
		m.bind.Update(m.req.ID, old, newVal)
	}
}

func (m *Map) onDeparture(ref *registry.Reference) {
	m.mu.Lock()
	key, exists := m.keyOf[ref.ID()]
	if !exists {
		m.mu.Unlock()
		return
	}
	old := m.snapshotLocked()
	delete(m.refs, ref.ID())
	delete(m.values, ref.ID())
	delete(m.keyOf, ref.ID())
	ids := m.buckets[key]
	for i, id := range ids {
		if id == ref.ID() {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.buckets, key)
	} else {
		m.buckets[key] = ids
	}
	empty := len(m.refs) == 0
	newVal := m.snapshotLocked()
	m.mu.Unlock()

	if empty && !m.req.Optional {
		m.bind.Unbind(m.req.ID)
	} else {
		m.bind.Update(m.req.ID, old, newVal)
	}
	safeUnget(m.ctx, ref)
}

// onModified handles a bucket-migrating property change atomically: if the
// key attribute changed, the reference moves buckets as one update carrying
// the new map value (spec.md §4.F "migrate the service between buckets
// atomically").
func (m *Map) onModified(ref *registry.Reference) {
	m.mu.Lock()
	prevKey, tracked := m.keyOf[ref.ID()]
	m.mu.Unlock()

	if !tracked {
		m.onArrival(ref)
		return
	}

	newKey, ok := m.keyFor(ref)
	if !ok || newKey == prevKey {
		return
	}

	m.mu.Lock()
	old := m.snapshotLocked()
	ids := m.buckets[prevKey]
	for i, id := range ids {
		if id == ref.ID() {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m.buckets, prevKey)
	} else {
		m.buckets[prevKey] = ids
	}
	m.buckets[newKey] = append(m.buckets[newKey], ref.ID())
	m.keyOf[ref.ID()] = newKey
	newVal := m.snapshotLocked()
	m.mu.Unlock()

	m.bind.Update(m.req.ID, old, newVal)
}
