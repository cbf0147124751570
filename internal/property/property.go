// Package property implements the ordered string-keyed property map shared by
// services, components and filters (spec.md §3 "Property map").
package property

import "strconv"

// Reserved property keys (spec.md §6).
const (
	ObjectClass   = "objectClass"
	ServiceID     = "service.id"
	ServiceBundle = "service.bundleid"
	ServiceScope  = "service.scope"
	ServicePID    = "service.pid"
	ServiceRank   = "service.ranking"
	FrameworkUID  = "framework.uid"
	FrameworkUUID = "org.osgi.framework.uuid"
)

// Scope values for service.scope (spec.md §3).
const (
	ScopeSingleton = "singleton"
	ScopeBundle    = "bundle"
	ScopePrototype = "prototype"
)

// Map is an ordered string-to-value property map. Values are expected to be
// one of: string, int64, float64, bool, []any, or absent (key not present).
// Go maps are unordered by iteration, so Map preserves insertion order via
// Keys alongside the backing map; callers that don't care about order can use
// ToMap.
type Map struct {
	values map[string]any
	order  []string
}

// New returns an empty property map.
func New() *Map {
	return &Map{values: make(map[string]any)}
}

// FromMap builds a Map from a plain Go map. Iteration order of the input map
// is not guaranteed by Go, so callers that need a stable Keys() order should
// build incrementally with Set instead.
func FromMap(m map[string]any) *Map {
	p := New()
	for k, v := range m {
		p.Set(k, v)
	}
	return p
}

// Set inserts or overwrites a key, recording insertion order for new keys.
func (p *Map) Set(key string, value any) {
	if _, exists := p.values[key]; !exists {
		p.order = append(p.order, key)
	}
	p.values[key] = value
}

// Get returns the value for key and whether it was present.
func (p *Map) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Delete removes key from the map.
func (p *Map) Delete(key string) {
	if _, exists := p.values[key]; !exists {
		return
	}
	delete(p.values, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (p *Map) Keys() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of keys.
func (p *Map) Len() int {
	return len(p.order)
}

// Clone returns a deep-enough copy: top-level keys are copied, sequence
// values ([]any) are copied element-wise, scalars are shared (immutable by
// convention).
func (p *Map) Clone() *Map {
	c := New()
	for _, k := range p.order {
		v := p.values[k]
		if seq, ok := v.([]any); ok {
			cp := make([]any, len(seq))
			copy(cp, seq)
			v = cp
		}
		c.Set(k, v)
	}
	return c
}

// ToMap returns a plain map[string]any snapshot; order is lost.
func (p *Map) ToMap() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Ranking returns the coerced service.ranking value. Invalid or absent
// values become 0 (spec.md §3).
func (p *Map) Ranking() int {
	v, ok := p.Get(ServiceRank)
	if !ok {
		return 0
	}
	return CoerceInt(v)
}

// CoerceInt attempts to interpret v as an integer, returning 0 when it
// cannot. Used for service.ranking coercion (spec.md §3: "invalid values
// become 0").
func CoerceInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	case bool:
		return 0
	default:
		return 0
	}
}

// ObjectClasses returns the objectClass property as a string slice,
// tolerating a bare string (treated as a single-element list) or a missing
// key (empty slice).
func (p *Map) ObjectClasses() []string {
	v, ok := p.Get(ObjectClass)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, Stringify(e))
		}
		return out
	default:
		return nil
	}
}

// HasObjectClass reports whether spec appears in the objectClass property.
func (p *Map) HasObjectClass(spec string) bool {
	for _, s := range p.ObjectClasses() {
		if s == spec {
			return true
		}
	}
	return false
}

// Stringify renders an arbitrary property value as a string for comparison
// purposes (used by ObjectClasses for non-string entries).
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}
