// Package compcontext holds the small data types shared by the handler,
// dependency and component packages (spec.md §3 "ComponentContext",
// "Requirement"). Split out as its own leaf package, the same way
// internal/events defines a narrow ServiceRef instead of importing
// internal/registry, so that internal/handler, internal/dependency and
// internal/component can all depend on it while it imports none of them.
package compcontext

import (
	"fmt"
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/ldap"
	"github.com/tcalmant/ipopo-sub000/internal/property"
)

// Requirement is a declarative constraint on a component's dependency
// (spec.md §3 "Requirement"). The full filter is the conjunction of
// `(objectClass=<Specification>)` and Filter.
type Requirement struct {
	ID              string
	Specification   string
	Aggregate       bool
	Optional        bool
	ImmediateRebind bool
	Filter          string // extra filter, "" if none
}

// FullFilter builds the conjunction of the specification test and the extra
// filter, normalized (spec.md §3 "Requirement": "the full filter is the
// conjunction of (objectClass=<spec>) and the extra filter").
func (r Requirement) FullFilter() (ldap.Expr, error) {
	specFilter := &ldap.Criterion{Name: property.ObjectClass, Value: r.Specification, Comparator: ldap.ComparatorEq}
	if r.Filter == "" {
		return specFilter.Normalize(), nil
	}
	extra, err := ldap.Parse(r.Filter)
	if err != nil {
		return nil, err
	}
	return ldap.Combine([]ldap.Expr{specFilter, extra}, ldap.AND), nil
}

// FullFilterString renders the combined filter as a string. The dependency
// handlers do not call it: they subscribe and look up with Specification and
// Filter passed separately.
func (r Requirement) FullFilterString(extra string) string {
	if extra == "" {
		return fmt.Sprintf("(%s=%s)", property.ObjectClass, r.Specification)
	}
	if extra[0] == '(' {
		return fmt.Sprintf("(&(%s=%s)%s)", property.ObjectClass, r.Specification, extra)
	}
	return fmt.Sprintf("(&(%s=%s)(%s))", property.ObjectClass, r.Specification, extra)
}

// ComponentContext is the per-instance data every handler and the instance
// manager share (spec.md §3 "ComponentContext"): factory pointer, instance
// name, effective public properties (factory defaults + instance
// overrides), and a separate hidden-property map fetched once at
// instantiation.
type ComponentContext struct {
	mu sync.RWMutex

	factoryName  string
	instanceName string
	properties   *property.Map
	hidden       *property.Map
}

// New builds a ComponentContext from factory defaults and instance-level
// overrides; overrides win on key collision.
func New(factoryName, instanceName string, factoryDefaults, instanceOverrides map[string]any) *ComponentContext {
	props := property.New()
	for k, v := range factoryDefaults {
		props.Set(k, v)
	}
	for k, v := range instanceOverrides {
		props.Set(k, v)
	}
	return &ComponentContext{
		factoryName:  factoryName,
		instanceName: instanceName,
		properties:   props,
		hidden:       property.New(),
	}
}

func (c *ComponentContext) FactoryName() string  { return c.factoryName }
func (c *ComponentContext) InstanceName() string { return c.instanceName }

// Get returns a public property value.
func (c *ComponentContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.properties.Get(key)
}

// Set updates or inserts a public property, merging only the supplied key
// (spec.md §4.G "retry_erroneous merges only supplied keys").
func (c *ComponentContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.properties.Set(key, value)
}

// Merge applies a batch of property updates, each independently, preserving
// any key not present in update.
func (c *ComponentContext) Merge(update map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range update {
		c.properties.Set(k, v)
	}
}

// Properties returns a snapshot of the public property map.
func (c *ComponentContext) Properties() *property.Map {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.properties.Clone()
}

// SetHidden sets a hidden property, meant to be fetched exactly once at
// instantiation time and not exposed through Properties().
func (c *ComponentContext) SetHidden(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hidden.Set(key, value)
}

// Hidden returns a hidden property value.
func (c *ComponentContext) Hidden(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hidden.Get(key)
}
