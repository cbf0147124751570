package registry

import "sync"

// ServiceFactory backs bundle-scope services: GetService is called once per
// consumer bundle, UngetService when that consumer's usage reaches zero
// (spec.md §4.B "Bundle factory").
type ServiceFactory interface {
	GetService(consumer Bundle, registration *Registration) any
	UngetService(consumer Bundle, registration *Registration)
}

// PrototypeServiceFactory backs prototype-scope services: GetService is
// called on every get_service, producing a fresh instance each time;
// UngetServiceInstance releases one specific instance and runs before
// UngetService fires on the last release (spec.md §4.B "Prototype factory").
type PrototypeServiceFactory interface {
	ServiceFactory
	UngetServiceInstance(consumer Bundle, registration *Registration, instance any)
}

// usageCounter is a non-negative counter incremented on get_service,
// decremented on unget_service; it may never hold a negative count
// (spec.md §3 "UsageCounter").
type usageCounter struct {
	count int
}

func (c *usageCounter) inc() {
	c.count++
}

// dec decrements and reports whether the counter is still > 0.
func (c *usageCounter) dec() bool {
	if c.count > 0 {
		c.count--
	}
	return c.count > 0
}

// factoryEntry is the per-consumer-bundle bookkeeping for one service
// reference: either a single cached instance (bundle scope) or a list of
// produced instances (prototype scope) (spec.md §3 "FactoryUsage"). For
// singleton scope only its usage counter is used; the single shared
// instance lives directly on factoryUsage.
type factoryEntry struct {
	counter usageCounter

	// bundle scope
	instance    any
	hasInstance bool

	// prototype scope
	instances []any
}

// factoryUsage is the registry-side bookkeeping attached to one reference:
// the scope-appropriate factory (or shared instance, for singletons) plus
// per-consumer-bundle usage entries (spec.md §4.B "get_service"/
// "unget_service").
type factoryUsage struct {
	mu sync.Mutex

	// singleton scope
	instance any

	// bundle scope
	factory ServiceFactory

	// prototype scope
	prototypeFactory PrototypeServiceFactory

	byReference map[int64]*factoryEntry
}

func newFactoryUsage() *factoryUsage {
	return &factoryUsage{byReference: make(map[int64]*factoryEntry)}
}
