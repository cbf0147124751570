package registry

import "github.com/tcalmant/ipopo-sub000/internal/property"

// Registration is the owner-side capability object for one registered
// service; it is not shared across bundles (spec.md §3 "ServiceRegistration").
type Registration struct {
	registry *Registry
	ref      *Reference
}

// GetReference returns the public ServiceReference view.
func (r *Registration) GetReference() *Reference {
	return r.ref
}

// SetProperties updates the service's properties. objectClass and
// service.id are ignored; service.ranking is coerced to an integer and a
// non-coercible new value drops the key from the update rather than
// resetting it to zero (spec.md §6 "ServiceRegistration", supplemented by
// original_source's pelix _unset_property contract: absent means "no
// change"). Triggers sort-key recomputation and emits a MODIFIED event
// carrying the previous property snapshot.
func (r *Registration) SetProperties(update map[string]any) error {
	return r.registry.setProperties(r.ref, update)
}

// Unregister removes the service from the registry.
func (r *Registration) Unregister() error {
	_, err := r.registry.Unregister(r.ref)
	return err
}

func ignoredOnUpdate(key string) bool {
	return key == property.ObjectClass || key == property.ServiceID
}
