package events

// ListenerHook lets a well-known service shrink the candidate listener map
// for an in-flight service event, by bundle context or by listener; hooks
// may not add listeners (spec.md §4.C "Apply listener hooks"). Grounded on
// pelix.internals.hooks.EventListenerHook / ShrinkableMap.
type ListenerHook interface {
	// Event is called with the service event and the candidate listeners,
	// grouped by an opaque context key (the BundleContext the listener was
	// registered through). The hook may delete map entries and delete
	// elements from the per-context slices; anything left after Event
	// returns receives the event.
	Event(event ServiceEvent, candidates map[any][]ServiceListener)
}
