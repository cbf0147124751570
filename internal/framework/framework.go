// Package framework wires the registry, dispatcher and per-bundle contexts
// together into one running instance, and owns the ambient, spec-silent
// concerns SPEC_FULL.md's AMBIENT STACK section adds: boot properties and
// the framework UUID.
package framework

import (
	"github.com/google/uuid"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/property"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
	"github.com/tcalmant/ipopo-sub000/pkg/logging"
)

// UID mints a fresh framework.uid value, returned by
// Framework.FrameworkProperty for both framework.uid and
// org.osgi.framework.uuid (spec.md §6 "Reserved property
// keys"). Mirrors the teacher's own use of github.com/google/uuid to mint
// identifiers.
func UID() string {
	return uuid.NewString()
}

// Framework owns one Registry/Dispatcher pair and the bundles installed
// against them (spec.md §4.D, bundle install/reload machinery itself stays
// out of scope per spec §1 — Install here just allocates an identity and a
// context, it does not load code).
type Framework struct {
	uid        string
	registry   *registry.Registry
	dispatcher *events.Dispatcher
	props      Properties

	nextBundleID int64
	bundles      map[int64]*bundle.Context
}

// New creates a Framework with freshly generated identity, logging dropped
// exceptions through pkg/logging's default go-logr-backed logger.
func New(props Properties) *Framework {
	return NewWithLogger(props, logging.New("framework"))
}

// NewWithLogger is New with an explicit events.ErrorLogger, e.g. a
// logging.Logger wrapping a production logr.Logger sink.
func NewWithLogger(props Properties, logger events.ErrorLogger) *Framework {
	disp := events.New(logger)
	fw := &Framework{
		uid:        UID(),
		dispatcher: disp,
		props:      props,
		bundles:    make(map[int64]*bundle.Context),
	}
	fw.registry = registry.New(disp)
	return fw
}

// UID returns this framework instance's identity.
func (f *Framework) UID() string { return f.uid }

// Registry returns the shared service registry.
func (f *Framework) Registry() *registry.Registry { return f.registry }

// Dispatcher returns the shared event dispatcher.
func (f *Framework) Dispatcher() *events.Dispatcher { return f.dispatcher }

// Properties returns the framework's boot-time configuration.
func (f *Framework) Properties() Properties { return f.props }

// FrameworkProperty exposes the reserved framework.uid / OSGi-compatible
// org.osgi.framework.uuid pair (spec.md §6).
func (f *Framework) FrameworkProperty(key string) (string, bool) {
	switch key {
	case property.FrameworkUID, property.FrameworkUUID:
		return f.uid, true
	default:
		return "", false
	}
}

// InstallBundle allocates a bundle identity and context (spec.md §4.D); it
// does not load any code, matching spec §1's "bundle installation/reload
// machinery" non-goal.
func (f *Framework) InstallBundle(symbolicName string) *bundle.Context {
	f.nextBundleID++
	b := bundle.New(f.nextBundleID, symbolicName)
	ctx := bundle.NewContext(b, f.registry, f.dispatcher)
	f.bundles[b.ID()] = ctx
	f.dispatcher.FireBundleEvent(events.BundleEvent{Kind: events.BundleInstalled, Bundle: b})
	return ctx
}

// StopBundle runs the bundle-stop sequence and fires STOPPING/STOPPED.
func (f *Framework) StopBundle(id int64) error {
	ctx, ok := f.bundles[id]
	if !ok {
		return nil
	}
	b := ctx.Bundle()
	f.dispatcher.FireBundleEvent(events.BundleEvent{Kind: events.BundleStopping, Bundle: b})
	err := ctx.Stop()
	b.SetState(bundle.StateUninstalled)
	delete(f.bundles, id)
	f.dispatcher.FireBundleEvent(events.BundleEvent{Kind: events.BundleStopped, Bundle: b})
	return err
}
