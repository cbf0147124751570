package bundle

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

// Context narrows Registry/Dispatcher access to one bundle: registrations
// are tagged with it, usage is accounted against it, and listeners added
// through it are removed automatically when the bundle stops (spec.md §4.D).
type Context struct {
	bundle *Bundle
	reg    *registry.Registry
	disp   *events.Dispatcher
}

// NewContext builds a BundleContext for bundle over the given registry and
// dispatcher.
func NewContext(b *Bundle, reg *registry.Registry, disp *events.Dispatcher) *Context {
	return &Context{bundle: b, reg: reg, disp: disp}
}

func (c *Context) Bundle() *Bundle { return c.bundle }

// RegisterService publishes a singleton service on behalf of this bundle.
func (c *Context) RegisterService(objectClass []string, serviceObject any, props map[string]any) (*registry.Registration, error) {
	return c.reg.RegisterService(c.bundle, objectClass, serviceObject, props)
}

// RegisterServiceFactory publishes a bundle-scope factory.
func (c *Context) RegisterServiceFactory(objectClass []string, factory registry.ServiceFactory, props map[string]any) (*registry.Registration, error) {
	return c.reg.RegisterServiceFactory(c.bundle, objectClass, factory, props)
}

// RegisterPrototypeServiceFactory publishes a prototype-scope factory.
func (c *Context) RegisterPrototypeServiceFactory(objectClass []string, factory registry.PrototypeServiceFactory, props map[string]any) (*registry.Registration, error) {
	return c.reg.RegisterPrototypeServiceFactory(c.bundle, objectClass, factory, props)
}

// GetService resolves a service instance, consuming it as this bundle.
func (c *Context) GetService(ref *registry.Reference) (any, error) {
	return c.reg.GetService(c.bundle, ref)
}

// UngetService releases one usage of a singleton or bundle-scope service.
func (c *Context) UngetService(ref *registry.Reference) (bool, error) {
	return c.reg.UngetService(c.bundle, ref)
}

// UngetServiceInstance releases one specific prototype-scope instance.
func (c *Context) UngetServiceInstance(ref *registry.Reference, instance any) (bool, error) {
	return c.reg.UngetServiceInstance(c.bundle, ref, instance)
}

// FindReferences looks up matching references.
func (c *Context) FindReferences(specification, filterString string) ([]*registry.Reference, error) {
	return c.reg.FindReferences(specification, filterString)
}

// FindReference is the only_one=true convenience form (spec.md §4.B
// "find_references... or first match").
func (c *Context) FindReference(specification, filterString string) (*registry.Reference, error) {
	refs, err := c.reg.FindReferences(specification, filterString)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return refs[0], nil
}

// AddServiceListener registers a service listener scoped to this context;
// it is automatically removed by Stop.
func (c *Context) AddServiceListener(l events.ServiceListener, specification, filterString string) (bool, error) {
	return c.disp.AddServiceListener(c, l, specification, filterString)
}

// RemoveServiceListener unregisters a service listener early.
func (c *Context) RemoveServiceListener(l events.ServiceListener) bool {
	return c.disp.RemoveServiceListener(l)
}

// AddBundleListener/RemoveBundleListener forward to the shared dispatcher;
// bundle listeners aren't context-scoped (spec.md §4.C lists only one
// bundle-listener set for the whole framework).
func (c *Context) AddBundleListener(l events.BundleListener) bool {
	return c.disp.AddBundleListener(l)
}

func (c *Context) RemoveBundleListener(l events.BundleListener) bool {
	return c.disp.RemoveBundleListener(l)
}

// Stop runs the two-phase bundle-stop sequence (spec.md §4.B
// "Hidden-then-removed"): hide this bundle's services from lookup, let the
// dispatcher announce UNREGISTERING (done inside HideBundleServices), then
// finalize each reference's removal concurrently (one goroutine per
// reference via golang.org/x/sync/errgroup, with no limit) before dropping
// this context's own listeners.
func (c *Context) Stop() error {
	hidden := c.reg.HideBundleServices(c.bundle)

	g, _ := errgroup.WithContext(context.Background())
	for _, ref := range hidden {
		ref := ref
		g.Go(func() error {
			c.reg.FinalizeService(ref)
			return nil
		})
	}
	err := g.Wait()

	c.disp.RemoveServiceListenersForContext(c)
	return err
}
