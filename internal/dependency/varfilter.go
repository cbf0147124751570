package dependency

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
	"github.com/tcalmant/ipopo-sub000/internal/property"
)

var templateToken = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

// resolveTemplate substitutes every {propertyName} token in template with
// the component's own property value, per spec.md §4.F "Variable-filter":
// "reinterprets the filter template against the component's own
// properties".
func resolveTemplate(template string, props *property.Map) string {
	return templateToken.ReplaceAllStringFunc(template, func(token string) string {
		name := token[1 : len(token)-1]
		v, ok := props.Get(name)
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	})
}

// bindTracker forwards to a real handler.Binder while remembering whether
// each requirement ID is currently bound, so VariableFilter can decide
// whether a filter-driven rebuild needs to unbind the outgoing inner
// handler's service.
type bindTracker struct {
	handler.Binder

	mu    sync.Mutex
	bound map[string]bool
}

func newBindTracker(real handler.Binder) *bindTracker {
	return &bindTracker{Binder: real, bound: make(map[string]bool)}
}

func (t *bindTracker) Bind(requirementID string, service any) {
	t.mu.Lock()
	t.bound[requirementID] = true
	t.mu.Unlock()
	t.Binder.Bind(requirementID, service)
}

func (t *bindTracker) Unbind(requirementID string) {
	t.mu.Lock()
	t.bound[requirementID] = false
	t.mu.Unlock()
	t.Binder.Unbind(requirementID)
}

func (t *bindTracker) isBound(requirementID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bound[requirementID]
}

// innerDependency is the subset of Simple/Aggregate/Best/Map/Broadcast/
// Temporal that Variable-filter drives generically.
type innerDependency interface {
	handler.Handler
	handler.Starter
	handler.Stopper
	handler.ValidityChecker
}

// InnerFactory builds one of the other dependency-handler kinds for a
// resolved Requirement; NewSimple and NewAggregate satisfy this shape once
// their return types are widened to innerDependency by the caller.
type InnerFactory func(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder) innerDependency

// VariableFilter is a mix-in over another dependency handler kind that
// reinterprets a filter template against the component's own properties;
// a relevant property change triggers re-subscription, potentially dropping
// currently-bound services that no longer match (spec.md §4.F
// "Variable-filter").
type VariableFilter struct {
	mu       sync.Mutex
	req      compcontext.Requirement
	template string
	ctx      *bundle.Context
	compCtx  *compcontext.ComponentContext
	factory  InnerFactory
	tracker  *bindTracker
	inner    innerDependency
}

var (
	_ handler.Handler                = (*VariableFilter)(nil)
	_ handler.Starter                = (*VariableFilter)(nil)
	_ handler.Stopper                = (*VariableFilter)(nil)
	_ handler.ValidityChecker        = (*VariableFilter)(nil)
	_ handler.PropertyChangeListener = (*VariableFilter)(nil)
)

// NewVariableFilter wraps factory with filter-template reinterpretation.
// template uses {propertyName} tokens resolved against compCtx's properties.
func NewVariableFilter(req compcontext.Requirement, ctx *bundle.Context, binder handler.Binder, compCtx *compcontext.ComponentContext, template string, factory InnerFactory) *VariableFilter {
	return &VariableFilter{
		req:      req,
		template: template,
		ctx:      ctx,
		compCtx:  compCtx,
		factory:  factory,
		tracker:  newBindTracker(binder),
	}
}

func (v *VariableFilter) Kind() handler.Kind { return handler.KindDependency }

func (v *VariableFilter) IsValid() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inner == nil {
		return v.req.Optional
	}
	return v.inner.IsValid()
}

func (v *VariableFilter) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rebuildLocked()
}

func (v *VariableFilter) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inner == nil {
		return nil
	}
	return v.inner.Stop()
}

// OnPropertyChange re-resolves the filter template whenever a property it
// references changes, rebuilding the inner handler against the new filter
// (spec.md §4.F "filter updates trigger re-subscription").
func (v *VariableFilter) OnPropertyChange(name string, oldValue, newValue any) {
	if !templateReferences(v.template, name) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inner != nil {
		_ = v.inner.Stop()
	}
	_ = v.rebuildLocked()
}

func templateReferences(template, propertyName string) bool {
	for _, m := range templateToken.FindAllStringSubmatch(template, -1) {
		if m[1] == propertyName {
			return true
		}
	}
	return false
}

// rebuildLocked resolves the current filter, drops the outgoing inner
// handler's binding if one existed, and starts a fresh inner handler
// against the resolved filter. Caller must hold v.mu.
func (v *VariableFilter) rebuildLocked() error {
	resolved := v.req
	resolved.Filter = resolveTemplate(v.template, v.compCtx.Properties())

	if v.tracker.isBound(v.req.ID) {
		v.tracker.Unbind(v.req.ID)
	}

	v.inner = v.factory(resolved, v.ctx, v.tracker)
	v.req = resolved
	return v.inner.Start()
}
