package dependency_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/dependency"
	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

type fakeBinder struct {
	mu      sync.Mutex
	bound   map[string]any
	binds   int
	updates int
	unbinds int
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{bound: make(map[string]any)}
}

func (f *fakeBinder) Bind(requirementID string, service any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[requirementID] = service
	f.binds++
}

func (f *fakeBinder) Update(requirementID string, old, new any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[requirementID] = new
	f.updates++
}

func (f *fakeBinder) Unbind(requirementID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bound, requirementID)
	f.unbinds++
}

func (f *fakeBinder) get(requirementID string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.bound[requirementID]
	return v, ok
}

// newWiredHarness builds a bundle.Context and provider bundle.Context that
// share one registry and dispatcher, so service events actually reach the
// dependency handler under test.
func newWiredHarness(t *testing.T) (providerCtx, consumerCtx *bundle.Context) {
	t.Helper()
	disp := events.New(nil)
	reg := registry.New(disp)
	provider := bundle.New(1, "provider.bundle")
	consumer := bundle.New(2, "consumer.bundle")
	return bundle.NewContext(provider, reg, disp), bundle.NewContext(consumer, reg, disp)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestAggregateBindsAndInvalidatesWhenEmpty(t *testing.T) {
	provider, consumer := newWiredHarness(t)
	binder := newFakeBinder()

	req := compcontext.Requirement{ID: "watchers", Specification: "example.Watcher", Aggregate: true}
	agg := dependency.NewAggregate(req, consumer, binder)
	require.NoError(t, agg.Start())
	assert.False(t, agg.IsValid())

	reg1, err := provider.RegisterService([]string{"example.Watcher"}, "watcher-a", nil)
	require.NoError(t, err)
	reg2, err := provider.RegisterService([]string{"example.Watcher"}, "watcher-b", nil)
	require.NoError(t, err)

	list, ok := binder.get("watchers")
	require.True(t, ok)
	assert.Len(t, list, 2)
	assert.True(t, agg.IsValid())

	require.NoError(t, reg1.Unregister())
	list, ok = binder.get("watchers")
	require.True(t, ok)
	assert.Len(t, list, 1)
	assert.True(t, agg.IsValid())

	require.NoError(t, reg2.Unregister())
	_, ok = binder.get("watchers")
	assert.False(t, ok)
	assert.False(t, agg.IsValid())
}

func TestTemporalStaysValidDuringGraceAndReconnects(t *testing.T) {
	provider, consumer := newWiredHarness(t)
	binder := newFakeBinder()

	req := compcontext.Requirement{ID: "clock", Specification: "example.Clock"}
	temp := dependency.NewTemporal(req, consumer, binder, 200*time.Millisecond)
	require.NoError(t, temp.Start())

	reg1, err := provider.RegisterService([]string{"example.Clock"}, "clock-a", nil)
	require.NoError(t, err)
	waitFor(t, func() bool { _, ok := binder.get("clock"); return ok })

	require.NoError(t, reg1.Unregister())
	assert.True(t, temp.IsValid(), "grace period should keep the handler valid")

	_, err = provider.RegisterService([]string{"example.Clock"}, "clock-b", nil)
	require.NoError(t, err)

	var invokedWith any
	proxy, ok := binder.get("clock")
	require.True(t, ok)
	require.NoError(t, proxy.(*dependency.TemporalProxy).Invoke(func(service any) error {
		invokedWith = service
		return nil
	}))
	assert.Equal(t, "clock-b", invokedWith)
}

func TestTemporalTimesOutWithoutReplacement(t *testing.T) {
	provider, consumer := newWiredHarness(t)
	binder := newFakeBinder()

	req := compcontext.Requirement{ID: "clock", Specification: "example.Clock"}
	temp := dependency.NewTemporal(req, consumer, binder, 50*time.Millisecond)
	require.NoError(t, temp.Start())

	reg1, err := provider.RegisterService([]string{"example.Clock"}, "clock-a", nil)
	require.NoError(t, err)
	waitFor(t, func() bool { _, ok := binder.get("clock"); return ok })
	proxy, _ := binder.get("clock")

	require.NoError(t, reg1.Unregister())

	err = proxy.(*dependency.TemporalProxy).Invoke(func(service any) error { return nil })
	assert.ErrorAs(t, err, new(*dependency.ErrTemporalTimeout))

	waitFor(t, func() bool { return !temp.IsValid() })
}

func TestBestReselectsOnHigherRanking(t *testing.T) {
	provider, consumer := newWiredHarness(t)
	binder := newFakeBinder()

	req := compcontext.Requirement{ID: "ranked", Specification: "example.Ranked"}
	best := dependency.NewBest(req, consumer, binder)
	require.NoError(t, best.Start())

	_, err := provider.RegisterService([]string{"example.Ranked"}, "low", nil)
	require.NoError(t, err)
	v, ok := binder.get("ranked")
	require.True(t, ok)
	assert.Equal(t, "low", v)

	_, err = provider.RegisterService([]string{"example.Ranked"}, "high", map[string]any{"service.ranking": 10})
	require.NoError(t, err)
	v, ok = binder.get("ranked")
	require.True(t, ok)
	assert.Equal(t, "high", v)
}
