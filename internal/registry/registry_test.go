package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/property"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

type fakeBundle struct{ id int64 }

func (b *fakeBundle) ID() int64 { return b.id }

type recordingSink struct {
	events []events.ServiceEvent
}

func (s *recordingSink) FireServiceEvent(e events.ServiceEvent) {
	s.events = append(s.events, e)
}

func TestRegisterFindOrderByRanking(t *testing.T) {
	sink := &recordingSink{}
	reg := registry.New(sink)
	b := &fakeBundle{id: 1}

	lowRank, err := reg.RegisterService(b, []string{"example.Greeter"}, "low", map[string]any{property.ServiceRank: 0})
	require.NoError(t, err)
	highRank, err := reg.RegisterService(b, []string{"example.Greeter"}, "high", map[string]any{property.ServiceRank: 10})
	require.NoError(t, err)

	refs, err := reg.FindReferences("example.Greeter", "")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, highRank.GetReference().ID(), refs[0].ID())
	assert.Equal(t, lowRank.GetReference().ID(), refs[1].ID())

	// Raising the low-rank service above the other must reorder it to the
	// front (spec.md §8 scenario S1 "ranking reorder").
	require.NoError(t, lowRank.SetProperties(map[string]any{property.ServiceRank: 100}))
	refs, err = reg.FindReferences("example.Greeter", "")
	require.NoError(t, err)
	assert.Equal(t, lowRank.GetReference().ID(), refs[0].ID())
}

func TestFindReferencesAppliesFilter(t *testing.T) {
	sink := &recordingSink{}
	reg := registry.New(sink)
	b := &fakeBundle{id: 1}

	_, err := reg.RegisterService(b, []string{"example.Greeter"}, "red", map[string]any{"color": "red"})
	require.NoError(t, err)
	_, err = reg.RegisterService(b, []string{"example.Greeter"}, "blue", map[string]any{"color": "blue"})
	require.NoError(t, err)

	refs, err := reg.FindReferences("example.Greeter", "(color=red)")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	v, _ := refs[0].Property("color")
	assert.Equal(t, "red", v)
}

type countingFactory struct {
	built   int
	teardown int
}

func (f *countingFactory) GetService(registry.Bundle, *registry.Registration) any {
	f.built++
	return f.built
}

func (f *countingFactory) UngetService(registry.Bundle, *registry.Registration) {
	f.teardown++
}

func TestBundleScopeFactoryCachesPerConsumer(t *testing.T) {
	reg := registry.New(nil)
	owner := &fakeBundle{id: 1}
	consumer := &fakeBundle{id: 2}
	factory := &countingFactory{}

	reg2, err := reg.RegisterServiceFactory(owner, []string{"example.Greeter"}, factory, nil)
	require.NoError(t, err)
	ref := reg2.GetReference()

	first, err := reg.GetService(consumer, ref)
	require.NoError(t, err)
	second, err := reg.GetService(consumer, ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, factory.built)

	released, err := reg.UngetService(consumer, ref)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 0, factory.teardown)

	released, err = reg.UngetService(consumer, ref)
	require.NoError(t, err)
	assert.True(t, released)
	assert.Equal(t, 1, factory.teardown)
}

type prototypeFactory struct{ built int }

func (f *prototypeFactory) GetService(registry.Bundle, *registry.Registration) any {
	f.built++
	return f.built
}
func (f *prototypeFactory) UngetService(registry.Bundle, *registry.Registration)           {}
func (f *prototypeFactory) UngetServiceInstance(registry.Bundle, *registry.Registration, any) {}

func TestPrototypeScopeProducesFreshInstances(t *testing.T) {
	reg := registry.New(nil)
	owner := &fakeBundle{id: 1}
	consumer := &fakeBundle{id: 2}
	factory := &prototypeFactory{}

	reg2, err := reg.RegisterPrototypeServiceFactory(owner, []string{"example.Greeter"}, factory, nil)
	require.NoError(t, err)
	ref := reg2.GetReference()

	first, err := reg.GetService(consumer, ref)
	require.NoError(t, err)
	second, err := reg.GetService(consumer, ref)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	ok, err := reg.UngetServiceInstance(consumer, ref, first)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = reg.UngetService(consumer, ref)
	assert.Error(t, err)
}

func TestHideBundleServicesRemovesFromLookupButKeepsResolvable(t *testing.T) {
	sink := &recordingSink{}
	reg := registry.New(sink)
	owner := &fakeBundle{id: 1}

	r, err := reg.RegisterService(owner, []string{"example.Greeter"}, "svc", nil)
	require.NoError(t, err)
	ref := r.GetReference()

	hidden := reg.HideBundleServices(owner)
	require.Len(t, hidden, 1)

	refs, err := reg.FindReferences("example.Greeter", "")
	require.NoError(t, err)
	assert.Empty(t, refs)

	// still resolvable until finalized
	instance, err := reg.GetService(owner, ref)
	require.NoError(t, err)
	assert.Equal(t, "svc", instance)

	reg.FinalizeBundleServices(owner)
	_, err = reg.GetService(owner, ref)
	assert.Error(t, err)
}

func TestUnregisterUnknownReturnsError(t *testing.T) {
	reg := registry.New(nil)
	owner := &fakeBundle{id: 1}
	r, err := reg.RegisterService(owner, []string{"example.Greeter"}, "svc", nil)
	require.NoError(t, err)

	require.NoError(t, r.Unregister())
	require.Error(t, r.Unregister())
}
