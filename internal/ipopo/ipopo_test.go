package ipopo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/bundle"
	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/events"
	"github.com/tcalmant/ipopo-sub000/internal/ipopo"
	"github.com/tcalmant/ipopo-sub000/internal/registry"
)

type greeterUser struct {
	bound       any
	validated   bool
	invalidated bool
}

func (g *greeterUser) Validate() error {
	g.validated = true
	return nil
}

func (g *greeterUser) Invalidate() { g.invalidated = true }

func (g *greeterUser) OnBind(requirementID string, service any) {
	if requirementID == "greeter" {
		g.bound = service
	}
}

func newHarness(t *testing.T) (provider *bundle.Context, consumer *bundle.Context) {
	t.Helper()
	disp := events.New(nil)
	reg := registry.New(disp)
	return bundle.NewContext(bundle.New(1, "provider"), reg, disp),
		bundle.NewContext(bundle.New(2, "consumer"), reg, disp)
}

func TestInstantiateValidatesOnceDependencySatisfied(t *testing.T) {
	provider, consumer := newHarness(t)
	svc := ipopo.New(consumer)

	require.NoError(t, svc.RegisterFactory(&ipopo.Factory{
		Name: "demo.Greeter",
		Requirements: []compcontext.Requirement{
			{ID: "greeter", Specification: "example.Greeter"},
		},
		NewUserObject: func() any { return &greeterUser{} },
	}))

	inst, err := svc.Instantiate("demo.Greeter", "greeter-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, inst)

	_, err = provider.RegisterService([]string{"example.Greeter"}, "hello", nil)
	require.NoError(t, err)

	got, ok := svc.Instance("greeter-1")
	require.True(t, ok)
	assert.Equal(t, inst, got)
	assert.Equal(t, "hello", got.UserObject().(*greeterUser).bound)
}

func TestInstantiateRejectsUnknownFactoryAndDuplicateInstance(t *testing.T) {
	_, consumer := newHarness(t)
	svc := ipopo.New(consumer)

	_, err := svc.Instantiate("missing.Factory", "x", nil)
	var unknown *ipopo.ErrUnknownFactory
	assert.ErrorAs(t, err, &unknown)

	require.NoError(t, svc.RegisterFactory(&ipopo.Factory{
		Name:          "demo.Empty",
		NewUserObject: func() any { return &greeterUser{} },
	}))
	_, err = svc.Instantiate("demo.Empty", "only-one", nil)
	require.NoError(t, err)

	_, err = svc.Instantiate("demo.Empty", "only-one", nil)
	var dup *ipopo.ErrDuplicateInstance
	assert.ErrorAs(t, err, &dup)
}

func TestKillRemovesInstanceAndInvalidates(t *testing.T) {
	_, consumer := newHarness(t)
	svc := ipopo.New(consumer)
	require.NoError(t, svc.RegisterFactory(&ipopo.Factory{
		Name:          "demo.Empty",
		NewUserObject: func() any { return &greeterUser{} },
	}))

	inst, err := svc.Instantiate("demo.Empty", "inst-1", nil)
	require.NoError(t, err)

	svc.Kill("inst-1")
	_, ok := svc.Instance("inst-1")
	assert.False(t, ok)
	assert.True(t, inst.UserObject().(*greeterUser).invalidated)
}
