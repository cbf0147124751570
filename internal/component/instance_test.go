package component_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/component"
	"github.com/tcalmant/ipopo-sub000/internal/handler"
)

type validityHandler struct {
	kind  handler.Kind
	valid bool
}

func (h *validityHandler) Kind() handler.Kind { return h.kind }
func (h *validityHandler) IsValid() bool      { return h.valid }

type userComponent struct {
	validateErr error
	validated   bool
	invalidated bool
}

func (u *userComponent) Validate() error {
	u.validated = true
	return u.validateErr
}

func (u *userComponent) Invalidate() {
	u.invalidated = true
}

func newInstance(t *testing.T, dep *validityHandler, user *userComponent) *component.StoredInstance {
	t.Helper()
	ctx := compcontext.New("demo.Factory", "demo-1", nil, nil)
	return component.New("demo.Factory", "demo-1", ctx, user, []handler.Handler{dep}, nil)
}

func TestValidatesWhenAllHandlersValid(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: false}
	user := &userComponent{}
	inst := newInstance(t, dep, user)

	inst.CheckLifecycle()
	assert.Equal(t, component.StateInvalid, inst.State())

	dep.valid = true
	inst.CheckLifecycle()
	assert.Equal(t, component.StateValid, inst.State())
	assert.True(t, user.validated)
}

func TestInvalidatesWhenDependencyLost(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: true}
	user := &userComponent{}
	inst := newInstance(t, dep, user)
	inst.CheckLifecycle()
	require.Equal(t, component.StateValid, inst.State())

	dep.valid = false
	inst.CheckLifecycle()
	assert.Equal(t, component.StateInvalid, inst.State())
	assert.True(t, user.invalidated)
}

func TestFailedValidateEntersErroneous(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: true}
	user := &userComponent{validateErr: errors.New("boom")}
	inst := newInstance(t, dep, user)

	inst.CheckLifecycle()
	assert.Equal(t, component.StateErroneous, inst.State())
	assert.Contains(t, inst.ErrorTrace(), "boom")
}

func TestRetryErroneousOnlyFromErroneous(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: true}
	user := &userComponent{validateErr: errors.New("boom")}
	inst := newInstance(t, dep, user)
	inst.CheckLifecycle()
	require.Equal(t, component.StateErroneous, inst.State())

	user.validateErr = nil
	require.NoError(t, inst.RetryErroneous(map[string]any{"k": "v"}))
	assert.Equal(t, component.StateValid, inst.State())

	err := inst.RetryErroneous(nil)
	assert.Error(t, err)
}

func TestKillIsTerminal(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: true}
	user := &userComponent{}
	inst := newInstance(t, dep, user)
	inst.CheckLifecycle()
	require.Equal(t, component.StateValid, inst.State())

	inst.Kill()
	assert.Equal(t, component.StateKilled, inst.State())

	inst.CheckLifecycle()
	assert.Equal(t, component.StateKilled, inst.State())

	err := inst.RetryErroneous(nil)
	assert.Error(t, err)
}

func TestBindUnbindInvokesCallbacksAndChecksLifecycle(t *testing.T) {
	dep := &validityHandler{kind: handler.KindDependency, valid: false}
	user := &userComponent{}
	inst := newInstance(t, dep, user)

	inst.Bind("req1", "service-A")
	v, ok := inst.BoundService("req1")
	require.True(t, ok)
	assert.Equal(t, "service-A", v)

	dep.valid = true
	inst.Bind("req1", "service-A")
	assert.Equal(t, component.StateValid, inst.State())

	inst.Unbind("req1")
	_, ok = inst.BoundService("req1")
	assert.False(t, ok)
}
