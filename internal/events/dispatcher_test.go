package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/events"
)

type recordingListener struct {
	seen []events.ServiceEvent
}

func (r *recordingListener) ServiceChanged(e events.ServiceEvent) {
	r.seen = append(r.seen, e)
}

type fakeRef struct{ id int64 }

func (f *fakeRef) ID() int64                            { return f.id }
func (f *fakeRef) Property(string) (any, bool)          { return nil, false }
func (f *fakeRef) PropertyKeys() []string                { return nil }

func TestFireServiceEventDeliversBySpecification(t *testing.T) {
	d := events.New(nil)
	l := &recordingListener{}
	ok, err := d.AddServiceListener("ctxA", l, "example.Greeter", "")
	require.NoError(t, err)
	require.True(t, ok)

	d.FireServiceEvent(events.ServiceEvent{
		Kind:       events.ServiceRegistered,
		Reference:  &fakeRef{id: 1},
		Properties: map[string]any{"objectClass": []string{"example.Greeter"}},
	})

	require.Len(t, l.seen, 1)
	assert.Equal(t, events.ServiceRegistered, l.seen[0].Kind)
}

func TestFireServiceEventFilterEndmatch(t *testing.T) {
	d := events.New(nil)
	l := &recordingListener{}
	ok, err := d.AddServiceListener("ctxA", l, "", "(color=red)")
	require.NoError(t, err)
	require.True(t, ok)

	d.FireServiceEvent(events.ServiceEvent{
		Kind:       events.ServiceModified,
		Reference:  &fakeRef{id: 1},
		Properties: map[string]any{"color": "blue"},
		PreviousProperties: map[string]any{
			"color": "red",
		},
	})

	require.Len(t, l.seen, 1)
	assert.Equal(t, events.ServiceModifiedEndmatch, l.seen[0].Kind)
}

func TestFireServiceEventFilterNoMatchDropsSilently(t *testing.T) {
	d := events.New(nil)
	l := &recordingListener{}
	_, err := d.AddServiceListener("ctxA", l, "", "(color=red)")
	require.NoError(t, err)

	d.FireServiceEvent(events.ServiceEvent{
		Kind:               events.ServiceModified,
		Reference:          &fakeRef{id: 1},
		Properties:         map[string]any{"color": "blue"},
		PreviousProperties: map[string]any{"color": "green"},
	})

	assert.Empty(t, l.seen)
}

func TestRemoveServiceListenersForContext(t *testing.T) {
	d := events.New(nil)
	l1 := &recordingListener{}
	l2 := &recordingListener{}
	_, _ = d.AddServiceListener("ctxA", l1, "", "")
	_, _ = d.AddServiceListener("ctxB", l2, "", "")

	d.RemoveServiceListenersForContext("ctxA")

	d.FireServiceEvent(events.ServiceEvent{
		Kind:       events.ServiceRegistered,
		Reference:  &fakeRef{id: 1},
		Properties: map[string]any{},
	})

	assert.Empty(t, l1.seen)
	assert.Len(t, l2.seen, 1)
}

type shrinkToNoneHook struct{}

func (shrinkToNoneHook) Event(_ events.ServiceEvent, candidates map[any][]events.ServiceListener) {
	for k := range candidates {
		delete(candidates, k)
	}
}

func TestListenerHookShrinksCandidates(t *testing.T) {
	d := events.New(nil)
	l := &recordingListener{}
	_, _ = d.AddServiceListener("ctxA", l, "", "")
	d.AddListenerHook(shrinkToNoneHook{})

	d.FireServiceEvent(events.ServiceEvent{
		Kind:       events.ServiceRegistered,
		Reference:  &fakeRef{id: 1},
		Properties: map[string]any{},
	})

	assert.Empty(t, l.seen)
}

type panicListener struct{}

func (panicListener) ServiceChanged(events.ServiceEvent) { panic("boom") }

func TestServiceListenerPanicDoesNotStopDelivery(t *testing.T) {
	d := events.New(nil)
	bad := panicListener{}
	good := &recordingListener{}
	_, _ = d.AddServiceListener("ctxA", bad, "", "")
	_, _ = d.AddServiceListener("ctxB", good, "", "")

	assert.NotPanics(t, func() {
		d.FireServiceEvent(events.ServiceEvent{
			Kind:       events.ServiceRegistered,
			Reference:  &fakeRef{id: 1},
			Properties: map[string]any{},
		})
	})

	assert.Len(t, good.seen, 1)
}
