package waiting_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/ipopo/waiting"
)

type fakeAttempter struct {
	mu        sync.Mutex
	known     map[string]bool
	attempts  int
	succeeded []string
}

func newFakeAttempter(knownFactories ...string) *fakeAttempter {
	known := make(map[string]bool, len(knownFactories))
	for _, f := range knownFactories {
		known[f] = true
	}
	return &fakeAttempter{known: known}
}

func (f *fakeAttempter) Instantiate(factoryName, instanceName string, properties map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if !f.known[factoryName] {
		return fmt.Errorf("factory not available: %s", factoryName)
	}
	f.succeeded = append(f.succeeded, instanceName)
	return nil
}

func (f *fakeAttempter) learn(factoryName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known[factoryName] = true
}

func TestAddRejectsDuplicateInstanceNames(t *testing.T) {
	attempter := newFakeAttempter("demo.Factory")
	list := waiting.New(attempter)

	require.NoError(t, list.Add("demo.Factory", "inst-1", nil))
	err := list.Add("demo.Factory", "inst-1", nil)

	var dup *waiting.ErrDuplicateInstance
	assert.ErrorAs(t, err, &dup)
}

func TestFactoryRegisteredRetriesQueuedEntries(t *testing.T) {
	attempter := newFakeAttempter()
	list := waiting.New(attempter)

	require.NoError(t, list.Add("demo.Factory", "inst-1", nil))
	require.NoError(t, list.Add("demo.Factory", "inst-2", nil))
	require.NoError(t, list.Add("other.Factory", "inst-3", nil))

	assert.Empty(t, attempter.succeeded)

	attempter.learn("demo.Factory")
	list.FactoryRegistered("demo.Factory")

	assert.ElementsMatch(t, []string{"inst-1", "inst-2"}, attempter.succeeded)
}

func TestRemoveMapsBackToFactory(t *testing.T) {
	attempter := newFakeAttempter("demo.Factory")
	list := waiting.New(attempter)
	require.NoError(t, list.Add("demo.Factory", "inst-1", nil))

	factory, ok := list.Remove("inst-1")
	require.True(t, ok)
	assert.Equal(t, "demo.Factory", factory)

	_, ok = list.Remove("inst-1")
	assert.False(t, ok)
}

func TestSweepRetriesEverything(t *testing.T) {
	attempter := newFakeAttempter()
	list := waiting.New(attempter)
	require.NoError(t, list.Add("a.Factory", "inst-a", nil))
	require.NoError(t, list.Add("b.Factory", "inst-b", nil))

	attempter.learn("a.Factory")
	attempter.learn("b.Factory")
	list.Sweep()

	assert.ElementsMatch(t, []string{"inst-a", "inst-b"}, attempter.succeeded)
}
