package framework_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcalmant/ipopo-sub000/internal/framework"
)

func TestUIDsAreUnique(t *testing.T) {
	a := framework.UID()
	b := framework.UID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewAssignsFrameworkProperties(t *testing.T) {
	fw := framework.New(framework.DefaultProperties())

	uid, ok := fw.FrameworkProperty("framework.uid")
	require.True(t, ok)
	assert.Equal(t, fw.UID(), uid)

	uuidProp, ok := fw.FrameworkProperty("org.osgi.framework.uuid")
	require.True(t, ok)
	assert.Equal(t, fw.UID(), uuidProp)

	_, ok = fw.FrameworkProperty("unknown.key")
	assert.False(t, ok)
}

func TestLoadPropertiesFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("temporal_timeout: 5s\n"), 0o644))

	props, err := framework.LoadProperties(path)
	require.NoError(t, err)
	assert.Equal(t, framework.DefaultProperties().WaitingListRetryInterval, props.WaitingListRetryInterval)
}

func TestInstallAndStopBundle(t *testing.T) {
	fw := framework.New(framework.DefaultProperties())

	ctx := fw.InstallBundle("demo.bundle")
	require.NotNil(t, ctx)
	assert.Equal(t, int64(1), ctx.Bundle().ID())

	require.NoError(t, fw.StopBundle(ctx.Bundle().ID()))
}
