package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommandPrintsFrameworkUIDAndBindsGreeter(t *testing.T) {
	root := newRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"run"})

	require.NoError(t, root.Execute())

	out := buf.String()
	assert.Contains(t, out, "framework uid:")
	assert.Contains(t, out, "hello from the demo bundle")
	assert.Contains(t, out, `instance "consumer-1" state:`)
}
