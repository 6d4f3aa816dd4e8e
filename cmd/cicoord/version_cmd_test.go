package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd := newVersionCommand()
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimRight(buf.String(), "\n"), err
}

func TestVersionCommand_ExtraArgs(t *testing.T) {
	for _, args := range [][]string{{"foo"}, {"foo", "bar"}} {
		_, err := runVersion(t, args...)
		var usage usageError
		require.ErrorAs(t, err, &usage, "%v", args)
		assert.Contains(t, err.Error(), "version takes no arguments")
	}
}

func TestVersionCommand_Stamped(t *testing.T) {
	defer func(v string) { version = v }(version)
	for _, v := range []string{"v1.0.0", "v2.0.0"} {
		version = v
		out, err := runVersion(t)
		require.NoError(t, err)
		assert.Equal(t, v, out)
	}
}

func TestVersionCommand_Unstamped(t *testing.T) {
	defer func(v string) { version = v }(version)
	version = ""
	out, err := runVersion(t)
	require.NoError(t, err)
	// test binaries carry no released module version
	assert.Equal(t, "unversioned", out)
}
