package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "corvidd")
	assert.Contains(t, output, "Model Context Protocol")
}

func TestRootCmd_RegistersExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"serve", "doctor", "setup", "version", "config", "status"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "expected %q subcommand to be registered", name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "corvidd version")
}
