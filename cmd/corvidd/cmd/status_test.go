package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_BasicExecution(t *testing.T) {
	dataDirFlag = t.TempDir()
	t.Cleanup(func() { dataDirFlag = "" })

	var stdout bytes.Buffer
	cmd := newStatusCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	require.NoError(t, err)
	output := stdout.String()
	assert.Contains(t, output, "Store status")
	assert.Contains(t, output, "Tombstones:")
}

func TestStatusCmd_JSONOutput(t *testing.T) {
	dataDirFlag = t.TempDir()
	t.Cleanup(func() { dataDirFlag = "" })

	var stdout bytes.Buffer
	cmd := newStatusCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--json"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := stdout.String()
	assert.Contains(t, output, `"data_dir"`)
	assert.Contains(t, output, `"tombstone_count"`)
}

func TestStatusCmd_AddedToRoot(t *testing.T) {
	rootCmd := NewRootCmd()

	statusCmd, _, err := rootCmd.Find([]string{"status"})

	require.NoError(t, err)
	assert.Equal(t, "status", statusCmd.Name())
}
