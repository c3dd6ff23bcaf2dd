package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEngineDeps_WiresTelemetryStore(t *testing.T) {
	dataDirFlag = t.TempDir()
	t.Cleanup(func() { dataDirFlag = "" })

	deps, err := buildEngineDeps()
	require.NoError(t, err)
	defer deps.Close()

	require.NotNil(t, deps.metrics)

	snap := deps.metrics.Snapshot()
	assert.Zero(t, snap.TotalQueries)
}

func TestNewCompactionScanner_ReportsNoCandidatesOnEmptyStore(t *testing.T) {
	dataDirFlag = t.TempDir()
	t.Cleanup(func() { dataDirFlag = "" })

	deps, err := buildEngineDeps()
	require.NoError(t, err)
	defer deps.Close()

	scanner := newCompactionScanner(deps)
	require.NotNil(t, scanner.ScanFunc)

	compacted, err := scanner.ScanFunc(context.Background(), scanner.Progress())
	require.NoError(t, err)
	assert.Empty(t, compacted)
}

func TestServeCmd_AddedToRoot(t *testing.T) {
	rootCmd := NewRootCmd()

	serveCmd, _, err := rootCmd.Find([]string{"serve"})

	require.NoError(t, err)
	assert.Equal(t, "serve", serveCmd.Name())
}
