package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 3, cfg.Search.CandidateMultiplier)
	assert.Equal(t, "semantic_search", cfg.Search.DefaultProfile)
	assert.Equal(t, 20, cfg.Search.MaxResults)

	assert.Equal(t, "static", cfg.Embedders.Backend)
	assert.Equal(t, 13, cfg.Embedders.BatchSize)

	assert.Equal(t, 64, cfg.Store.BlockCacheMB)

	assert.Equal(t, 30, cfg.Tombstone.RecoveryDays)
	assert.Equal(t, 32, cfg.Tombstone.Shards)

	assert.True(t, cfg.Compaction.Enabled)
	assert.Equal(t, 0.2, cfg.Compaction.OrphanThreshold)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  rrf_constant: 40
  default_profile: causal_reasoning
tombstone:
  recovery_days: 14
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".corvid.yaml"), []byte(yamlContent), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Search.RRFConstant)
	assert.Equal(t, "causal_reasoning", cfg.Search.DefaultProfile)
	assert.Equal(t, 14, cfg.Tombstone.RecoveryDays)
	// Untouched fields keep their defaults.
	assert.Equal(t, 64, cfg.Store.BlockCacheMB)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "search:\n  rrf_constant: 40\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".corvid.yaml"), []byte(yamlContent), 0o644))

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CORVID_RRF_CONSTANT", "99")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Search.RRFConstant)
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero block cache", func(c *Config) { c.Store.BlockCacheMB = 0 }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"negative max results", func(c *Config) { c.Search.MaxResults = -1 }},
		{"non power-of-two shards", func(c *Config) { c.Tombstone.Shards = 30 }},
		{"out-of-range orphan threshold", func(c *Config) { c.Compaction.OrphanThreshold = 1.5 }},
		{"unknown embedder backend", func(c *Config) { c.Embedders.Backend = "bogus" }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "grpc" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Search.DefaultProfile = "code_search"
	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, "code_search", loaded.Search.DefaultProfile)
}
