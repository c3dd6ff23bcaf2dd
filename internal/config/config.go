// Package config loads and validates the engine's configuration record.
//
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/corvid/config.yaml)
//  3. Project config (.corvid.yaml in the data directory)
//  4. Environment variables (CORVID_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embedders  EmbeddersConfig  `yaml:"embedders" json:"embedders"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Tombstone  TombstoneConfig  `yaml:"tombstone" json:"tombstone"`
	Compaction CompactionConfig `yaml:"compaction" json:"compaction"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Purpose    PurposeConfig    `yaml:"purpose" json:"purpose"`
}

// PathsConfig locates the engine's on-disk state.
type PathsConfig struct {
	// DataDir is the root directory for the primary store, indexes, and
	// the advisory process lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// StoreConfig configures the primary column-family store.
type StoreConfig struct {
	// BlockCacheMB sizes the single shared block cache injected into every
	// column family. There is no per-family cache.
	BlockCacheMB int `yaml:"block_cache_mb" json:"block_cache_mb"`
}

// EmbeddersConfig configures the 13-embedder roster. The embedding models
// themselves are out of scope; this selects the embedder backend.
type EmbeddersConfig struct {
	// Backend selects the embedder implementation: "static" (deterministic
	// hash-based vectors, default), "stub" (fixed non-zero vectors, for
	// tests), or "ollama" (a local Ollama model projected into each
	// embedder's declared shape).
	Backend string `yaml:"backend" json:"backend"`
	// BatchSize is validated and merged with the rest of the record, but
	// nothing outside this package reads it: a fingerprint build calls
	// every embedder in the pool regardless of its value.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SearchConfig configures multi-space search and fusion defaults.
type SearchConfig struct {
	// RRFConstant is the reciprocal rank fusion smoothing parameter (k).
	// Default: 60 (industry standard). The search engine does not read it:
	// its fuser always uses fusion.DefaultK (60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// CandidateMultiplier (alpha) is validated but not read by the search
	// engine, which sizes per-embedder candidate lists from its own
	// search.Config.CandidateFanout.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	// DefaultProfile is shown by `corvidd config`. The search engine does
	// not read it: with neither a named profile nor an explicit weight map,
	// it falls back to semantic_search.
	DefaultProfile string `yaml:"default_profile" json:"default_profile"`
	// MaxResults bounds top_k when a caller omits it.
	MaxResults int `yaml:"max_results" json:"max_results"`
	// MaxCustomProfiles is validated and merged but not read by the profile
	// package, whose session-scoped map is capped at
	// profile.MaxCustomProfiles (64).
	MaxCustomProfiles int `yaml:"max_custom_profiles" json:"max_custom_profiles"`
}

// TombstoneConfig configures soft-delete behavior.
type TombstoneConfig struct {
	// RecoveryDays is the window during which a soft-deleted fingerprint
	// can be restored. Default: 30.
	RecoveryDays int `yaml:"recovery_days" json:"recovery_days"`
	// Shards must be a power of two. Default: 32. lifecycle.TombstoneSet
	// does not read it; the set always has 32 shards.
	Shards int `yaml:"shards" json:"shards"`
}

// CompactionConfig configures background index compaction.
type CompactionConfig struct {
	// Enabled turns on the background compaction scan in `corvidd serve`,
	// which reports the dense slots due for compaction.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// OrphanThreshold is validated (0 to 1) but not read by the scanner:
	// eligibility uses the fixed index.CompactionThreshold (0.2).
	// Default: 0.2 (20%).
	OrphanThreshold float64 `yaml:"orphan_threshold" json:"orphan_threshold"`
	// MinOrphanCount is merged but not read by the scanner; eligibility
	// has no minimum orphan count.
	MinOrphanCount int `yaml:"min_orphan_count" json:"min_orphan_count"`
	// Cooldown is the minimum time between two background scans (one
	// cooldown for all indexes), expressed as a Go duration string (e.g. "1h").
	Cooldown string `yaml:"cooldown" json:"cooldown"`
}

// PurposeConfig configures PurposeVector alignment scoring.
type PurposeConfig struct {
	// ReferenceText, if set, is embedded once at startup and used as the
	// fixed reference every fingerprint's PurposeVector is scored against.
	// Left empty, PurposeVector stays at its zero value.
	ReferenceText string `yaml:"reference_text" json:"reference_text"`
}

// ServerConfig configures the invocation surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultDataDir returns ~/.corvid/data, falling back to a temp directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".corvid", "data")
	}
	return filepath.Join(home, ".corvid", "data")
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Store: StoreConfig{
			BlockCacheMB: 64,
		},
		Embedders: EmbeddersConfig{
			Backend:   "static",
			BatchSize: 13,
		},
		Search: SearchConfig{
			RRFConstant:         60,
			CandidateMultiplier: 3,
			DefaultProfile:      "semantic_search",
			MaxResults:          20,
			MaxCustomProfiles:   32,
		},
		Tombstone: TombstoneConfig{
			RecoveryDays: 30,
			Shards:       32,
		},
		Compaction: CompactionConfig{
			Enabled:         true,
			OrphanThreshold: 0.2,
			MinOrphanCount:  100,
			Cooldown:        "1h",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8787,
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corvid", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "corvid", "config.yaml")
	}
	return filepath.Join(home, ".config", "corvid", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration rooted at dir, applying the full precedence
// chain, and validates the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".corvid.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".corvid.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Store.BlockCacheMB != 0 {
		c.Store.BlockCacheMB = other.Store.BlockCacheMB
	}
	if other.Embedders.Backend != "" {
		c.Embedders.Backend = other.Embedders.Backend
	}
	if other.Embedders.BatchSize != 0 {
		c.Embedders.BatchSize = other.Embedders.BatchSize
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.CandidateMultiplier != 0 {
		c.Search.CandidateMultiplier = other.Search.CandidateMultiplier
	}
	if other.Search.DefaultProfile != "" {
		c.Search.DefaultProfile = other.Search.DefaultProfile
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.MaxCustomProfiles != 0 {
		c.Search.MaxCustomProfiles = other.Search.MaxCustomProfiles
	}
	if other.Tombstone.RecoveryDays != 0 {
		c.Tombstone.RecoveryDays = other.Tombstone.RecoveryDays
	}
	if other.Tombstone.Shards != 0 {
		c.Tombstone.Shards = other.Tombstone.Shards
	}
	if other.Compaction.OrphanThreshold != 0 {
		c.Compaction.OrphanThreshold = other.Compaction.OrphanThreshold
	}
	if other.Compaction.MinOrphanCount != 0 {
		c.Compaction.MinOrphanCount = other.Compaction.MinOrphanCount
	}
	if other.Compaction.Cooldown != "" {
		c.Compaction.Cooldown = other.Compaction.Cooldown
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Purpose.ReferenceText != "" {
		c.Purpose.ReferenceText = other.Purpose.ReferenceText
	}
}

// applyEnvOverrides applies CORVID_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORVID_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("CORVID_BLOCK_CACHE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Store.BlockCacheMB = n
		}
	}
	if v := os.Getenv("CORVID_EMBEDDER_BACKEND"); v != "" {
		c.Embedders.Backend = v
	}
	if v := os.Getenv("CORVID_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CORVID_DEFAULT_PROFILE"); v != "" {
		c.Search.DefaultProfile = v
	}
	if v := os.Getenv("CORVID_COMPACTION_ENABLED"); v != "" {
		c.Compaction.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CORVID_COMPACTION_ORPHAN_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Compaction.OrphanThreshold = t
		}
	}
	if v := os.Getenv("CORVID_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CORVID_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("CORVID_PURPOSE_REFERENCE_TEXT"); v != "" {
		c.Purpose.ReferenceText = v
	}
}

func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate checks invariants the engine depends on at construction time.
func (c *Config) Validate() error {
	if c.Store.BlockCacheMB <= 0 {
		return fmt.Errorf("store.block_cache_mb must be positive, got %d", c.Store.BlockCacheMB)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return fmt.Errorf("search.candidate_multiplier must be positive, got %d", c.Search.CandidateMultiplier)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Tombstone.RecoveryDays <= 0 {
		return fmt.Errorf("tombstone.recovery_days must be positive, got %d", c.Tombstone.RecoveryDays)
	}
	if c.Tombstone.Shards <= 0 || (c.Tombstone.Shards&(c.Tombstone.Shards-1)) != 0 {
		return fmt.Errorf("tombstone.shards must be a positive power of two, got %d", c.Tombstone.Shards)
	}
	if c.Compaction.OrphanThreshold < 0 || c.Compaction.OrphanThreshold > 1 {
		return fmt.Errorf("compaction.orphan_threshold must be between 0 and 1, got %f", c.Compaction.OrphanThreshold)
	}

	validBackends := map[string]bool{"static": true, "stub": true, "ollama": true}
	if !validBackends[strings.ToLower(c.Embedders.Backend)] {
		return fmt.Errorf("embedders.backend must be 'static', 'stub', or 'ollama', got %s", c.Embedders.Backend)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if math.IsNaN(c.Compaction.OrphanThreshold) {
		return fmt.Errorf("compaction.orphan_threshold must not be NaN")
	}

	return nil
}

// WriteYAML serializes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, returning (nil, nil)
// if it does not exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
