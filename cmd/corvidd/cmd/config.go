package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvidmem/corvid/internal/config"
	"github.com/corvidmem/corvid/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

User configuration contains machine-wide settings that apply across every
data directory on this machine: the embedder backend, store cache sizing,
RRF and tombstone tuning, and the invocation surface's transport.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/corvid/config.yaml)
  3. Project config (.corvid.yaml in the data directory)
  4. Environment variables (CORVID_*)`,
		Example: `  # Create user config from defaults
  corvidd config init

  # Show effective configuration
  corvidd config show

  # Print user config file path
  corvidd config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user/global configuration file, populated with defaults,
at ~/.config/corvid/config.yaml (or $XDG_CONFIG_HOME/corvid/config.yaml).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	configPath := config.GetUserConfigPath()
	configDir := config.GetUserConfigDir()

	if config.UserConfigExists() && !force {
		out.Warning("User configuration already exists")
		out.Statusf("📁", "Location: %s", configPath)
		out.Status("💡", "Use --force to overwrite with fresh defaults")
		return nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := config.NewConfig()
	if err := cfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	out.Success("User configuration created")
	out.Statusf("📁", "Location: %s", configPath)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging defaults, the user
config, the data directory's project config, and environment overrides.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	dataDir := resolveDataDir()
	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "data_dir:            %s", cfg.Paths.DataDir)
	out.Statusf("", "block_cache_mb:      %d", cfg.Store.BlockCacheMB)
	out.Statusf("", "embedder_backend:    %s", cfg.Embedders.Backend)
	out.Statusf("", "default_profile:     %s", cfg.Search.DefaultProfile)
	out.Statusf("", "tombstone_recovery:  %d days", cfg.Tombstone.RecoveryDays)
	out.Statusf("", "compaction_enabled:  %t", cfg.Compaction.Enabled)
	out.Statusf("", "server_transport:    %s", cfg.Server.Transport)
	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
