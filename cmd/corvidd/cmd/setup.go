package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/output"
)

func newSetupCmd() *cobra.Command {
	var (
		check bool
		auto  bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Set up the ollama embedder backend",
		Long: `Set up corvid's ollama embedder backend.

This command will:
1. Check if Ollama is installed and running
2. Start Ollama if installed but not running
3. Pull the default embedding model if needed
4. Validate the setup is working

Use --auto for non-interactive mode. If Ollama can't be reached,
corvid falls back to the deterministic static backend automatically.`,
		Example: `  # Interactive setup (starts Ollama, pulls model if needed)
  corvidd setup

  # Check status only
  corvidd setup --check

  # Non-interactive setup (for scripts)
  corvidd setup --auto`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSetup(ctx, cmd, check, auto)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only check status, don't start or pull")
	cmd.Flags().BoolVar(&auto, "auto", false, "Non-interactive mode (auto-start, auto-pull)")

	return cmd
}

func runSetup(ctx context.Context, cmd *cobra.Command, checkOnly, auto bool) error {
	out := output.New(cmd.OutOrStdout())

	out.Status("🔧", "corvid embedder setup")
	out.Newline()

	manager := embedder.NewOllamaManager()

	out.Status("🔍", "Checking Ollama status...")
	installed, path, err := manager.IsInstalled()
	if err != nil {
		out.Warningf("install check warning: %v", err)
	}
	running, _ := manager.IsRunning()
	hasModel, _ := manager.HasModel(ctx, embedder.DefaultOllamaModel)

	out.Newline()
	out.Status("📊", "Embedder status:")

	installedStr := "❌ Not installed"
	if installed {
		installedStr = fmt.Sprintf("✅ Installed (%s)", path)
	}
	out.Status("", fmt.Sprintf("  Ollama:  %s", installedStr))

	runningStr := "❌ Not running"
	if running {
		runningStr = "✅ Running"
	}
	out.Status("", fmt.Sprintf("  Status:  %s", runningStr))

	modelStr := fmt.Sprintf("❌ Not pulled (%s)", embedder.DefaultOllamaModel)
	if hasModel {
		modelStr = fmt.Sprintf("✅ Available (%s)", embedder.DefaultOllamaModel)
	}
	out.Status("", fmt.Sprintf("  Model:   %s", modelStr))
	out.Newline()

	if checkOnly {
		return nil
	}

	if !installed {
		embedder.ShowInstallInstructions(cmd.OutOrStdout())
		if auto {
			out.Warning("ollama not installed; falling back to the static backend")
			return nil
		}
		choice, err := embedder.PromptNoBackend(cmd.OutOrStdout(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		if choice != embedder.SetupFallbackStatic {
			return nil
		}
		out.Status("📴", "Configured to fall back to the static backend")
		return nil
	}

	if !running {
		out.Status("🚀", "Starting Ollama...")
		if err := manager.Start(); err != nil {
			return fmt.Errorf("start ollama: %w", err)
		}
		if err := manager.WaitForReady(ctx, 0); err != nil {
			return fmt.Errorf("wait for ollama: %w", err)
		}
		out.Success("Ollama is running")
	}

	if !hasModel {
		if !auto {
			ok, err := embedder.PromptPullModel(cmd.OutOrStdout(), cmd.InOrStdin(), embedder.DefaultOllamaModel)
			if err != nil {
				return err
			}
			if !ok {
				out.Warning("model pull cancelled")
				return nil
			}
		}
		out.Statusf("⬇️ ", "Pulling %s...", embedder.DefaultOllamaModel)
		if err := manager.PullModel(ctx, embedder.DefaultOllamaModel); err != nil {
			return fmt.Errorf("pull model: %w", err)
		}
		out.Success("Model pulled")
	}

	out.Success("Embedder backend is ready")
	return nil
}
