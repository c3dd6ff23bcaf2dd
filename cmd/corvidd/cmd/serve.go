package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidmem/corvid/internal/compaction"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the corvid MCP server",
		Long: `Start the corvid invocation surface over the Model Context Protocol.

The stdio transport requires stdout be reserved exclusively for JSON-RPC
messages; all diagnostics go to the debug log (see --debug) instead.`,
		Example: `  # Start the server on stdio (the default, and only supported transport)
  corvidd serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	deps, err := buildEngineDeps()
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer deps.Close()

	slog.Info("starting corvid server",
		slog.String("data_dir", deps.cfg.Paths.DataDir),
		slog.String("transport", transport),
		slog.String("embedder_backend", deps.cfg.Embedders.Backend))

	if deps.cfg.Compaction.Enabled {
		scanner := newCompactionScanner(deps)
		scanner.Start(ctx, compactionScanInterval)
		defer func() {
			scanner.Stop()
			_ = scanner.Wait()
		}()
	}

	go runReversalEnvelopeReaper(ctx, deps)

	if err := deps.srv.Serve(ctx, transport); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// compactionScanInterval is how often the background scanner checks
// dense indexes against index.CompactionThreshold.
const compactionScanInterval = 15 * time.Minute

// reversalEnvelopeReapInterval is how often expired merge reversal
// envelopes are purged from the primary store.
const reversalEnvelopeReapInterval = time.Hour

// runReversalEnvelopeReaper deletes reversal envelopes past their 30-day
// window on a fixed tick, until ctx is cancelled. Run as its own
// goroutine rather than through BackgroundScanner: it has no cooldown
// lockfile to coordinate and no candidate-surfacing return value, just a
// row count to log.
func runReversalEnvelopeReaper(ctx context.Context, deps *engineDeps) {
	ticker := time.NewTicker(reversalEnvelopeReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := deps.store.ReapExpiredReversalEnvelopes(ctx, time.Now())
			if err != nil {
				slog.Error("reversal envelope reap failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				slog.Info("reaped expired reversal envelopes", slog.Int("count", n))
			}
		}
	}
}

// newCompactionScanner wires a background scanner that reports which
// dense slots have crossed the compaction threshold. It does not rebuild
// them: doing so needs every live embedding for a slot re-fetched from
// the store, which the scan itself doesn't require, so ScanFunc here only
// surfaces candidates for an operator (or a future rebuild path) to act
// on.
func newCompactionScanner(deps *engineDeps) *compaction.BackgroundScanner {
	cooldown := compaction.ParseCooldown(deps.cfg.Compaction.Cooldown)
	scanner := compaction.NewBackgroundScanner(compaction.ScannerConfig{
		DataDir:  deps.cfg.Paths.DataDir,
		Cooldown: cooldown,
	})
	scanner.ScanFunc = func(ctx context.Context, progress *compaction.ScanProgress) ([]string, error) {
		candidates := deps.idx.CompactionCandidates()
		progress.SetCandidatesSeen(len(candidates))
		names := make([]string, len(candidates))
		for i, slot := range candidates {
			names[i] = slot.String()
		}
		if len(names) > 0 {
			slog.Info("compaction candidates found", slog.Any("slots", names))
		}
		return names, nil
	}
	return scanner
}
