package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report store health: degraded slots, tombstones, and embedder model versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	deps, err := buildEngineDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := context.Background()

	tombstones, err := deps.store.AllTombstones(ctx)
	if err != nil {
		return err
	}

	versions, err := deps.store.ModelVersions(ctx)
	if err != nil {
		return err
	}

	degraded := deps.idx.DegradedSlots()
	degradedNames := make([]string, len(degraded))
	for i, slot := range degraded {
		degradedNames[i] = slot.String()
	}

	modelVersions := make([]ui.EmbedderVersionInfo, len(versions))
	for i, v := range versions {
		modelVersions[i] = ui.EmbedderVersionInfo{
			Embedder:  embedder.Index(v.EmbedderIndex).String(),
			Model:     v.ModelIdentifier,
			FirstSeen: v.FirstSeenAt,
		}
	}

	info := ui.StatusInfo{
		DataDir:         deps.cfg.Paths.DataDir,
		EmbedderBackend: deps.cfg.Embedders.Backend,
		DegradedSlots:   degradedNames,
		TombstoneCount:  len(tombstones),
		ModelVersions:   modelVersions,
	}

	out := cmd.OutOrStdout()
	noColor := ui.DetectNoColor() || !ui.IsTTY(out)
	renderer := ui.NewStatusRenderer(out, noColor)
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}
