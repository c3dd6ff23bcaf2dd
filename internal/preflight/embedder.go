package preflight

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/corvidmem/corvid/internal/embedder"
)

// MinModelDiskSpaceBytes is the minimum disk space needed for an Ollama
// embedding model pull (~1.5GB for the default qwen3-embedding model).
const MinModelDiskSpaceBytes = 1.5 * 1024 * 1024 * 1024 // 1.5 GB

// CheckEmbedderModel checks whether the ollama backend is reachable and the
// default embedding model is present. Reported as a warning, never
// critical, since the static backend needs no ollama. A pool built with
// the ollama backend does not switch to static when ollama is unreachable.
func (c *Checker) CheckEmbedderModel(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder_model",
		Required: false,
	}

	manager := embedder.NewOllamaManager()
	installed, _, err := manager.IsInstalled()
	if err != nil || !installed {
		result.Status = StatusWarn
		result.Message = "ollama not installed (the static backend does not need it)"
		result.Details = embedder.InstallInstructions()
		return result
	}

	running, err := manager.IsRunning()
	if err != nil || !running {
		result.Status = StatusWarn
		result.Message = "ollama installed but not running (the static backend does not need it)"
		return result
	}

	hasModel, err := manager.HasModel(ctx, embedder.DefaultOllamaModel)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot query ollama models: %v", err)
		return result
	}
	if !hasModel {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %s not pulled yet (will prompt on first run)", embedder.DefaultOllamaModel)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("ollama running with model %s", embedder.DefaultOllamaModel)
	return result
}

// CheckEmbedderDiskSpace checks if there's enough disk space for a model pull.
func (c *Checker) CheckEmbedderDiskSpace() CheckResult {
	result := CheckResult{
		Name:     "embedder_disk_space",
		Required: false, // Non-critical - we can fall back to static
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Cannot determine home directory: %v", err)
		return result
	}

	// Check disk space in home directory (where ollama stores pulled models).
	var stat syscall.Statfs_t
	if err := syscall.Statfs(homeDir, &stat); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Cannot check disk space: %v", err)
		return result
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)

	if availableBytes < uint64(MinModelDiskSpaceBytes) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s available (model needs ~1.5 GB)", formatBytes(availableBytes))
		result.Details = "Consider freeing up disk space or use the static embedder backend"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available for model download", formatBytes(availableBytes))
	return result
}
