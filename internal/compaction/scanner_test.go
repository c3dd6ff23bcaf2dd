package compaction

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackgroundScanner(t *testing.T) {
	cfg := ScannerConfig{DataDir: t.TempDir(), Cooldown: time.Hour}

	scanner := NewBackgroundScanner(cfg)

	require.NotNil(t, scanner)
	assert.NotNil(t, scanner.Progress())
	assert.False(t, scanner.IsRunning())
}

func TestBackgroundScanner_Start_RunsScanOnTick(t *testing.T) {
	cfg := ScannerConfig{DataDir: t.TempDir(), Cooldown: 0}
	scanner := NewBackgroundScanner(cfg)

	var ran atomic.Bool
	scanner.ScanFunc = func(ctx context.Context, progress *ScanProgress) ([]string, error) {
		ran.Store(true)
		return []string{"E5-cause"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	scanner.Start(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return ran.Load() }, time.Second, 5*time.Millisecond)

	cancel()
	err := scanner.Wait()
	require.NoError(t, err)
	assert.False(t, scanner.IsRunning())
}

func TestBackgroundScanner_RespectsCooldown(t *testing.T) {
	cfg := ScannerConfig{DataDir: t.TempDir(), Cooldown: time.Hour}
	scanner := NewBackgroundScanner(cfg)
	scanner.lastRun = time.Now()

	var calls atomic.Int32
	scanner.ScanFunc = func(ctx context.Context, progress *ScanProgress) ([]string, error) {
		calls.Add(1)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	scanner.Start(ctx, 5*time.Millisecond)
	_ = scanner.Wait()

	assert.Equal(t, int32(0), calls.Load())
}

func TestBackgroundScanner_Stop_WaitsForCompletion(t *testing.T) {
	cfg := ScannerConfig{DataDir: t.TempDir(), Cooldown: 0}
	scanner := NewBackgroundScanner(cfg)
	scanner.ScanFunc = func(ctx context.Context, progress *ScanProgress) ([]string, error) {
		return nil, nil
	}

	scanner.Start(context.Background(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	scanner.Stop()

	assert.False(t, scanner.IsRunning())
}

func TestHasIncompleteLock(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasIncompleteLock(dir))
}

func TestParseCooldown(t *testing.T) {
	assert.Equal(t, time.Hour, ParseCooldown(""))
	assert.Equal(t, time.Hour, ParseCooldown("not-a-duration"))
	assert.Equal(t, 30*time.Minute, ParseCooldown("30m"))
}
