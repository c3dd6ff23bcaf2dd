// Package compaction runs a periodic background scan for dense indexes
// whose ghost-vector ratio has crossed the compaction threshold, so a
// long-lived store doesn't accumulate unbounded tombstoned vectors.
package compaction

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corvidmem/corvid/internal/cerrors"
)

// ScanFunc performs one compaction pass, reporting progress as it goes.
// Its return value is the list of slots the pass reports: the slots it
// rebuilt, or, for a pass that only reports, the slots it found eligible.
type ScanFunc func(ctx context.Context, progress *ScanProgress) ([]string, error)

// ScannerConfig configures the BackgroundScanner.
type ScannerConfig struct {
	DataDir  string
	Cooldown time.Duration
}

// BackgroundScanner runs compaction scans on a timer in a background
// goroutine, skipping a scan if the previous one finished within
// Cooldown.
type BackgroundScanner struct {
	config   ScannerConfig
	progress *ScanProgress

	// ScanFunc is the actual compaction work. Injected for testing.
	ScanFunc ScanFunc

	stopCh chan struct{}
	doneCh chan struct{}

	retry   cerrors.RetryConfig
	breaker *cerrors.CircuitBreaker

	mu      sync.Mutex
	running bool
	lastRun time.Time
	err     error
}

// NewBackgroundScanner creates a new background compaction scanner. Scans
// run through a bounded retry (3 attempts, exponential backoff up to 16s)
// guarded by a circuit breaker that trips after 3 consecutive failed
// scans and stays open for 5 minutes, so a persistently failing index
// backend degrades the scanner to a no-op instead of retrying forever on
// every tick.
func NewBackgroundScanner(cfg ScannerConfig) *BackgroundScanner {
	return &BackgroundScanner{
		config:   cfg,
		progress: NewScanProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		retry:    cerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 16 * time.Second, Multiplier: 2.0},
		breaker: cerrors.NewCircuitBreaker("compaction-scan",
			cerrors.WithMaxFailures(3),
			cerrors.WithResetTimeout(5*time.Minute)),
	}
}

// Progress returns the progress tracker for this scanner.
func (b *BackgroundScanner) Progress() *ScanProgress {
	return b.progress
}

// IsRunning returns true if a scan is currently in flight.
func (b *BackgroundScanner) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins running scans on interval in a background goroutine,
// until Stop is called or ctx is cancelled. Non-blocking.
func (b *BackgroundScanner) Start(ctx context.Context, interval time.Duration) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.run(ctx, interval)
}

func (b *BackgroundScanner) run(ctx context.Context, interval time.Duration) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.runOnce(ctx)
		}
	}
}

func (b *BackgroundScanner) runOnce(ctx context.Context) {
	b.mu.Lock()
	since := time.Since(b.lastRun)
	if b.lastRun.IsZero() {
		since = b.config.Cooldown
	}
	if since < b.config.Cooldown {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	lockPath := filepath.Join(b.config.DataDir, "compaction.lock")
	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		b.progress.SetError(err.Error())
		return
	}
	if err := os.WriteFile(lockPath, []byte(time.Now().Format(time.RFC3339)), 0o644); err != nil {
		b.progress.SetError(err.Error())
		return
	}
	defer func() { _ = os.Remove(lockPath) }()

	b.progress.Reset()

	if b.ScanFunc == nil {
		b.progress.SetReady()
		return
	}

	compacted, err := cerrors.CircuitExecuteWithResult(b.breaker,
		func() ([]string, error) {
			return cerrors.RetryWithResult(ctx, b.retry, func() ([]string, error) { return b.ScanFunc(ctx, b.progress) })
		},
		func() ([]string, error) { return nil, cerrors.ErrCircuitOpen })
	b.mu.Lock()
	b.lastRun = time.Now()
	b.err = err
	b.mu.Unlock()

	if err != nil {
		b.progress.SetError(err.Error())
		return
	}
	b.progress.SetCompacted(compacted)
	b.progress.SetReady()
}

// Stop signals the scanner to stop and waits for it to finish.
func (b *BackgroundScanner) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh
}

// Wait blocks until the scanner's goroutine exits and returns the last
// scan's error, if any.
func (b *BackgroundScanner) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteLock reports whether a compaction run was interrupted
// before cleaning up its lock file.
func HasIncompleteLock(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, "compaction.lock"))
	return err == nil
}

// ParseCooldown parses a config.CompactionConfig.Cooldown string,
// falling back to 1 hour if it is empty or malformed.
func ParseCooldown(s string) time.Duration {
	if s == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Hour
	}
	return d
}
