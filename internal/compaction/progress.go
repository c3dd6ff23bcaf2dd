package compaction

import (
	"sync"
	"time"
)

// ScanStatus represents the overall state of a compaction scan.
type ScanStatus string

const (
	// StatusScanning indicates a scan is in progress.
	StatusScanning ScanStatus = "scanning"
	// StatusReady indicates the most recent scan finished cleanly.
	StatusReady ScanStatus = "ready"
	// StatusError indicates the most recent scan failed.
	StatusError ScanStatus = "error"
)

// ScanProgressSnapshot is an immutable snapshot of scan progress.
type ScanProgressSnapshot struct {
	Status         string   `json:"status"`
	CandidatesSeen int      `json:"candidates_seen"`
	Compacted      []string `json:"compacted,omitempty"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	ErrorMessage   string   `json:"error_message,omitempty"`
}

// ScanProgress provides thread-safe tracking of one compaction scan.
type ScanProgress struct {
	mu sync.RWMutex

	status         ScanStatus
	candidatesSeen int
	compacted      []string
	startTime      time.Time
	errorMessage   string
}

// NewScanProgress creates a progress tracker initialized for a new scan.
func NewScanProgress() *ScanProgress {
	return &ScanProgress{
		status:    StatusScanning,
		startTime: time.Now(),
	}
}

// Reset reinitializes the tracker for a fresh scan.
func (p *ScanProgress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusScanning
	p.candidatesSeen = 0
	p.compacted = nil
	p.startTime = time.Now()
	p.errorMessage = ""
}

// SetCandidatesSeen records how many slots the scan found eligible for
// compaction before acting on them.
func (p *ScanProgress) SetCandidatesSeen(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.candidatesSeen = n
}

// SetCompacted records the slot list the scan returned: the slots it
// rebuilt, or, for a report-only scan, the slots it found eligible.
func (p *ScanProgress) SetCompacted(slots []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.compacted = slots
}

// SetError marks the scan as failed with an error message.
func (p *ScanProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the scan as complete.
func (p *ScanProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsScanning returns true if a scan is still in progress.
func (p *ScanProgress) IsScanning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusScanning
}

// Snapshot returns an immutable copy of the current progress state.
func (p *ScanProgress) Snapshot() ScanProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ScanProgressSnapshot{
		Status:         string(p.status),
		CandidatesSeen: p.candidatesSeen,
		Compacted:      p.compacted,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
