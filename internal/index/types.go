// Package index implements the per-embedder retrieval substrates: dense
// HNSW graphs, sparse inverted indexes, and token-level MaxSim storage.
package index

import (
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// Candidate is one result from a single embedder's substrate, before fusion.
type Candidate struct {
	ID       fingerprint.ID
	Rank     int     // 1-based
	RawScore float64 // native to the substrate; normalize before fusing
}

// Stats describes a substrate's size for compaction decisions.
type Stats struct {
	LiveIDs    int
	TotalNodes int
}

// OrphanRatio reports (TotalNodes-LiveIDs)/TotalNodes, or 0 when empty.
func (s Stats) OrphanRatio() float64 {
	if s.TotalNodes == 0 {
		return 0
	}
	return float64(s.TotalNodes-s.LiveIDs) / float64(s.TotalNodes)
}
