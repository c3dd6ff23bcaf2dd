// Package search implements multi-space retrieval over the thirteen
// embedder substrates: a single weighted-RRF sweep or a
// three-stage recall/rerank/precision pipeline, both built
// on internal/index, internal/fusion, internal/profile and
// internal/classifier.
package search

import (
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/fusion"
	"github.com/corvidmem/corvid/internal/profile"
)

// AsymmetricQuery opts a single asymmetric embedder into direction-aware
// retrieval. Embedder must be E5, E8, or any other
// asymmetric index; Direction selects which side the query text is
// embedded as and which side is searched (see directionVariants).
type AsymmetricQuery struct {
	Embedder  embedder.Index
	Direction fusion.Direction
}

// SearchOptions configures one multi-space or pipeline search.
type SearchOptions struct {
	// TopK is the number of results to return after cut (default 10).
	TopK int

	// MinSimilarity filters the final fused score, normalized to [0,1]
	// (default 0, meaning no filtering).
	MinSimilarity float64

	// ProfileName selects a named or custom profile. Ignored if Weights is set.
	ProfileName profile.Name

	// Weights overrides profile selection entirely with an explicit,
	// caller-validated vector.
	Weights *profile.Weights

	// Asymmetric opts one embedder into the direction-aware rerank. Nil
	// means every asymmetric embedder with weight > 0 is searched on both
	// sides with no dampen/amplify modifier.
	Asymmetric *AsymmetricQuery

	// ExcludeIDs is filtered out of every embedder's candidate list before
	// fusion.
	ExcludeIDs map[fingerprint.ID]bool

	// IncludeBreakdown populates Result.Breakdown with each result's
	// per-slot contribution.
	IncludeBreakdown bool
}

// Result is one hydrated, fused candidate.
type Result struct {
	ID            fingerprint.ID
	Fingerprint   *fingerprint.Fingerprint
	Score         float64
	DominantSlot  embedder.Slot
	DominantScore float64
	Agreement     int
	Breakdown     map[string]SlotBreakdown
}

// SlotBreakdown is one embedder slot's contribution to a Result, surfaced
// when SearchOptions.IncludeBreakdown is set.
type SlotBreakdown struct {
	Rank            int
	NormalizedScore float64
	Contribution    float64
}

// Response is the full diagnostic envelope step 6 requires:
// results plus enough context for a caller to judge coverage.
type Response struct {
	Results []Result

	ProfileName       profile.Name
	ActiveEmbedders   []string
	DegradedEmbedders []string

	// DominantEmbedder and AgreementLevel summarize the top result, or are
	// zero-valued when Results is empty.
	DominantEmbedder string
	AgreementLevel   int

	// Partial is true when the search context's deadline fired before
	// every active embedder's retrieval completed.
	Partial bool
}

// EngineConfig tunes retrieval behavior.
type EngineConfig struct {
	// DefaultTopK is used when SearchOptions.TopK is unset.
	DefaultTopK int
	// MaxTopK caps SearchOptions.TopK.
	MaxTopK int

	// CandidateFanout is alpha in step 2: each active
	// embedder retrieves alpha*TopK raw candidates before fusion.
	CandidateFanout int

	// PipelineRecallSize bounds the stage-1 sparse recall pool size for
	// Pipeline; defaults to TopK*10 when unset.
	PipelineRecallSize int
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultTopK:        10,
		MaxTopK:            1000,
		CandidateFanout:    3,
		PipelineRecallSize: 500,
	}
}

// EngineStats reports substrate sizes for operational visibility.
type EngineStats struct {
	DenseSlots  int
	SparseSlots int
	HasToken    bool
}
