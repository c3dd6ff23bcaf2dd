package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
)

func idFor(b byte) fingerprint.ID {
	var id fingerprint.ID
	id[0] = b
	return id
}

func equalWeights(w float64) [embedder.NumEmbedders]float64 {
	var weights [embedder.NumEmbedders]float64
	for i := range weights {
		weights[i] = w
	}
	return weights
}

func TestWeightedRRF_Fuse_SumsWeightedReciprocalRanks(t *testing.T) {
	f := NewWeightedRRF()
	idA, idB := idFor(1), idFor(2)

	sources := []SourceResult{
		{
			Slot: embedder.Slot{Index: embedder.E1},
			Candidates: []index.Candidate{
				{ID: idA, Rank: 0},
				{ID: idB, Rank: 1},
			},
		},
		{
			Slot: embedder.Slot{Index: embedder.E2},
			Candidates: []index.Candidate{
				{ID: idB, Rank: 0},
			},
		},
	}

	weights := equalWeights(0)
	weights[embedder.E1] = 1.0
	weights[embedder.E2] = 1.0

	results := f.Fuse(sources, weights, DirectionNone, embedder.E1)
	require.Len(t, results, 2)

	// idB is returned by both sources (rank 1 in E1, rank 0 in E2); idA
	// only by E1 at rank 0. idB's raw score (1/60 + 1/61) beats idA's
	// (1/60), so idB must win.
	assert.Equal(t, idB, results[0].ID)
	assert.Equal(t, 2, results[0].Agreement)
	assert.Equal(t, 1, results[1].Agreement)
	assert.Equal(t, idA, results[1].ID)
	assert.Equal(t, 1.0, results[0].Score, "top result is normalized to 1.0")
}

func TestWeightedRRF_Fuse_SkipsZeroWeightEmbedders(t *testing.T) {
	f := NewWeightedRRF()
	id := idFor(1)

	sources := []SourceResult{
		{Slot: embedder.Slot{Index: embedder.E6}, Candidates: []index.Candidate{{ID: id, Rank: 0}}},
	}
	weights := equalWeights(0) // E6 weight stays 0

	results := f.Fuse(sources, weights, DirectionNone, embedder.E1)
	assert.Empty(t, results, "a source with weight 0 must contribute nothing")
}

func TestWeightedRRF_Fuse_NoMissingRankCredit(t *testing.T) {
	f := NewWeightedRRF()
	idA, idB := idFor(1), idFor(2)

	// idA appears in both sources at a mediocre rank; idB appears in only
	// one source but at rank 0. Neither gets credit for the source it's
	// absent from.
	sources := []SourceResult{
		{Slot: embedder.Slot{Index: embedder.E1}, Candidates: []index.Candidate{
			{ID: idB, Rank: 0},
			{ID: idA, Rank: 5},
		}},
		{Slot: embedder.Slot{Index: embedder.E2}, Candidates: []index.Candidate{
			{ID: idA, Rank: 5},
		}},
	}
	weights := equalWeights(1.0)

	results := f.Fuse(sources, weights, DirectionNone, embedder.E1)
	require.Len(t, results, 2)

	var scoreA, scoreB float64
	for _, r := range results {
		if r.ID == idA {
			scoreA = r.Score
		}
		if r.ID == idB {
			scoreB = r.Score
		}
	}
	// idA: 2 * 1/(60+5); idB: 1 * 1/(60+0). idA's sum across two mediocre
	// ranks beats idB's single top rank, proving idB got no credit for
	// the source it never appeared in.
	assert.Greater(t, scoreA, scoreB)
}

func TestWeightedRRF_Fuse_TieBreaksByAgreementThenDominantThenID(t *testing.T) {
	f := NewWeightedRRF()
	low, high := idFor(1), idFor(2)

	// Construct a score tie: both ids land on the same summed score via
	// a single contributing source each, equal rank.
	sources := []SourceResult{
		{Slot: embedder.Slot{Index: embedder.E1}, Candidates: []index.Candidate{
			{ID: low, Rank: 3},
			{ID: high, Rank: 3},
		}},
	}
	weights := equalWeights(1.0)

	results := f.Fuse(sources, weights, DirectionNone, embedder.E1)
	require.Len(t, results, 2)
	// Equal score and agreement and dominant contribution: falls through
	// to lexicographic id order.
	assert.Equal(t, low, results[0].ID)
	assert.Equal(t, high, results[1].ID)
}

func TestDirectionModifier_OnlyAppliesToAsymmetricTarget(t *testing.T) {
	assert.Equal(t, 1.0, DirectionModifier(DirectionCause, false))
	assert.Equal(t, 1.0, DirectionModifier(DirectionNone, true))

	assert.Equal(t, CauseModifier, DirectionModifier(DirectionCause, true))
	assert.Equal(t, EffectModifier, DirectionModifier(DirectionEffect, true))
}

func TestWeightedRRF_Fuse_DirectionOnlyScalesTargetedEmbedder(t *testing.T) {
	f := NewWeightedRRF()
	viaE5, viaE8 := idFor(1), idFor(2)

	// Two different asymmetric embedders contribute at the same rank; a
	// Cause direction targeted at E5 must dampen only E5's contribution,
	// leaving E8's untouched.
	sources := []SourceResult{
		{Slot: embedder.Slot{Index: embedder.E5, Variant: embedder.VariantCause}, Candidates: []index.Candidate{
			{ID: viaE5, Rank: 0},
		}},
		{Slot: embedder.Slot{Index: embedder.E8, Variant: embedder.VariantSource}, Candidates: []index.Candidate{
			{ID: viaE8, Rank: 0},
		}},
	}
	weights := equalWeights(0)
	weights[embedder.E5] = 1.0
	weights[embedder.E8] = 1.0

	results := f.Fuse(sources, weights, DirectionCause, embedder.E5)
	require.Len(t, results, 2)
	// E8's contribution is untouched and ties E5's pre-dampening score at
	// the same rank, so E8 must win once E5 is dampened by 0.8.
	assert.Equal(t, viaE8, results[0].ID)
	assert.Equal(t, viaE5, results[1].ID)
}

func TestWeightedRRF_Fuse_EffectDirectionAmplifiesTarget(t *testing.T) {
	f := NewWeightedRRF()
	viaE5, viaE8 := idFor(1), idFor(2)

	sources := []SourceResult{
		{Slot: embedder.Slot{Index: embedder.E5, Variant: embedder.VariantEffect}, Candidates: []index.Candidate{
			{ID: viaE5, Rank: 0},
		}},
		{Slot: embedder.Slot{Index: embedder.E8, Variant: embedder.VariantTarget}, Candidates: []index.Candidate{
			{ID: viaE8, Rank: 0},
		}},
	}
	weights := equalWeights(0)
	weights[embedder.E5] = 1.0
	weights[embedder.E8] = 1.0

	results := f.Fuse(sources, weights, DirectionEffect, embedder.E5)
	require.Len(t, results, 2)
	assert.Equal(t, viaE5, results[0].ID, "effect direction amplifies the targeted E5 contribution above E8's untouched one")
	assert.Equal(t, viaE8, results[1].ID)
}
