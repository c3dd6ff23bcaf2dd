// Package fusion combines per-embedder candidate lists into one ranked
// result set via weighted Reciprocal Rank Fusion, plus the direction-aware
// rerank applied to asymmetric embedders' results.
package fusion

import (
	"sort"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
)

// DefaultK is the RRF smoothing constant (k=60 is the empirically
// validated default used by Azure AI Search, OpenSearch, and elsewhere).
const DefaultK = 60

// SourceResult is one embedder slot's ranked candidate list, ready to
// fuse.
type SourceResult struct {
	Slot       embedder.Slot
	Candidates []index.Candidate
}

// Result is one fingerprint's fused standing across every contributing
// embedder.
type Result struct {
	ID fingerprint.ID

	// Score is the weighted RRF sum, normalized to [0,1] against the top
	// result in this fusion.
	Score float64

	// Agreement is the number of distinct slots that returned this id at
	// all, regardless of weight — the consensus signal across embedders.
	Agreement int

	// DominantSlot and DominantScore identify the contributing slot with
	// the highest normalized raw score, a tie-break across thirteen
	// sources of potentially incomparable native score ranges.
	DominantSlot  embedder.Slot
	DominantScore float64

	perSlot map[string]SlotContribution
}

// SlotContribution is one embedder slot's standing for a single fused
// result: where it ranked in that slot's own candidate list, its
// substrate-native score normalized to [0,1], and the weighted RRF term
// it added to Result.Score.
type SlotContribution struct {
	Rank            int
	NormalizedScore float64
	Contribution    float64
}

// PerSlot returns this result's per-slot contribution breakdown, keyed by
// embedder.Slot.String(). Exposed as a method rather than a public field
// so callers can't mutate fusion internals after the fact.
func (r Result) PerSlot() map[string]SlotContribution {
	out := make(map[string]SlotContribution, len(r.perSlot))
	for k, v := range r.perSlot {
		out[k] = v
	}
	return out
}

// WeightedRRF fuses up to thirteen embedder-specific candidate lists.
type WeightedRRF struct {
	K int
}

// NewWeightedRRF returns a fuser using DefaultK.
func NewWeightedRRF() *WeightedRRF {
	return &WeightedRRF{K: DefaultK}
}

// Fuse combines sources using weights (indexed by embedder.Index; a slot's
// weight is its embedder's weight regardless of variant). direction and
// directionTarget implement step 5's direction-aware rerank:
// when direction is not DirectionNone, the one embedder named by
// directionTarget has its contribution scaled by CauseModifier/
// EffectModifier; every other source, including other asymmetric
// embedders, is unaffected — "Analogous ... modifiers are available for
// E8 when callers opt in" means opt-in per embedder, not a blanket rule
// for every asymmetric slot. Sources whose embedder weight is exactly 0
// are skipped entirely, matching "weight 0 excludes a
// source" convention.
//
// Unlike two-source Fuse, a source absent from an id's
// candidate list contributes nothing for that id — no missing-rank
// credit. A "penalize the absent source" rank doesn't generalize cleanly
// once the source count is thirteen instead of two, so absence is simply
// zero contribution; Agreement is how callers see how many sources found
// an id at all.
func (f *WeightedRRF) Fuse(sources []SourceResult, weights [embedder.NumEmbedders]float64, direction Direction, directionTarget embedder.Index) []Result {
	k := f.K
	if k <= 0 {
		k = DefaultK
	}

	acc := make(map[fingerprint.ID]*Result)
	order := make([]fingerprint.ID, 0)

	for _, src := range sources {
		w := weights[src.Slot.Index]
		if w == 0 {
			continue
		}
		if src.Slot.Index == directionTarget {
			w *= DirectionModifier(direction, true)
		}
		if w == 0 {
			continue
		}

		for _, cand := range src.Candidates {
			r, ok := acc[cand.ID]
			if !ok {
				r = &Result{ID: cand.ID, perSlot: make(map[string]SlotContribution)}
				acc[cand.ID] = r
				order = append(order, cand.ID)
			}

			contribution := w / float64(k+cand.Rank)
			r.Score += contribution
			r.Agreement++

			normalized := normalizeRawScore(src.Slot, cand.RawScore)
			r.perSlot[src.Slot.String()] = SlotContribution{
				Rank:            cand.Rank,
				NormalizedScore: normalized,
				Contribution:    contribution,
			}

			if normalized > r.DominantScore {
				r.DominantScore = normalized
				r.DominantSlot = src.Slot
			}
		}
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		results = append(results, *acc[id])
	}

	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })
	normalize(results)

	return results
}

// less implements the deterministic tie-break chain: score → agreement →
// dominant normalized score → lexicographic id.
func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Agreement != b.Agreement {
		return a.Agreement > b.Agreement
	}
	if a.DominantScore != b.DominantScore {
		return a.DominantScore > b.DominantScore
	}
	return lessID(a.ID, b.ID)
}

// normalizeRawScore maps a substrate-native RawScore into [0,1] so results
// from embedders with different metrics can be compared as a tie-break.
// Cosine similarity (dense, including asymmetric-cosine) lives in [-1,1]
// and is rescaled with (r+1)/2; sparse inverted-dot scores are already
// non-negative and pass through unchanged; MaxSim (E12) sums per-token
// cosines and has no fixed upper bound, so it also passes through — it
// only ever competes against other MaxSim contributions in practice,
// since E12 is the only token-shaped embedder.
func normalizeRawScore(slot embedder.Slot, raw float64) float64 {
	spec := embedder.Registry[slot.Index]
	switch spec.Metric {
	case embedder.MetricCosine, embedder.MetricAsymmetricCosine:
		return (raw + 1) / 2
	default:
		return raw
	}
}

func lessID(a, b fingerprint.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func normalize(results []Result) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max == 0 {
		return
	}
	for i := range results {
		results[i].Score /= max
	}
}
