package fingerprint

import (
	"context"
	"math"

	"github.com/corvidmem/corvid/internal/embedder"
)

// ReferenceProfile is a fingerprint built once from a configured reference
// text and held by a Builder to score every subsequently built fingerprint
// against it: the PurposeVector.
type ReferenceProfile struct {
	fp *Fingerprint
}

// NewReferenceProfile embeds referenceText through pool, the same fan-out
// Build uses for ordinary content, and returns a profile ready to align
// other fingerprints against.
func NewReferenceProfile(ctx context.Context, pool *embedder.Pool, referenceText string) (*ReferenceProfile, error) {
	b := &Builder{pool: pool}
	fp, err := b.Build(ctx, referenceText, SourceMetadata{SourceType: SourceManual}, nil)
	if err != nil {
		return nil, err
	}
	return &ReferenceProfile{fp: fp}, nil
}

// Align computes fp's PurposeVector: one alignment score per embedder,
// each in [-1,1], measuring how closely fp's embedding in that space
// matches the reference's. Asymmetric embedders (E5, E8, E10) align
// against their first declared variant (cause, source, paraphrase), since
// the reference carries no directional intent of its own.
func (r *ReferenceProfile) Align(fp *Fingerprint) [embedder.NumEmbedders]float64 {
	var out [embedder.NumEmbedders]float64
	for i, spec := range embedder.Registry {
		slot := embedder.Slot{Index: spec.Index, Variant: spec.Variants[0]}
		ref, refOK := r.fp.Get(slot)
		cur, curOK := fp.Get(slot)
		if !refOK || !curOK {
			continue
		}
		switch spec.Shape {
		case embedder.ShapeDense:
			out[i] = denseCosine(ref.Dense, cur.Dense)
		case embedder.ShapeSparse:
			out[i] = sparseCosine(ref.Sparse, cur.Sparse)
		case embedder.ShapeToken:
			out[i] = tokenAlignment(ref.Tokens, cur.Tokens)
		}
	}
	return out
}

func denseCosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func sparseCosine(a, b map[string]float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for k, v := range a {
		magA += float64(v) * float64(v)
		if bv, ok := b[k]; ok {
			dot += float64(v) * float64(bv)
		}
	}
	for _, v := range b {
		magB += float64(v) * float64(v)
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// tokenAlignment averages meanMaxCosine in both directions so the result
// does not depend on which side is called the reference.
func tokenAlignment(a, b [][]float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	return (meanMaxCosine(a, b) + meanMaxCosine(b, a)) / 2
}

func meanMaxCosine(from, to [][]float32) float64 {
	if len(from) == 0 {
		return 0
	}
	var total float64
	for _, f := range from {
		best := -1.0
		for _, t := range to {
			if sim := denseCosine(f, t); sim > best {
				best = sim
			}
		}
		if best > -1.0 {
			total += best
		}
	}
	return total / float64(len(from))
}
