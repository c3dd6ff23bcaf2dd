// Package embedder defines the thirteen-embedder roster and the interface
// each embedder implements. The embedding models themselves are treated as
// external collaborators: this package only fixes their declared shape,
// metric, and identity, plus a deterministic stand-in backend used where no
// real model is wired up.
package embedder

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1
	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion).
	MaxBatchSize = 256
	// DefaultBatchSize fans out all thirteen embedders for one fingerprint build.
	DefaultBatchSize = 13

	// DefaultEmbedTimeout bounds a single embedder call during a fingerprint build.
	DefaultEmbedTimeout = 30 * time.Second
)

// Index identifies one of the thirteen logical embedders.
type Index int

// The thirteen logical embedders. E2, E3, E4 are additional plain dense
// slots alongside the explicitly named E1, E5-E13.
const (
	E1  Index = iota // semantic dense
	E2               // dense
	E3               // dense
	E4               // dense
	E5               // causal (asymmetric: cause/effect)
	E6               // sparse keyword
	E7               // language/style dense
	E8               // relational (asymmetric: source/target)
	E9               // dense
	E10              // paraphrase (asymmetric: paraphrase/context)
	E11              // dense
	E12              // token-level (MaxSim)
	E13              // sparse expansion
)

// NumEmbedders is the fixed roster size.
const NumEmbedders = 13

func (i Index) String() string {
	names := [NumEmbedders]string{
		"E1", "E2", "E3", "E4", "E5", "E6", "E7", "E8", "E9", "E10", "E11", "E12", "E13",
	}
	if int(i) < 0 || int(i) >= NumEmbedders {
		return "E?"
	}
	return names[i]
}

// Shape is the structural form an embedder's output takes.
type Shape string

const (
	ShapeDense  Shape = "dense"
	ShapeSparse Shape = "sparse"
	ShapeToken  Shape = "token"
)

// Metric is the distance/similarity discipline an embedder's shape supports.
// Mixing metrics across embedders, or requesting a vector metric for a
// sparse embedder, is a programming error.
type Metric string

const (
	MetricCosine           Metric = "cosine"
	MetricAsymmetricCosine Metric = "asymmetric_cosine"
	MetricMaxSim           Metric = "max_sim"
	MetricInvertedDot      Metric = "inverted_dot"
)

// Variant distinguishes the two vectors produced by an asymmetric embedder.
type Variant string

const (
	VariantNone       Variant = ""
	VariantCause      Variant = "cause"
	VariantEffect     Variant = "effect"
	VariantSource     Variant = "source"
	VariantTarget     Variant = "target"
	VariantParaphrase Variant = "paraphrase"
	VariantContext    Variant = "context"
)

// Slot addresses one retrievable substrate: an embedder index plus, for
// asymmetric embedders, which side of the pair.
type Slot struct {
	Index   Index
	Variant Variant
}

func (s Slot) String() string {
	if s.Variant == VariantNone {
		return s.Index.String()
	}
	return s.Index.String() + "-" + string(s.Variant)
}

// Spec describes one logical embedder's fixed shape and metric.
type Spec struct {
	Index      Index
	Name       string
	Shape      Shape
	Dimension  int // meaningful for ShapeDense and ShapeToken (per-token dim)
	Metric     Metric
	Asymmetric bool
	Variants   []Variant // len 2 when Asymmetric, else [VariantNone]
}

// Slots enumerates every retrievable substrate for this embedder: one slot
// per variant (two for asymmetric embedders, one otherwise).
func (s Spec) Slots() []Slot {
	slots := make([]Slot, 0, len(s.Variants))
	for _, v := range s.Variants {
		slots = append(slots, Slot{Index: s.Index, Variant: v})
	}
	return slots
}

// MatryoshkaDimension is the auxiliary stage-2 filter projection size for E1.
const MatryoshkaDimension = 128

// Registry is the fixed, ordered description of all thirteen embedders.
// Dimensions are arbitrary-but-fixed for this implementation: what matters
// is stability for the lifetime of a store, not any particular value.
var Registry = [NumEmbedders]Spec{
	E1:  {Index: E1, Name: "semantic", Shape: ShapeDense, Dimension: 768, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E2:  {Index: E2, Name: "structural", Shape: ShapeDense, Dimension: 384, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E3:  {Index: E3, Name: "entity", Shape: ShapeDense, Dimension: 256, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E4:  {Index: E4, Name: "temporal", Shape: ShapeDense, Dimension: 256, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E5:  {Index: E5, Name: "causal", Shape: ShapeDense, Dimension: 384, Metric: MetricAsymmetricCosine, Asymmetric: true, Variants: []Variant{VariantCause, VariantEffect}},
	E6:  {Index: E6, Name: "keyword", Shape: ShapeSparse, Metric: MetricInvertedDot, Variants: []Variant{VariantNone}},
	E7:  {Index: E7, Name: "language", Shape: ShapeDense, Dimension: 128, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E8:  {Index: E8, Name: "relational", Shape: ShapeDense, Dimension: 384, Metric: MetricAsymmetricCosine, Asymmetric: true, Variants: []Variant{VariantSource, VariantTarget}},
	E9:  {Index: E9, Name: "affective", Shape: ShapeDense, Dimension: 256, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E10: {Index: E10, Name: "paraphrase", Shape: ShapeDense, Dimension: 384, Metric: MetricAsymmetricCosine, Asymmetric: true, Variants: []Variant{VariantParaphrase, VariantContext}},
	E11: {Index: E11, Name: "domain", Shape: ShapeDense, Dimension: 256, Metric: MetricCosine, Variants: []Variant{VariantNone}},
	E12: {Index: E12, Name: "token", Shape: ShapeToken, Dimension: 128, Metric: MetricMaxSim, Variants: []Variant{VariantNone}},
	E13: {Index: E13, Name: "expansion", Shape: ShapeSparse, Metric: MetricInvertedDot, Variants: []Variant{VariantNone}},
}

// AllSlots enumerates every retrievable substrate across the whole roster,
// in registry order.
func AllSlots() []Slot {
	slots := make([]Slot, 0, NumEmbedders+3)
	for _, spec := range Registry {
		slots = append(slots, spec.Slots()...)
	}
	return slots
}

// CausalHint carries optional LLM-guided direction and asymmetry signal
// into a build, reduced to what an embedder needs to produce its output.
type CausalHint struct {
	// Direction is the inferred causal direction, if known.
	Direction Variant // VariantCause, VariantEffect, or VariantNone
	// AsymmetryStrength in [0,1] scales the boost applied to the
	// corresponding side of an asymmetric embedder.
	AsymmetryStrength float64
	// Confidence in [0,1] is the hint source's confidence in Direction.
	Confidence float64
	// LLMGuided reports whether the hint came from an LLM rather than a
	// static heuristic.
	LLMGuided bool
	// ModelVersion identifies the hint source when LLMGuided is true.
	ModelVersion string
}

// Output is what a single embedder call produces for one content string.
// Exactly one of Dense, Sparse, Tokens is populated, matching the
// embedder's declared Shape; for asymmetric embedders, Variant names which
// side this Output belongs to.
type Output struct {
	Slot   Slot
	Dense  []float32
	Sparse map[string]float32
	Tokens [][]float32
}

// Embedder produces one Output per (content, slot) pair. A single Embedder
// value is responsible for every slot its Spec declares — for an
// asymmetric embedder, one call site requests both variants.
type Embedder interface {
	// Spec describes this embedder's fixed shape, dimension, and metric.
	Spec() Spec

	// Embed produces the output(s) for content. For a non-asymmetric
	// embedder the returned slice has exactly one element; for an
	// asymmetric embedder it has exactly two, one per variant.
	Embed(ctx context.Context, content string, hint *CausalHint) ([]Output, error)

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases any resources held by the embedder.
	Close() error
}
