package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder deterministically derives every slot's output from a
// hash of the content, the embedder's identity, and (for asymmetric
// embedders) the variant and causal hint. It stands in for the real
// embedding models, which are out of scope.
type StaticEmbedder struct {
	spec Spec

	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder returns a static embedder for the given slot spec.
func NewStaticEmbedder(spec Spec) *StaticEmbedder {
	return &StaticEmbedder{spec: spec}
}

func errClosed(idx Index) error {
	return fmt.Errorf("embedder %s is closed", idx)
}

func (e *StaticEmbedder) Spec() Spec { return e.spec }

// baseAsymmetryBoost is applied to the hinted side of an asymmetric
// embedder's output before the asymmetry-strength scaling of :
// effective_boost = base_boost * (0.5 + 0.5*clamp(asymmetry_strength, 0, 1)).
const baseAsymmetryBoost = 0.3

func (e *StaticEmbedder) Embed(ctx context.Context, content string, hint *CausalHint) ([]Output, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, errClosed(e.spec.Index)
	}
	e.mu.RUnlock()

	variants := e.spec.Variants
	outputs := make([]Output, 0, len(variants))
	for _, v := range variants {
		out := Output{Slot: Slot{Index: e.spec.Index, Variant: v}}
		boost := asymmetryBoost(e.spec, v, hint)
		switch e.spec.Shape {
		case ShapeDense:
			out.Dense = denseVector(content, e.spec, v, boost)
		case ShapeSparse:
			out.Sparse = sparseTerms(content, e.spec, v, boost)
		case ShapeToken:
			out.Tokens = tokenVectors(content, e.spec, v)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// asymmetryBoost computes the per-side boost for an asymmetric embedder
// matching its direction hint, 0 otherwise.
func asymmetryBoost(spec Spec, v Variant, hint *CausalHint) float64 {
	if !spec.Asymmetric || hint == nil || hint.Direction == VariantNone {
		return 0
	}
	if hint.Direction != v {
		return 0
	}
	strength := clamp01(hint.AsymmetryStrength)
	return baseAsymmetryBoost * (0.5 + 0.5*strength)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func denseVector(content string, spec Spec, v Variant, boost float64) []float32 {
	vec := make([]float32, spec.Dimension)
	tokens := tokenize(content)
	seed := spec.Index.String() + string(v)
	for _, tok := range tokens {
		idx := hashToIndex(seed+":"+tok, spec.Dimension)
		vec[idx] += tokenWeight
	}
	for _, ng := range extractNgrams(normalizeForNgrams(content), ngramSize) {
		idx := hashToIndex(seed+"#"+ng, spec.Dimension)
		vec[idx] += ngramWeight
	}
	if boost > 0 {
		for i := range vec {
			vec[i] *= float32(1 + boost)
		}
	}
	return normalizeVector(vec)
}

func sparseTerms(content string, spec Spec, v Variant, boost float64) map[string]float32 {
	tokens := tokenize(content)
	terms := make(map[string]float32, len(tokens))
	for _, tok := range tokens {
		terms[tok] += 1.0
	}
	scale := float32(1 + boost)
	for k, val := range terms {
		terms[k] = val * scale
	}
	return terms
}

func tokenVectors(content string, spec Spec, v Variant) [][]float32 {
	tokens := tokenize(content)
	if len(tokens) == 0 {
		return [][]float32{make([]float32, spec.Dimension)}
	}
	out := make([][]float32, 0, len(tokens))
	for _, tok := range tokens {
		vec := make([]float32, spec.Dimension)
		idx := hashToIndex(spec.Index.String()+":"+tok, spec.Dimension)
		vec[idx] = 1.0
		out = append(out, normalizeVector(vec))
	}
	return out
}

func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// --- tokenization, shared by dense/sparse/token shapes ---

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"of": true, "to": true, "and": true, "in": true, "it": true, "that": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			lower := strings.ToLower(t)
			if lower != "" && !stopWords[lower] {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	out := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		out = append(out, text[i:i+n])
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	mag := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / mag)
	}
	return out
}
