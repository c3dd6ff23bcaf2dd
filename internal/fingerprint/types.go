// Package fingerprint implements the atomic unit of stored knowledge: the
// fingerprint, its builder, and its strict validator.
package fingerprint

import (
	"time"

	"github.com/corvidmem/corvid/internal/embedder"
)

// ID is a 128-bit fingerprint identifier.
type ID [16]byte

// SourceType classifies where a fingerprint's content originated.
type SourceType string

const (
	SourceManual            SourceType = "manual"
	SourceFileChunk         SourceType = "file_chunk"
	SourceHookDescription   SourceType = "hook_description"
	SourceAssistantResponse SourceType = "assistant_response"
	SourceCausalExplanation SourceType = "causal_explanation"
)

// EmbeddingHintProvenance records how an asymmetric embedding's direction
// was determined.
type EmbeddingHintProvenance struct {
	LLMGuided         bool
	ModelVersion      string
	Quantization      string
	Temperature       float64
	PromptHash        string
	StaticMarkerCount int
	LLMMarkerCount    int
	InferredDirection embedder.Variant
	HintConfidence    float64
	AsymmetryStrength float64
	EffectiveBoost    float64
}

// SourceMetadata is the provenance record attached to every fingerprint.
type SourceMetadata struct {
	SourceType       SourceType
	FilePath         string
	ChunkIndex       int
	TotalChunks      int
	StartLine        int
	EndLine          int
	OriginHash       string
	SessionID        string
	SessionSeq       int
	CausalDirection  embedder.Variant
	DerivedFrom      []ID
	DerivationMethod string
	OperatorID       string
	ToolInvocationID string
	HookTimestamp    time.Time
	EmbeddingHint    *EmbeddingHintProvenance
}

// Embedding is a tagged union over the three shapes an embedder's output
// can take, keyed by slot (embedder index + variant).
type Embedding struct {
	Slot   embedder.Slot
	Dense  []float32
	Sparse map[string]float32
	Tokens [][]float32
}

// IsZero reports whether the embedding carries no usable payload for its
// declared shape — used by the validator to reject all-zero or empty
// embeddings.
func (e Embedding) IsZero(shape embedder.Shape) bool {
	switch shape {
	case embedder.ShapeDense:
		return allZero(e.Dense)
	case embedder.ShapeSparse:
		return len(e.Sparse) == 0
	case embedder.ShapeToken:
		return len(e.Tokens) == 0
	default:
		return true
	}
}

func allZero(v []float32) bool {
	if len(v) == 0 {
		return true
	}
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Fingerprint is the atomic, whole unit of stored knowledge: thirteen
// embedders' worth of embeddings (sixteen slots counting asymmetric
// variants), content identity, provenance, and derived diagnostics.
type Fingerprint struct {
	ID ID

	// Embeddings is keyed by slot string (embedder.Slot.String()) so that
	// asymmetric embedders occupy two independent entries.
	Embeddings map[string]Embedding

	// Matryoshka128 is the auxiliary stage-2 filter projection of E1
	//.
	Matryoshka128 []float32

	ContentHash string
	Source      SourceMetadata

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AccessCount int64
	Importance  float64 // [0,1]

	// PurposeVector is a per-embedder alignment score to a configured
	// reference, in [-1,1]. Index i corresponds to
	// embedder.Registry[i].
	PurposeVector [embedder.NumEmbedders]float64
}

// Get returns the embedding for slot, if present.
func (fp *Fingerprint) Get(slot embedder.Slot) (Embedding, bool) {
	e, ok := fp.Embeddings[slot.String()]
	return e, ok
}

func (fp *Fingerprint) set(slot embedder.Slot, e Embedding) {
	if fp.Embeddings == nil {
		fp.Embeddings = make(map[string]Embedding)
	}
	fp.Embeddings[slot.String()] = e
}
