package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
)

// Builder produces fingerprints by fanning content out to every embedder
// in the pool and assembling the results. It never returns a partially
// built fingerprint: any embedder failure fails the whole build
// .
type Builder struct {
	pool      *embedder.Pool
	reference *ReferenceProfile
}

// BuilderOption configures optional Builder behavior.
type BuilderOption func(*Builder)

// WithReference configures Build to populate every fingerprint's
// PurposeVector against ref. Without this option PurposeVector is left at
// its zero value.
func WithReference(ref *ReferenceProfile) BuilderOption {
	return func(b *Builder) { b.reference = ref }
}

// NewBuilder returns a Builder backed by pool.
func NewBuilder(pool *embedder.Pool, opts ...BuilderOption) *Builder {
	b := &Builder{pool: pool}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build runs all thirteen embedders against content in parallel via
// errgroup.Group (parallelSearch pattern, generalized from a
// two-way BM25/vector fan-out to a thirteen-way one), and assembles a
// Fingerprint. hint may be nil.
func (b *Builder) Build(ctx context.Context, content string, source SourceMetadata, hint *embedder.CausalHint) (*Fingerprint, error) {
	g, gctx := errgroup.WithContext(ctx)

	results := make([][]embedder.Output, embedder.NumEmbedders)

	for i, spec := range embedder.Registry {
		i, spec := i, spec
		g.Go(func() error {
			e := b.pool.Get(spec.Index)
			outputs, err := e.Embed(gctx, content, hint)
			if err != nil {
				return cerrors.Wrap(cerrors.ErrCodeEmbedderFailure, err).WithEmbedder(int(spec.Index))
			}
			results[i] = outputs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fp := &Fingerprint{
		ContentHash: contentHash(content),
		Source:      source,
		CreatedAt:   now(ctx),
		UpdatedAt:   now(ctx),
		Importance:  0.5,
	}

	for i := range embedder.Registry {
		for _, out := range results[i] {
			fp.set(out.Slot, Embedding{
				Slot:   out.Slot,
				Dense:  out.Dense,
				Sparse: out.Sparse,
				Tokens: out.Tokens,
			})
		}
	}

	if e1, ok := fp.Get(embedder.Slot{Index: embedder.E1}); ok {
		fp.Matryoshka128 = projectMatryoshka(e1.Dense, embedder.MatryoshkaDimension)
	}

	fp.ID = deriveID(fp.ContentHash, fp.CreatedAt)

	if b.reference != nil {
		fp.PurposeVector = b.reference.Align(fp)
	}

	return fp, nil
}

// now exists so tests can observe a stable clock via context in the future;
// today it simply wraps time.Now.
func now(ctx context.Context) time.Time {
	return time.Now()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// deriveID produces a stable 128-bit id from the content hash and creation
// time, so that two builds of identical content at different instants
// still get distinct identities.
func deriveID(contentHash string, createdAt time.Time) ID {
	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte(fmt.Sprintf("%d", createdAt.UnixNano())))
	sum := h.Sum(nil)
	var id ID
	copy(id[:], sum[:16])
	return id
}

// projectMatryoshka truncates (and re-normalizes) a dense vector to dim,
// matching the nested-dimension property Matryoshka-style embeddings
// guarantee: a prefix of the full vector is itself a valid lower-dimension
// embedding.
func projectMatryoshka(v []float32, dim int) []float32 {
	if len(v) <= dim {
		out := make([]float32, dim)
		copy(out, v)
		return out
	}
	out := make([]float32, dim)
	copy(out, v[:dim])
	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	mag := math.Sqrt(sumSquares)
	for i, x := range out {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
