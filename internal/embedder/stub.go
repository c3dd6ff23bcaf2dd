package embedder

import "context"

// StubEmbedder returns fixed, non-zero vectors independent of content. It
// exists for tests that need a cheap, available embedder without exercising
// the hashing logic of StaticEmbedder.
type StubEmbedder struct {
	spec Spec
}

// NewStubEmbedder returns a stub embedder for the given slot spec.
func NewStubEmbedder(spec Spec) *StubEmbedder {
	return &StubEmbedder{spec: spec}
}

func (e *StubEmbedder) Spec() Spec { return e.spec }

func (e *StubEmbedder) Embed(ctx context.Context, content string, hint *CausalHint) ([]Output, error) {
	outputs := make([]Output, 0, len(e.spec.Variants))
	for _, v := range e.spec.Variants {
		out := Output{Slot: Slot{Index: e.spec.Index, Variant: v}}
		switch e.spec.Shape {
		case ShapeDense:
			vec := make([]float32, e.spec.Dimension)
			vec[0] = 1.0
			out.Dense = vec
		case ShapeSparse:
			out.Sparse = map[string]float32{"stub": 1.0}
		case ShapeToken:
			vec := make([]float32, e.spec.Dimension)
			vec[0] = 1.0
			out.Tokens = [][]float32{vec}
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (e *StubEmbedder) Available(_ context.Context) bool { return true }

func (e *StubEmbedder) Close() error { return nil }
