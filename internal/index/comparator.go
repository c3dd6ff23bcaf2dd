package index

import (
	"strconv"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
)

// Comparator rejects metric misuse and dimension mismatches at the
// boundary of the index layer, rather than deferring the check to
// individual callers.
type Comparator struct{}

// NewComparator returns a Comparator. It holds no state.
func NewComparator() *Comparator {
	return &Comparator{}
}

// RequireVectorMetric rejects requests for a vector-distance metric
// against a sparse embedder (E6, E13 use inverted-index scoring, not
// vector distance).
func (c *Comparator) RequireVectorMetric(spec embedder.Spec) error {
	if spec.Shape == embedder.ShapeSparse {
		return cerrors.New(cerrors.ErrCodeMetricMisuse,
			"sparse embedder "+spec.Index.String()+" does not support vector-distance queries", nil).
			WithEmbedder(int(spec.Index))
	}
	return nil
}

// RequireEqualDimension rejects a comparison between vectors of
// differing dimension.
func (c *Comparator) RequireEqualDimension(a, b []float32) error {
	if len(a) != len(b) {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch,
			"vectors of unequal dimension cannot be compared", nil).
			WithDetail("a", strconv.Itoa(len(a))).
			WithDetail("b", strconv.Itoa(len(b)))
	}
	return nil
}
