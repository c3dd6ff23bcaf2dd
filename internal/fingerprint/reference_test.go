package fingerprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
)

func TestReferenceProfile_Align_IdenticalContentScoresNearOne(t *testing.T) {
	pool, err := embedder.NewPool(embedder.BackendStatic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	ref, err := NewReferenceProfile(context.Background(), pool, "connection pools cap concurrent sessions")
	require.NoError(t, err)

	b := NewBuilder(pool, WithReference(ref))
	fp, err := b.Build(context.Background(), "connection pools cap concurrent sessions", SourceMetadata{}, nil)
	require.NoError(t, err)

	for i, spec := range embedder.Registry {
		assert.InDelta(t, 1.0, fp.PurposeVector[i], 1e-6, "embedder %s should align perfectly with itself", spec.Name)
	}
}

func TestBuilder_Build_WithoutReferenceLeavesPurposeVectorZero(t *testing.T) {
	pool, err := embedder.NewPool(embedder.BackendStatic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	b := NewBuilder(pool)
	fp, err := b.Build(context.Background(), "no reference configured here", SourceMetadata{}, nil)
	require.NoError(t, err)

	var zero [embedder.NumEmbedders]float64
	assert.Equal(t, zero, fp.PurposeVector)
}

func TestReferenceProfile_Align_UnrelatedContentScoresLowerThanIdentical(t *testing.T) {
	pool, err := embedder.NewPool(embedder.BackendStatic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	ref, err := NewReferenceProfile(context.Background(), pool, "connection pools cap concurrent sessions")
	require.NoError(t, err)
	b := NewBuilder(pool, WithReference(ref))

	same, err := b.Build(context.Background(), "connection pools cap concurrent sessions", SourceMetadata{}, nil)
	require.NoError(t, err)
	different, err := b.Build(context.Background(), "marsupials raise their young in a pouch", SourceMetadata{}, nil)
	require.NoError(t, err)

	e1 := embedder.E1
	assert.Greater(t, same.PurposeVector[e1], different.PurposeVector[e1])
}
