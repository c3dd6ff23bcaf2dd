package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

func buildTestFingerprint(t *testing.T, content string) *fingerprint.Fingerprint {
	t.Helper()
	pool, err := embedder.NewPool(embedder.BackendStatic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	b := fingerprint.NewBuilder(pool)
	fp, err := b.Build(context.Background(), content, fingerprint.SourceMetadata{}, nil)
	require.NoError(t, err)
	return fp
}

func TestManager_Insert_PopulatesEverySubstrate(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	fp := buildTestFingerprint(t, "the cache layer speeds up reads")
	require.NoError(t, m.Insert(fp))

	assert.Empty(t, m.DegradedSlots())

	e1Slot := embedder.Slot{Index: embedder.E1}
	emb, _ := fp.Get(e1Slot)
	results, err := m.DenseSlot(e1Slot).Search(emb.Dense, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, fp.ID, results[0].ID)
}

func TestManager_CompactionCandidates_EmptyOnFreshIndex(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	fp := buildTestFingerprint(t, "fresh index has nothing to compact")
	require.NoError(t, m.Insert(fp))

	assert.Empty(t, m.CompactionCandidates())
}

func TestManager_Remove_ClearsAllSubstrates(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	fp := buildTestFingerprint(t, "removing a record clears every index")
	require.NoError(t, m.Insert(fp))
	m.Remove(fp.ID)

	e1Slot := embedder.Slot{Index: embedder.E1}
	emb, _ := fp.Get(e1Slot)
	results, err := m.DenseSlot(e1Slot).Search(emb.Dense, 5)
	require.NoError(t, err)
	for _, c := range results {
		assert.NotEqual(t, fp.ID, c.ID)
	}
}

func TestManager_RequireVectorMetric_RejectsSparseEmbedder(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	err = m.RequireVectorMetric(embedder.Registry[embedder.E6])
	assert.Error(t, err)
}
