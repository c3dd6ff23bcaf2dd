package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
	"github.com/corvidmem/corvid/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, *index.Manager) {
	t.Helper()
	pool, err := embedder.NewPool(embedder.BackendStatic)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	st, err := store.Open(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := index.NewManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	return New(pool, st, idx), st, idx
}

func TestPipeline_Ingest_StoresAndIndexesFingerprint(t *testing.T) {
	p, st, idx := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.Ingest(ctx, IngestRequest{
		Content:    "exponential backoff caps retry intervals",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)

	stored, err := st.Get(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)

	candidates, err := idx.DenseSlot(embedder.Slot{Index: embedder.E1}).Search(mustDense(t, stored, embedder.E1), 5)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, id, candidates[0].ID)
}

func TestPipeline_Ingest_GeneratesToolInvocationIDWhenOmitted(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()

	id, err := p.Ingest(ctx, IngestRequest{
		Content:    "omitted tool invocation id still gets one",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)

	stored, err := st.Get(ctx, id, false)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Source.ToolInvocationID)
}

func TestPipeline_Ingest_CompensatesOnIndexFailure(t *testing.T) {
	p, st, idx := newTestPipeline(t)
	ctx := context.Background()

	// Force every downstream index insert to fail.
	require.NoError(t, idx.Close())

	id, err := p.Ingest(ctx, IngestRequest{
		Content:    "consensus requires a quorum of acceptors",
		Source:     fingerprint.SourceMetadata{},
		OperatorID: "op-1",
	})
	require.Error(t, err)
	assert.Equal(t, fingerprint.ID{}, id)

	// The compensating delete must have removed the otherwise-committed row.
	trail, trailErr := st.GetAuditTrail(ctx, nil, nil)
	require.NoError(t, trailErr)
	var sawFailure bool
	for _, rec := range trail {
		if rec.Operation == store.OpDeleted && rec.Outcome == store.OutcomeFailure {
			sawFailure = true
		}
	}
	assert.True(t, sawFailure, "expected a compensating Deleted/Failure audit record")
}

func TestPipeline_RestoreFromReversal_RehydratesHardDeletedSource(t *testing.T) {
	p, st, idx := newTestPipeline(t)
	ctx := context.Background()

	idA, err := p.Ingest(ctx, IngestRequest{
		Content:    "eventual consistency tolerates stale reads",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	idB, err := p.Ingest(ctx, IngestRequest{
		Content:    "eventual consistency allows temporarily stale reads",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)

	mergedID, err := st.Merge(ctx, []fingerprint.ID{idA, idB}, store.MergeUnion, "op-1", "near duplicates")
	require.NoError(t, err)
	rec, err := st.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.NoError(t, st.Delete(ctx, idA))
	idx.Remove(idA)
	_, err = st.Get(ctx, idA, true)
	require.Error(t, err)

	restored, err := p.RestoreFromReversal(ctx, rec.ReversalHash, "op-1")
	require.NoError(t, err)
	assert.Contains(t, restored, idA)

	again, err := st.Get(ctx, idA, true)
	require.NoError(t, err)
	assert.Equal(t, idA, again.ID)

	candidates, err := idx.DenseSlot(embedder.Slot{Index: embedder.E1}).Search(mustDense(t, again, embedder.E1), 5)
	require.NoError(t, err)
	var reindexed bool
	for _, c := range candidates {
		if c.ID == idA {
			reindexed = true
		}
	}
	assert.True(t, reindexed, "restored source must be reinserted into the dense index")
}

func TestPipeline_RestoreFromReversal_LeavesStillPresentSourcesUntouched(t *testing.T) {
	p, st, _ := newTestPipeline(t)
	ctx := context.Background()

	idA, err := p.Ingest(ctx, IngestRequest{
		Content:    "read-your-writes consistency is a session guarantee",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)
	idB, err := p.Ingest(ctx, IngestRequest{
		Content:    "read-your-writes is scoped to a single session",
		Source:     fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual},
		OperatorID: "op-1",
	})
	require.NoError(t, err)

	mergedID, err := st.Merge(ctx, []fingerprint.ID{idA, idB}, store.MergeUnion, "op-1", "near duplicates")
	require.NoError(t, err)
	rec, err := st.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)

	restored, err := p.RestoreFromReversal(ctx, rec.ReversalHash, "op-1")
	require.NoError(t, err)
	assert.Empty(t, restored, "neither source was deleted, so nothing should be reported as restored")
}

func mustDense(t *testing.T, fp *fingerprint.Fingerprint, idx embedder.Index) []float32 {
	t.Helper()
	emb, ok := fp.Get(embedder.Slot{Index: idx})
	require.True(t, ok)
	return emb.Dense
}
