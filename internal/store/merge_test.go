package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

func TestStore_Merge_UnionTakesPerDimensionMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "rate limiting protects downstream services")
	fpB := buildTestFingerprint(t, "throttling protects downstream services from overload")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "rate limiting protects downstream services", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "throttling protects downstream services from overload", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeUnion, "op-1", "duplicate concepts")
	require.NoError(t, err)

	merged, err := s.Get(ctx, mergedID, false)
	require.NoError(t, err)

	slot := embedder.Slot{Index: embedder.E1}
	a, _ := fpA.Get(slot)
	b, _ := fpB.Get(slot)
	m, ok := merged.Get(slot)
	require.True(t, ok)

	for i := range m.Dense {
		expected := a.Dense[i]
		if b.Dense[i] > expected {
			expected = b.Dense[i]
		}
		assert.InDelta(t, expected, m.Dense[i], 1e-6)
	}

	assert.Equal(t, []fingerprint.ID{fpA.ID, fpB.ID}, merged.Source.DerivedFrom)
	assert.Equal(t, "merge:union", merged.Source.DerivationMethod)

	rec, err := s.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, MergeUnion, rec.Strategy)
	assert.ElementsMatch(t, []fingerprint.ID{fpA.ID, fpB.ID}, rec.SourceIDs)
}

func TestStore_Merge_IntersectionKeepsOnlySharedSparseTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "alpha beta gamma")
	fpB := buildTestFingerprint(t, "alpha delta epsilon")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "alpha beta gamma", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "alpha delta epsilon", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeIntersection, "op-1", "overlap check")
	require.NoError(t, err)

	merged, err := s.Get(ctx, mergedID, false)
	require.NoError(t, err)
	assert.Equal(t, mergedID, merged.ID)

	sparseSlot := embedder.Slot{Index: embedder.E6}
	a, _ := fpA.Get(sparseSlot)
	b, _ := fpB.Get(sparseSlot)
	m, ok := merged.Get(sparseSlot)
	require.True(t, ok)
	for term := range a.Sparse {
		_, shared := b.Sparse[term]
		_, kept := m.Sparse[term]
		assert.Equal(t, shared, kept, "term %q", term)
	}
	for term := range m.Sparse {
		assert.Contains(t, a.Sparse, term)
	}
}

func TestStore_Merge_WeightedAverageNormalizesSparseWeights(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "caching avoids redundant computation")
	fpB := buildTestFingerprint(t, "memoization avoids redundant computation")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "caching avoids redundant computation", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "memoization avoids redundant computation", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeWeightedAverage, "op-1", "near duplicates")
	require.NoError(t, err)

	merged, err := s.Get(ctx, mergedID, false)
	require.NoError(t, err)

	sparseSlot := embedder.Slot{Index: embedder.E6}
	m, ok := merged.Get(sparseSlot)
	require.True(t, ok)

	var total float32
	for _, w := range m.Sparse {
		total += w
	}
	if len(m.Sparse) > 0 {
		assert.InDelta(t, 1.0, total, 1e-4)
	}
}

func TestStore_Merge_RejectsFewerThanTwoSources(t *testing.T) {
	s := newTestStore(t)
	fpA := buildTestFingerprint(t, "solo fingerprint")

	_, err := s.Merge(context.Background(), []fingerprint.ID{fpA.ID}, MergeUnion, "op-1", "")
	require.Error(t, err)
}

func TestStore_Merge_ReversalEnvelopeCapturesSourcesAndContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "primary key uniquely identifies a row")
	fpB := buildTestFingerprint(t, "primary key enforces row uniqueness")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "primary key uniquely identifies a row", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "primary key enforces row uniqueness", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeUnion, "op-1", "same concept")
	require.NoError(t, err)

	rec, err := s.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)
	require.NotNil(t, rec)

	envelope, err := s.GetReversalEnvelope(ctx, rec.ReversalHash)
	require.NoError(t, err)
	assert.Equal(t, mergedID, envelope.MergedID)
	assert.Len(t, envelope.Sources, 2)
	assert.Equal(t, "primary key uniquely identifies a row", envelope.Contents[fpA.ID])
	assert.Equal(t, "primary key enforces row uniqueness", envelope.Contents[fpB.ID])
	assert.WithinDuration(t, time.Now().Add(ReversalWindow), envelope.ExpiresAt, time.Minute)
}

func TestStore_GetReversalEnvelope_ExpiredIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "left outer join keeps unmatched left rows")
	fpB := buildTestFingerprint(t, "left join preserves unmatched left rows")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "left outer join keeps unmatched left rows", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "left join preserves unmatched left rows", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeUnion, "op-1", "")
	require.NoError(t, err)
	rec, err := s.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE reversal_envelopes SET expires_at = ? WHERE reversal_hash = ?`,
		time.Now().Add(-time.Hour).UnixNano(), rec.ReversalHash)
	require.NoError(t, err)

	_, err = s.GetReversalEnvelope(ctx, rec.ReversalHash)
	assert.Error(t, err)
}

func TestStore_ReapExpiredReversalEnvelopes_DeletesOnlyPastExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "b-tree index speeds up range scans")
	fpB := buildTestFingerprint(t, "b-tree index accelerates range queries")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "b-tree index speeds up range scans", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "b-tree index accelerates range queries", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeUnion, "op-1", "")
	require.NoError(t, err)
	rec, err := s.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)

	n, err := s.ReapExpiredReversalEnvelopes(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "envelope is still within its window")

	n, err = s.ReapExpiredReversalEnvelopes(ctx, time.Now().Add(ReversalWindow+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetReversalEnvelope(ctx, rec.ReversalHash)
	assert.Error(t, err, "reaped envelope must no longer be readable")
}

func TestStore_RestoreFingerprintFromSnapshot_RehydratesDeletedSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fpA := buildTestFingerprint(t, "foreign key enforces referential integrity")
	fpB := buildTestFingerprint(t, "foreign key maintains referential integrity")
	require.NoError(t, s.StoreFingerprint(ctx, fpA, "foreign key enforces referential integrity", "op-1", ""))
	require.NoError(t, s.StoreFingerprint(ctx, fpB, "foreign key maintains referential integrity", "op-1", ""))

	mergedID, err := s.Merge(ctx, []fingerprint.ID{fpA.ID, fpB.ID}, MergeUnion, "op-1", "")
	require.NoError(t, err)
	rec, err := s.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)

	envelope, err := s.GetReversalEnvelope(ctx, rec.ReversalHash)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, fpA.ID))
	_, err = s.Get(ctx, fpA.ID, true)
	require.Error(t, err, "source must actually be gone before restoring it")

	require.NoError(t, s.RestoreFingerprintFromSnapshot(ctx, fpA, envelope.Contents[fpA.ID], "op-1", []byte("envelope-snapshot")))

	restored, err := s.Get(ctx, fpA.ID, true)
	require.NoError(t, err)
	assert.Equal(t, fpA.ID, restored.ID)
}
