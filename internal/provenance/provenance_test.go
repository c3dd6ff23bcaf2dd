package provenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/store"
)

func newTestReader(t *testing.T) (*Reader, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewReader(st), st
}

func buildFingerprint(t *testing.T, content string) *fingerprint.Fingerprint {
	t.Helper()
	pool, err := embedder.NewPool(embedder.BackendStub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	b := fingerprint.NewBuilder(pool)
	fp, err := b.Build(context.Background(), content, fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual}, nil)
	require.NoError(t, err)
	return fp
}

func TestReader_GetAuditTrail_ReturnsCreationRecord(t *testing.T) {
	r, st := newTestReader(t)
	fp := buildFingerprint(t, "audit trail content")
	require.NoError(t, st.StoreFingerprint(context.Background(), fp, "audit trail content", "op-1", ""))

	records, err := r.GetAuditTrail(context.Background(), &fp.ID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, store.OpCreated, records[0].Operation)
	assert.Equal(t, "op-1", records[0].OperatorID)
}

func TestReader_GetMergeHistory_NilForUnmergedFingerprint(t *testing.T) {
	r, st := newTestReader(t)
	fp := buildFingerprint(t, "never merged")
	require.NoError(t, st.StoreFingerprint(context.Background(), fp, "never merged", "op-1", ""))

	lineage, err := r.GetMergeHistory(context.Background(), fp.ID)
	require.NoError(t, err)
	assert.Nil(t, lineage.Record)
	assert.Empty(t, lineage.Originals)
}

func TestReader_GetMergeHistory_ResolvesOriginals(t *testing.T) {
	r, st := newTestReader(t)
	ctx := context.Background()

	a := buildFingerprint(t, "source a content")
	b := buildFingerprint(t, "source b content")
	require.NoError(t, st.StoreFingerprint(ctx, a, "source a content", "op-1", ""))
	require.NoError(t, st.StoreFingerprint(ctx, b, "source b content", "op-1", ""))

	mergedID, err := st.Merge(ctx, []fingerprint.ID{a.ID, b.ID}, store.MergeUnion, "op-1", "duplicate content")
	require.NoError(t, err)

	lineage, err := r.GetMergeHistory(ctx, mergedID)
	require.NoError(t, err)
	require.NotNil(t, lineage.Record)
	assert.ElementsMatch(t, []fingerprint.ID{a.ID, b.ID}, lineage.Record.SourceIDs)
	assert.Len(t, lineage.Originals, 2)
}

func TestReader_GetProvenanceChain_AssemblesFullRecord(t *testing.T) {
	r, st := newTestReader(t)
	ctx := context.Background()

	fp := buildFingerprint(t, "provenance chain content")
	require.NoError(t, st.StoreFingerprint(ctx, fp, "provenance chain content", "op-1", ""))

	_, _, err := st.BoostImportance(ctx, fp.ID, 0.2, "op-1", "manual boost")
	require.NoError(t, err)

	chain, err := r.GetProvenanceChain(ctx, fp.ID)
	require.NoError(t, err)
	require.NotNil(t, chain.Fingerprint)

	assert.Equal(t, fp.Source.SourceType, chain.Source.SourceType)
	assert.NotEmpty(t, chain.AuditTrail)
	assert.Len(t, chain.ImportanceHistory, 1)
	assert.Nil(t, chain.MergeLineage.Record)
	assert.NotEmpty(t, chain.ModelVersions)
}

func TestReader_GetProvenanceChain_UnknownIDFails(t *testing.T) {
	r, _ := newTestReader(t)
	_, err := r.GetProvenanceChain(context.Background(), fingerprint.ID{0xFF})
	assert.Error(t, err)
}
