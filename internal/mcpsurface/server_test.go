package mcpsurface

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
	"github.com/corvidmem/corvid/internal/ingest"
	"github.com/corvidmem/corvid/internal/profile"
	"github.com/corvidmem/corvid/internal/provenance"
	"github.com/corvidmem/corvid/internal/search"
	"github.com/corvidmem/corvid/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	pool, err := embedder.NewPool(embedder.BackendStub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	idx, err := index.NewManager()
	require.NoError(t, err)

	st, err := store.Open(t.TempDir(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	custom := profile.NewCustomStore()
	engine, err := search.NewEngine(idx, st, pool, search.DefaultConfig(), search.WithCustomProfiles(custom))
	require.NoError(t, err)

	pipeline := ingest.New(pool, st, idx)
	prov := provenance.NewReader(st)

	srv, err := NewServer(engine, pipeline, st, prov, custom)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RejectsNilDependencies(t *testing.T) {
	srv := newTestServer(t)

	_, err := NewServer(nil, nil, nil, nil, nil)
	assert.Error(t, err)
	assert.NotNil(t, srv)
}

func TestHandleStoreMemory_RejectsEmptyContent(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleStoreMemory(context.Background(), nil, StoreMemoryInput{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrCodeInvalidParams, toolErr.Code)
}

func TestHandleStoreMemory_ThenGet_RoundTrips(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "remember this fact", OperatorID: "op-1"})
	require.NoError(t, err)
	require.NotEmpty(t, storeOut.ID)

	_, getOut, err := srv.handleGet(ctx, nil, GetInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.Equal(t, storeOut.ID, getOut.ID)
	assert.NotEmpty(t, getOut.ContentHash)
}

func TestHandleGet_RejectsMalformedID(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleGet(context.Background(), nil, GetInput{ID: "not-hex"})
	require.Error(t, err)
}

func TestHandleForgetConcept_ThenGet_HidesByDefault(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "to be forgotten"})
	require.NoError(t, err)

	_, forgetOut, err := srv.handleForgetConcept(ctx, nil, ForgetConceptInput{ID: storeOut.ID, Reason: "stale"})
	require.NoError(t, err)
	assert.True(t, forgetOut.Deleted)

	_, _, err = srv.handleGet(ctx, nil, GetInput{ID: storeOut.ID})
	assert.Error(t, err)

	_, getOut, err := srv.handleGet(ctx, nil, GetInput{ID: storeOut.ID, IncludeTombstoned: true})
	require.NoError(t, err)
	assert.Equal(t, storeOut.ID, getOut.ID)
}

func TestHandleRestore_UndoesForget(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "restore me"})
	require.NoError(t, err)

	_, _, err = srv.handleForgetConcept(ctx, nil, ForgetConceptInput{ID: storeOut.ID, Reason: "oops"})
	require.NoError(t, err)

	_, restoreOut, err := srv.handleRestore(ctx, nil, RestoreInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.True(t, restoreOut.Restored)

	_, _, err = srv.handleGet(ctx, nil, GetInput{ID: storeOut.ID})
	assert.NoError(t, err)
}

func TestHandleBoostImportance_RejectsOutOfRangeDelta(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "boost target"})
	require.NoError(t, err)

	_, _, err = srv.handleBoostImportance(ctx, nil, BoostImportanceInput{ID: storeOut.ID, Delta: 5})
	assert.Error(t, err)
}

func TestHandleBoostImportance_AppliesClampedDelta(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "boost target"})
	require.NoError(t, err)

	_, boostOut, err := srv.handleBoostImportance(ctx, nil, BoostImportanceInput{ID: storeOut.ID, Delta: 0.3, Reason: "relevant"})
	require.NoError(t, err)
	assert.Greater(t, boostOut.New, boostOut.Old)
}

func TestHandleMergeConcepts_RejectsFewerThanTwoIDs(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "lonely"})
	require.NoError(t, err)

	_, _, err = srv.handleMergeConcepts(ctx, nil, MergeConceptsInput{IDs: []string{storeOut.ID}, Strategy: "union"})
	assert.Error(t, err)
}

func TestHandleMergeConcepts_RejectsUnknownStrategy(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, a, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "dup a"})
	require.NoError(t, err)
	_, b, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "dup b"})
	require.NoError(t, err)

	_, _, err = srv.handleMergeConcepts(ctx, nil, MergeConceptsInput{IDs: []string{a.ID, b.ID}, Strategy: "bogus"})
	assert.Error(t, err)
}

func TestHandleMergeConcepts_UnionSucceeds(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, a, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "dup a content"})
	require.NoError(t, err)
	_, b, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "dup b content"})
	require.NoError(t, err)

	_, mergeOut, err := srv.handleMergeConcepts(ctx, nil, MergeConceptsInput{
		IDs:      []string{a.ID, b.ID},
		Strategy: "union",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mergeOut.MergedID)
}

func TestHandleSearchMultiSpace_RejectsUnknownWeightSymbol(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleSearchMultiSpace(context.Background(), nil, SearchMultiSpaceInput{
		Query:   "find it",
		Weights: map[string]float64{"E99": 1.0},
	})
	assert.Error(t, err)
}

func TestHandleSearchMultiSpace_RejectsTopKOutOfRange(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleSearchMultiSpace(context.Background(), nil, SearchMultiSpaceInput{
		Query: "find it",
		TopK:  5000,
	})
	assert.Error(t, err)
}

func TestHandleSearchMultiSpace_ExactMatchRanksFirst(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "the quick brown fox"})
	require.NoError(t, err)

	_, out, err := srv.handleSearchMultiSpace(ctx, nil, SearchMultiSpaceInput{Query: "the quick brown fox", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, storeOut.ID, out.Results[0].ID)
}

func TestHandleSearchByEmbedder_RejectsUnknownSymbol(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleSearchByEmbedder(context.Background(), nil, SearchByEmbedderInput{
		Query:    "anything",
		Embedder: "E999",
	})
	assert.Error(t, err)
}

func TestHandleSearchCauses_UsesAsymmetricDirection(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "the server crashed"})
	require.NoError(t, err)

	_, out, err := srv.handleSearchCauses(ctx, nil, DirectionalSearchInput{Query: "the server crashed", TopK: 5})
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestHandleCreateWeightProfile_RegistersAndIsUsable(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	weights := map[string]float64{"E1": 1.0}
	_, createOut, err := srv.handleCreateWeightProfile(ctx, nil, CreateWeightProfileInput{
		Name:    "my_custom_profile",
		Weights: weights,
	})
	require.NoError(t, err)
	assert.Equal(t, "my_custom_profile", createOut.Name)

	_, _, err = srv.handleSearchMultiSpace(ctx, nil, SearchMultiSpaceInput{
		Query:   "anything",
		Profile: "my_custom_profile",
	})
	require.NoError(t, err)
}

func TestHandleCreateWeightProfile_RejectsUnknownSymbol(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleCreateWeightProfile(context.Background(), nil, CreateWeightProfileInput{
		Name:    "bad_profile",
		Weights: map[string]float64{"E0": 1.0},
	})
	assert.Error(t, err)
}

func TestHandleGetAuditTrail_ReturnsCreationRecord(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "audited content", OperatorID: "op-7"})
	require.NoError(t, err)

	_, trailOut, err := srv.handleGetAuditTrail(ctx, nil, GetAuditTrailInput{TargetID: storeOut.ID})
	require.NoError(t, err)
	require.NotEmpty(t, trailOut.Records)
	assert.Equal(t, "op-7", trailOut.Records[0].OperatorID)
}

func TestHandleGetMergeHistory_NotFoundForUnmergedID(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "never merged"})
	require.NoError(t, err)

	_, histOut, err := srv.handleGetMergeHistory(ctx, nil, GetMergeHistoryInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.False(t, histOut.Found)
}

func TestHandleGetProvenanceChain_AssemblesFullRecord(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, storeOut, err := srv.handleStoreMemory(ctx, nil, StoreMemoryInput{Content: "provenance target", OperatorID: "op-3"})
	require.NoError(t, err)

	_, chainOut, err := srv.handleGetProvenanceChain(ctx, nil, GetProvenanceChainInput{ID: storeOut.ID})
	require.NoError(t, err)
	assert.Equal(t, storeOut.ID, chainOut.ID)
	assert.Equal(t, string(fingerprint.SourceManual), chainOut.SourceType)
	assert.GreaterOrEqual(t, chainOut.AuditTrailLen, 1)
}

func TestHandleGetProvenanceChain_UnknownIDFails(t *testing.T) {
	srv := newTestServer(t)
	_, _, err := srv.handleGetProvenanceChain(context.Background(), nil, GetProvenanceChainInput{ID: "ffffffffffffffffffffffffffffffff"})
	assert.Error(t, err)
}
