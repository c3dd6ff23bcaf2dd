// Package mcpsurface wires the fifteen-operation invocation surface onto
// an MCP server, grounded on internal/mcp/server.go
// tool-registration shape: one Tool per operation, one typed handler per
// Tool, a single registerTools call at construction, and a stdio-only
// Serve loop.
package mcpsurface

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/fusion"
	"github.com/corvidmem/corvid/internal/ingest"
	"github.com/corvidmem/corvid/internal/profile"
	"github.com/corvidmem/corvid/internal/provenance"
	"github.com/corvidmem/corvid/internal/search"
	"github.com/corvidmem/corvid/internal/store"
	"github.com/corvidmem/corvid/pkg/version"
)

// Server bridges an AI client to the full fingerprint lifecycle: ingest,
// the soft-delete/restore/merge/boost write operations, the five search
// variants, weight-profile registration, and the three provenance reads.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	ingest *ingest.Pipeline
	store  *store.Store
	prov   *provenance.Reader
	custom *profile.CustomStore
	logger *slog.Logger
}

// NewServer wires a Server from its required collaborators, rejecting
// any that are nil.
func NewServer(engine *search.Engine, pipeline *ingest.Pipeline, st *store.Store, prov *provenance.Reader, custom *profile.CustomStore) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if pipeline == nil {
		return nil, errors.New("ingest pipeline is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if prov == nil {
		return nil, errors.New("provenance reader is required")
	}
	if custom == nil {
		custom = profile.NewCustomStore()
	}

	s := &Server{
		engine: engine,
		ingest: pipeline,
		store:  st,
		prov:   prov,
		custom: custom,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "corvid",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers all fifteen operations with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_memory",
		Description: "Embed and persist a piece of content across all thirteen substrates, recording its provenance.",
	}, s.handleStoreMemory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get",
		Description: "Fetch a stored fingerprint by id.",
	}, s.handleGet)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "forget_concept",
		Description: "Soft-delete a fingerprint; it remains recoverable for 30 days.",
	}, s.handleForgetConcept)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "restore",
		Description: "Restore a soft-deleted fingerprint within its recovery window.",
	}, s.handleRestore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "boost_importance",
		Description: "Apply a signed delta to a fingerprint's importance, clamped to [0,1].",
	}, s.handleBoostImportance)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "merge_concepts",
		Description: "Consolidate two or more fingerprints into one, recording reversible lineage.",
	}, s.handleMergeConcepts)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_multi_space",
		Description: "Weighted reciprocal-rank-fusion search across every active embedder, by named or explicit profile.",
	}, s.handleSearchMultiSpace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_causes",
		Description: "Directional search: given an effect, find its causes via the asymmetric causal embedder.",
	}, s.handleSearchCauses)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_effects",
		Description: "Directional search: given a cause, find its effects via the asymmetric causal embedder.",
	}, s.handleSearchEffects)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_by_embedder",
		Description: "Search using exactly one named embedder, bypassing fusion entirely.",
	}, s.handleSearchByEmbedder)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "adaptive_search",
		Description: "Search with a weight profile chosen automatically from the query's surface cues.",
	}, s.handleAdaptiveSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_weight_profile",
		Description: "Register a custom per-embedder weight profile for the remainder of the session.",
	}, s.handleCreateWeightProfile)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_audit_trail",
		Description: "List append-only audit records, optionally filtered by target id and time range.",
	}, s.handleGetAuditTrail)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_merge_history",
		Description: "Report whether a fingerprint is a merge product and, if so, its sources.",
	}, s.handleGetMergeHistory)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_provenance_chain",
		Description: "Assemble a fingerprint's full provenance: source, merge lineage, importance history, audit trail, model versions.",
	}, s.handleGetProvenanceChain)

	s.logger.Info("mcp tools registered", slog.Int("count", 15))
}

// --- store_memory ---

func (s *Server) handleStoreMemory(ctx context.Context, _ *mcp.CallToolRequest, input StoreMemoryInput) (*mcp.CallToolResult, StoreMemoryOutput, error) {
	if input.Content == "" {
		return nil, StoreMemoryOutput{}, NewInvalidParamsError("content is required")
	}

	req := ingest.IngestRequest{
		Content:          input.Content,
		Source:           fingerprint.SourceMetadata{SourceType: fingerprint.SourceManual, SessionID: input.SessionID},
		OperatorID:       input.OperatorID,
		ToolInvocationID: input.ToolInvocationID,
	}
	id, err := s.ingest.Ingest(ctx, req)
	if err != nil {
		return nil, StoreMemoryOutput{}, MapError(err)
	}
	return nil, StoreMemoryOutput{ID: encodeHex(id)}, nil
}

// --- get ---

func (s *Server) handleGet(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, GetOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, GetOutput{}, NewInvalidParamsError(err.Error())
	}

	fp, err := s.store.Get(ctx, id, input.IncludeTombstoned)
	if err != nil {
		return nil, GetOutput{}, MapError(err)
	}
	return nil, GetOutput{ID: encodeHex(fp.ID), ContentHash: fp.ContentHash, Importance: fp.Importance}, nil
}

// --- forget_concept ---

func (s *Server) handleForgetConcept(ctx context.Context, _ *mcp.CallToolRequest, input ForgetConceptInput) (*mcp.CallToolResult, ForgetConceptOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, ForgetConceptOutput{}, NewInvalidParamsError(err.Error())
	}
	if err := s.store.SoftDelete(ctx, id, input.OperatorID, input.Reason); err != nil {
		return nil, ForgetConceptOutput{}, MapError(err)
	}
	return nil, ForgetConceptOutput{Deleted: true}, nil
}

// --- restore ---

func (s *Server) handleRestore(ctx context.Context, _ *mcp.CallToolRequest, input RestoreInput) (*mcp.CallToolResult, RestoreOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, RestoreOutput{}, NewInvalidParamsError(err.Error())
	}
	if err := s.store.Restore(ctx, id, input.OperatorID); err != nil {
		return nil, RestoreOutput{}, MapError(err)
	}
	return nil, RestoreOutput{Restored: true}, nil
}

// --- boost_importance ---

func (s *Server) handleBoostImportance(ctx context.Context, _ *mcp.CallToolRequest, input BoostImportanceInput) (*mcp.CallToolResult, BoostImportanceOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, BoostImportanceOutput{}, NewInvalidParamsError(err.Error())
	}
	if err := boundsCheck("delta", input.Delta, -1, 1); err != nil {
		return nil, BoostImportanceOutput{}, NewInvalidParamsError(err.Error())
	}

	old, newVal, err := s.store.BoostImportance(ctx, id, input.Delta, input.OperatorID, input.Reason)
	if err != nil {
		return nil, BoostImportanceOutput{}, MapError(err)
	}
	return nil, BoostImportanceOutput{Old: old, New: newVal}, nil
}

// --- merge_concepts ---

var mergeStrategies = map[string]store.MergeStrategy{
	"union":            store.MergeUnion,
	"intersection":     store.MergeIntersection,
	"weighted_average": store.MergeWeightedAverage,
}

func (s *Server) handleMergeConcepts(ctx context.Context, _ *mcp.CallToolRequest, input MergeConceptsInput) (*mcp.CallToolResult, MergeConceptsOutput, error) {
	if len(input.IDs) < 2 {
		return nil, MergeConceptsOutput{}, NewInvalidParamsError("at least two ids are required to merge")
	}

	strategy, ok := mergeStrategies[input.Strategy]
	if !ok {
		return nil, MergeConceptsOutput{}, NewInvalidParamsError("unknown merge strategy: " + input.Strategy)
	}

	ids := make([]fingerprint.ID, len(input.IDs))
	for i, raw := range input.IDs {
		id, err := parseID(raw)
		if err != nil {
			return nil, MergeConceptsOutput{}, NewInvalidParamsError(err.Error())
		}
		ids[i] = id
	}

	mergedID, err := s.store.Merge(ctx, ids, strategy, input.OperatorID, input.Rationale)
	if err != nil {
		return nil, MergeConceptsOutput{}, MapError(err)
	}
	return nil, MergeConceptsOutput{MergedID: encodeHex(mergedID)}, nil
}

// --- search_multi_space ---

func (s *Server) handleSearchMultiSpace(ctx context.Context, _ *mcp.CallToolRequest, input SearchMultiSpaceInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	opts, err := s.baseSearchOptions(input.TopK, input.MinSimilarity, input.IncludeBreakdown)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}

	if len(input.Weights) > 0 {
		w, err := weightsFromMap(input.Weights)
		if err != nil {
			return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
		}
		if err := w.Validate(); err != nil {
			return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
		}
		opts.Weights = &w
	} else if input.Profile != "" {
		opts.ProfileName = profile.Name(input.Profile)
	}

	resp, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

// --- search_causes / search_effects ---

func (s *Server) handleSearchCauses(ctx context.Context, _ *mcp.CallToolRequest, input DirectionalSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.handleDirectionalSearch(ctx, input, fusion.DirectionCause)
}

func (s *Server) handleSearchEffects(ctx context.Context, _ *mcp.CallToolRequest, input DirectionalSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	return s.handleDirectionalSearch(ctx, input, fusion.DirectionEffect)
}

func (s *Server) handleDirectionalSearch(ctx context.Context, input DirectionalSearchInput, direction fusion.Direction) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	opts, err := s.baseSearchOptions(input.TopK, input.MinSimilarity, false)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}
	opts.ProfileName = profile.CausalReasoning
	opts.Asymmetric = &search.AsymmetricQuery{Embedder: embedder.E5, Direction: direction}

	resp, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

// --- search_by_embedder ---

func (s *Server) handleSearchByEmbedder(ctx context.Context, _ *mcp.CallToolRequest, input SearchByEmbedderInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	w, err := weightsFromMap(map[string]float64{input.Embedder: 1.0})
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}

	opts, err := s.baseSearchOptions(input.TopK, 0, false)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}
	opts.Weights = &w

	resp, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

// --- adaptive_search ---

func (s *Server) handleAdaptiveSearch(ctx context.Context, _ *mcp.CallToolRequest, input AdaptiveSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	opts, err := s.baseSearchOptions(input.TopK, input.MinSimilarity, false)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}

	resp, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return nil, toSearchOutput(resp), nil
}

// --- create_weight_profile ---

func (s *Server) handleCreateWeightProfile(_ context.Context, _ *mcp.CallToolRequest, input CreateWeightProfileInput) (*mcp.CallToolResult, CreateWeightProfileOutput, error) {
	if input.Name == "" {
		return nil, CreateWeightProfileOutput{}, NewInvalidParamsError("name is required")
	}

	w, err := weightsFromMap(input.Weights)
	if err != nil {
		return nil, CreateWeightProfileOutput{}, NewInvalidParamsError(err.Error())
	}
	if err := s.custom.Register(input.Name, w); err != nil {
		return nil, CreateWeightProfileOutput{}, NewInvalidParamsError(err.Error())
	}
	return nil, CreateWeightProfileOutput{Name: input.Name}, nil
}

// --- get_audit_trail ---

func (s *Server) handleGetAuditTrail(ctx context.Context, _ *mcp.CallToolRequest, input GetAuditTrailInput) (*mcp.CallToolResult, GetAuditTrailOutput, error) {
	var targetID *fingerprint.ID
	if input.TargetID != "" {
		id, err := parseID(input.TargetID)
		if err != nil {
			return nil, GetAuditTrailOutput{}, NewInvalidParamsError(err.Error())
		}
		targetID = &id
	}

	var tr *store.TimeRange
	if input.FromUnix != 0 || input.ToUnix != 0 {
		tr = &store.TimeRange{}
		if input.FromUnix != 0 {
			tr.From = unixToTime(input.FromUnix)
		}
		if input.ToUnix != 0 {
			tr.To = unixToTime(input.ToUnix)
		}
	}

	records, err := s.prov.GetAuditTrail(ctx, targetID, tr)
	if err != nil {
		return nil, GetAuditTrailOutput{}, MapError(err)
	}

	out := GetAuditTrailOutput{Records: make([]AuditRecordOutput, 0, len(records))}
	for _, rec := range records {
		targets := make([]string, len(rec.TargetIDs))
		for i, id := range rec.TargetIDs {
			targets[i] = encodeHex(id)
		}
		out.Records = append(out.Records, AuditRecordOutput{
			Operation:  string(rec.Operation),
			TargetIDs:  targets,
			OperatorID: rec.OperatorID,
			Rationale:  rec.Rationale,
			Outcome:    string(rec.Outcome),
			Timestamp:  rec.Timestamp.Unix(),
		})
	}
	return nil, out, nil
}

// --- get_merge_history ---

func (s *Server) handleGetMergeHistory(ctx context.Context, _ *mcp.CallToolRequest, input GetMergeHistoryInput) (*mcp.CallToolResult, GetMergeHistoryOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, GetMergeHistoryOutput{}, NewInvalidParamsError(err.Error())
	}

	lineage, err := s.prov.GetMergeHistory(ctx, id)
	if err != nil {
		return nil, GetMergeHistoryOutput{}, MapError(err)
	}
	return nil, toMergeHistoryOutput(lineage), nil
}

// --- get_provenance_chain ---

func (s *Server) handleGetProvenanceChain(ctx context.Context, _ *mcp.CallToolRequest, input GetProvenanceChainInput) (*mcp.CallToolResult, GetProvenanceChainOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, GetProvenanceChainOutput{}, NewInvalidParamsError(err.Error())
	}

	chain, err := s.prov.GetProvenanceChain(ctx, id)
	if err != nil {
		return nil, GetProvenanceChainOutput{}, MapError(err)
	}

	return nil, GetProvenanceChainOutput{
		ID:                   encodeHex(chain.Fingerprint.ID),
		SourceType:           string(chain.Source.SourceType),
		SessionID:            chain.Source.SessionID,
		OperatorID:           chain.Source.OperatorID,
		Importance:           chain.Fingerprint.Importance,
		MergeHistory:         toMergeHistoryOutput(&chain.MergeLineage),
		ImportanceHistoryLen: len(chain.ImportanceHistory),
		AuditTrailLen:        len(chain.AuditTrail),
		ModelVersionCount:    len(chain.ModelVersions),
	}, nil
}

// --- shared helpers ---

// baseSearchOptions builds the SearchOptions fields common to every search
// tool, validating top_k and min_similarity against bounds.
func (s *Server) baseSearchOptions(topK int, minSimilarity float64, includeBreakdown bool) (search.SearchOptions, error) {
	opts := search.SearchOptions{IncludeBreakdown: includeBreakdown}
	if topK != 0 {
		if err := boundsCheck("top_k", float64(topK), 1, 1000); err != nil {
			return opts, err
		}
		opts.TopK = topK
	}
	if minSimilarity != 0 {
		if err := boundsCheck("min_similarity", minSimilarity, 0, 1); err != nil {
			return opts, err
		}
		opts.MinSimilarity = minSimilarity
	}
	return opts, nil
}

func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results:           make([]SearchResultOutput, 0, len(resp.Results)),
		ProfileUsed:       string(resp.ProfileName),
		ActiveEmbedders:   resp.ActiveEmbedders,
		DegradedEmbedders: resp.DegradedEmbedders,
		DominantEmbedder:  resp.DominantEmbedder,
		AgreementLevel:    resp.AgreementLevel,
		Partial:           resp.Partial,
	}
	for _, r := range resp.Results {
		ro := SearchResultOutput{
			ID:           encodeHex(r.ID),
			Score:        r.Score,
			DominantSlot: r.DominantSlot.String(),
			Agreement:    r.Agreement,
		}
		if r.Breakdown != nil {
			ro.Breakdown = make(map[string]SlotBreakdownOutput, len(r.Breakdown))
			for slot, b := range r.Breakdown {
				ro.Breakdown[slot] = SlotBreakdownOutput{
					Rank:            b.Rank,
					NormalizedScore: b.NormalizedScore,
					Contribution:    b.Contribution,
				}
			}
		}
		if r.Fingerprint != nil {
			ro.ContentHash = r.Fingerprint.ContentHash
		}
		out.Results = append(out.Results, ro)
	}
	return out
}

func toMergeHistoryOutput(lineage *provenance.MergeLineage) GetMergeHistoryOutput {
	if lineage == nil || lineage.Record == nil {
		return GetMergeHistoryOutput{Found: false}
	}

	sourceIDs := make([]string, len(lineage.Record.SourceIDs))
	for i, id := range lineage.Record.SourceIDs {
		sourceIDs[i] = encodeHex(id)
	}
	originals := make([]string, len(lineage.Originals))
	for i, fp := range lineage.Originals {
		originals[i] = encodeHex(fp.ID)
	}

	return GetMergeHistoryOutput{
		Found:       true,
		SourceIDs:   sourceIDs,
		Strategy:    string(lineage.Record.Strategy),
		Rationale:   lineage.Record.Rationale,
		OriginalIDs: originals,
	}
}

// Serve runs the server until ctx is canceled. Only stdio transport is
// supported, matching MCP entrypoint.
func (s *Server) Serve(ctx context.Context, transport string) error {
	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp server stopped gracefully")
		return nil
	default:
		return errors.New("unknown transport: " + transport + " (supported: stdio)")
	}
}
