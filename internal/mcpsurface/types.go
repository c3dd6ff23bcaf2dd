// Package mcpsurface registers the invocation surface of as
// MCP tools: fifteen operations, each with a strictly validated
// jsonschema-tagged input/output pair, grounded on own
// tool-registration shape in internal/mcp/server.go.
package mcpsurface

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/profile"
)

// unixToTime converts a unix-seconds timestamp to time.Time, used to build
// the optional time bound on get_audit_trail.
func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

// parseID decodes a hex-encoded 16-byte fingerprint id.
func parseID(s string) (fingerprint.ID, error) {
	var id fingerprint.ID
	raw, err := decodeHex(s)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("invalid fingerprint id %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

func encodeHex(id fingerprint.ID) string {
	var sb strings.Builder
	sb.Grow(len(id) * 2)
	for _, b := range id {
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// weightsFromMap builds a profile.Weights from an explicit embedder-symbol
// keyed map ("E1".."E13"), rejecting unknown symbols.
func weightsFromMap(m map[string]float64) (profile.Weights, error) {
	var w profile.Weights
	symbolToIndex := make(map[string]embedder.Index, embedder.NumEmbedders)
	for _, spec := range embedder.Registry {
		symbolToIndex[spec.Index.String()] = spec.Index
	}
	for symbol, weight := range m {
		idx, ok := symbolToIndex[symbol]
		if !ok {
			return w, fmt.Errorf("unknown embedder symbol %q", symbol)
		}
		w[idx] = weight
	}
	return w, nil
}

// boundsCheck validates a [lo,hi] range, used for top_k, min_similarity,
// and importance parameters across every tool that accepts them.
func boundsCheck(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be in [%v,%v], got %v", field, lo, hi, v)
	}
	return nil
}

// --- store_memory ---

type StoreMemoryInput struct {
	Content          string `json:"content" jsonschema:"the raw text content to embed and store"`
	OperatorID       string `json:"operator_id,omitempty" jsonschema:"identifier of the agent or user performing this write"`
	ToolInvocationID string `json:"tool_invocation_id,omitempty" jsonschema:"correlates this write to the tool call that produced it"`
	SessionID        string `json:"session_id,omitempty" jsonschema:"identifier of the originating session"`
}

type StoreMemoryOutput struct {
	ID string `json:"id" jsonschema:"hex-encoded id of the stored fingerprint"`
}

// --- get ---

type GetInput struct {
	ID                string `json:"id" jsonschema:"hex-encoded fingerprint id"`
	IncludeTombstoned bool   `json:"include_tombstoned,omitempty" jsonschema:"return the fingerprint even if it has been soft-deleted"`
}

type GetOutput struct {
	ID          string  `json:"id"`
	ContentHash string  `json:"content_hash"`
	Importance  float64 `json:"importance"`
}

// --- forget_concept ---

type ForgetConceptInput struct {
	ID         string `json:"id" jsonschema:"hex-encoded fingerprint id to soft-delete"`
	OperatorID string `json:"operator_id,omitempty"`
	Reason     string `json:"reason" jsonschema:"why this concept is being forgotten"`
}

type ForgetConceptOutput struct {
	Deleted bool `json:"deleted"`
}

// --- restore ---

type RestoreInput struct {
	ID         string `json:"id" jsonschema:"hex-encoded fingerprint id to restore"`
	OperatorID string `json:"operator_id,omitempty"`
}

type RestoreOutput struct {
	Restored bool `json:"restored"`
}

// --- boost_importance ---

type BoostImportanceInput struct {
	ID         string  `json:"id" jsonschema:"hex-encoded fingerprint id"`
	Delta      float64 `json:"delta" jsonschema:"signed change to apply, result is clamped to [0,1]"`
	OperatorID string  `json:"operator_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type BoostImportanceOutput struct {
	Old float64 `json:"old"`
	New float64 `json:"new"`
}

// --- merge_concepts ---

type MergeConceptsInput struct {
	IDs        []string `json:"ids" jsonschema:"hex-encoded ids of the fingerprints to merge, at least two"`
	Strategy   string   `json:"strategy" jsonschema:"one of union, intersection, weighted_average"`
	OperatorID string   `json:"operator_id,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

type MergeConceptsOutput struct {
	MergedID string `json:"merged_id"`
}

// --- search_multi_space ---

type SearchMultiSpaceInput struct {
	Query            string             `json:"query" jsonschema:"the search query text"`
	TopK             int                `json:"top_k,omitempty" jsonschema:"number of results, in [1,1000], default 10"`
	MinSimilarity    float64            `json:"min_similarity,omitempty" jsonschema:"minimum fused score in [0,1]"`
	Profile          string             `json:"profile,omitempty" jsonschema:"named weight profile; ignored if weights is set"`
	Weights          map[string]float64 `json:"weights,omitempty" jsonschema:"explicit per-embedder weight map keyed by symbol (E1..E13); overrides profile"`
	IncludeBreakdown bool               `json:"include_breakdown,omitempty"`
}

type SearchResultOutput struct {
	ID           string                        `json:"id"`
	Score        float64                       `json:"score"`
	DominantSlot string                        `json:"dominant_slot"`
	Agreement    int                           `json:"agreement"`
	Breakdown    map[string]SlotBreakdownOutput `json:"breakdown,omitempty"`
	ContentHash  string                        `json:"content_hash"`
}

// SlotBreakdownOutput is the wire form of search.SlotBreakdown: one
// embedder slot's rank, normalized score, and RRF contribution for a
// single result.
type SlotBreakdownOutput struct {
	Rank            int     `json:"rank"`
	NormalizedScore float64 `json:"normalized_score"`
	Contribution    float64 `json:"contribution"`
}

type SearchOutput struct {
	Results           []SearchResultOutput `json:"results"`
	ProfileUsed       string               `json:"profile_used"`
	ActiveEmbedders   []string             `json:"active_embedders"`
	DegradedEmbedders []string             `json:"degraded_embedders"`
	DominantEmbedder  string               `json:"dominant_embedder,omitempty"`
	AgreementLevel    int                  `json:"agreement_level"`
	Partial           bool                 `json:"partial"`
}

// --- search_causes / search_effects ---

type DirectionalSearchInput struct {
	Query         string  `json:"query" jsonschema:"the search query text"`
	TopK          int     `json:"top_k,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// --- search_by_embedder ---

type SearchByEmbedderInput struct {
	Query    string `json:"query" jsonschema:"the search query text"`
	Embedder string `json:"embedder" jsonschema:"embedder symbol to search exclusively, e.g. E1"`
	TopK     int    `json:"top_k,omitempty"`
}

// --- adaptive_search ---

type AdaptiveSearchInput struct {
	Query         string  `json:"query" jsonschema:"the search query text; its profile is chosen automatically from surface cues"`
	TopK          int     `json:"top_k,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// --- create_weight_profile ---

type CreateWeightProfileInput struct {
	Name    string             `json:"name" jsonschema:"name to register this profile under for the session"`
	Weights map[string]float64 `json:"weights" jsonschema:"per-embedder weight map keyed by symbol (E1..E13), must sum to 1.0"`
}

type CreateWeightProfileOutput struct {
	Name string `json:"name"`
}

// --- get_audit_trail ---

type GetAuditTrailInput struct {
	TargetID string `json:"target_id,omitempty" jsonschema:"hex-encoded fingerprint id to filter by"`
	FromUnix int64  `json:"from_unix,omitempty" jsonschema:"lower time bound, unix seconds"`
	ToUnix   int64  `json:"to_unix,omitempty" jsonschema:"upper time bound, unix seconds"`
}

type AuditRecordOutput struct {
	Operation  string   `json:"operation"`
	TargetIDs  []string `json:"target_ids"`
	OperatorID string   `json:"operator_id"`
	Rationale  string   `json:"rationale,omitempty"`
	Outcome    string   `json:"outcome"`
	Timestamp  int64    `json:"timestamp_unix"`
}

type GetAuditTrailOutput struct {
	Records []AuditRecordOutput `json:"records"`
}

// --- get_merge_history ---

type GetMergeHistoryInput struct {
	ID string `json:"id" jsonschema:"hex-encoded fingerprint id"`
}

type GetMergeHistoryOutput struct {
	Found       bool     `json:"found"`
	SourceIDs   []string `json:"source_ids,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	OriginalIDs []string `json:"originals_still_present,omitempty"`
}

// --- get_provenance_chain ---

type GetProvenanceChainInput struct {
	ID string `json:"id" jsonschema:"hex-encoded fingerprint id"`
}

type GetProvenanceChainOutput struct {
	ID                   string                `json:"id"`
	SourceType           string                `json:"source_type"`
	SessionID            string                `json:"session_id,omitempty"`
	OperatorID           string                `json:"operator_id,omitempty"`
	Importance           float64               `json:"importance"`
	MergeHistory         GetMergeHistoryOutput `json:"merge_history"`
	ImportanceHistoryLen int                   `json:"importance_history_len"`
	AuditTrailLen        int                   `json:"audit_trail_len"`
	ModelVersionCount    int                   `json:"model_version_count"`
}
