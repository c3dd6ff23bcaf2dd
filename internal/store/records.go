package store

import (
	"time"

	"github.com/corvidmem/corvid/internal/fingerprint"
)

// Operation enumerates audit-log operation kinds.
type Operation string

const (
	OpCreated                Operation = "Created"
	OpMerged                 Operation = "Merged"
	OpDeleted                Operation = "Deleted"
	OpRestored               Operation = "Restored"
	OpMergeReversed          Operation = "MergeReversed"
	OpImportanceBoosted      Operation = "ImportanceBoosted"
	OpRelationshipDiscovered Operation = "RelationshipDiscovered"
	OpConsolidationAnalyzed  Operation = "ConsolidationAnalyzed"
	OpTopicDetected          Operation = "TopicDetected"
	OpEmbeddingRecomputed    Operation = "EmbeddingRecomputed"
	OpHookExecuted           Operation = "HookExecuted"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFailure Outcome = "Failure"
	OutcomePartial Outcome = "Partial"
)

// AuditKey is the 24-byte append-only ordering key: big-endian nanosecond
// timestamp concatenated with a monotonic tiebreaker.
type AuditKey [24]byte

// AuditRecord is one append-only provenance entry. Never updated or
// deleted once written.
type AuditRecord struct {
	Key           AuditKey
	Operation     Operation
	TargetIDs     []fingerprint.ID
	OperatorID    string
	SessionID     string
	Rationale     string
	Parameters    map[string]string
	PreviousState []byte // opaque snapshot, gob-encoded by the caller
	Outcome       Outcome
	Timestamp     time.Time
}

// MergeRecord is the permanent lineage entry for a merge operation.
type MergeRecord struct {
	MergedID     fingerprint.ID
	SourceIDs    []fingerprint.ID
	Strategy     MergeStrategy
	Rationale    string
	OperatorID   string
	ReversalHash string
	CreatedAt    time.Time
}

// ReversalEnvelope captures enough state to reconstruct a merge's source
// fingerprints, including their raw content so GetReversalEnvelope's
// caller can restore both the primary-store row and the ANN entries; it
// expires 30 days after the merge.
type ReversalEnvelope struct {
	ReversalHash string
	MergedID     fingerprint.ID
	Sources      []*fingerprint.Fingerprint
	Contents     map[fingerprint.ID]string
	ExpiresAt    time.Time
}

// ImportanceEntry is one link in a fingerprint's permanent importance
// history chain.
type ImportanceEntry struct {
	FingerprintID fingerprint.ID
	Timestamp     time.Time
	Old           float64
	New           float64
	Delta         float64
	OperatorID    string
	Reason        string
}

// Tombstone records a soft-deleted fingerprint's recovery window.
type Tombstone struct {
	FingerprintID    fingerprint.ID
	DeletedAt        time.Time
	OperatorID       string
	Reason           string
	RecoveryDeadline time.Time
}

// Expired reports whether the tombstone's recovery window has closed as
// of now.
func (t Tombstone) Expired(now time.Time) bool {
	return !now.Before(t.RecoveryDeadline)
}

// ModelVersion is a registry entry recording which embedding model
// produced a given embedder's output.
type ModelVersion struct {
	EmbedderIndex    int
	ModelIdentifier  string
	ModelVersionHash string
	Quantization     string
	FirstSeenAt      time.Time
}

// RecommendationState is the lifecycle state of a consolidation
// recommendation.
type RecommendationState string

const (
	RecommendationPending  RecommendationState = "Pending"
	RecommendationAccepted RecommendationState = "Accepted"
	RecommendationRejected RecommendationState = "Rejected"
	RecommendationExpired  RecommendationState = "Expired"
)

// ConsolidationRecommendation is the only expiring provenance artifact
// .
type ConsolidationRecommendation struct {
	ID           fingerprint.ID
	FingerprintA fingerprint.ID
	FingerprintB fingerprint.ID
	Score        float64
	State        RecommendationState
	CreatedAt    time.Time
	ExpiresAt    time.Time
}
