// Package provenance implements the read-only query surface over
// internal/store's audit log, merge lineage, and importance history
// : get_audit_trail, get_merge_history, and
// get_provenance_chain. Every operation is a pure read, consistent with a
// snapshot of the primary store at call time — none of them write.
package provenance

import (
	"context"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/store"
)

// Reader answers provenance queries over a single store.
type Reader struct {
	store *store.Store
}

// NewReader wraps store for read-only provenance queries.
func NewReader(st *store.Store) *Reader {
	return &Reader{store: st}
}

// GetAuditTrail returns chronological audit records, optionally filtered
// to a target id and/or time range.
func (r *Reader) GetAuditTrail(ctx context.Context, targetID *fingerprint.ID, tr *store.TimeRange) ([]store.AuditRecord, error) {
	return r.store.GetAuditTrail(ctx, targetID, tr)
}

// MergeLineage is a merge record plus, when still retrievable, the
// original source fingerprints it was derived from.
type MergeLineage struct {
	Record    *store.MergeRecord
	Originals []*fingerprint.Fingerprint
}

// GetMergeHistory returns id's merge record, if any, plus whichever of its
// source fingerprints are still present (a source may itself have been
// merged away or tombstoned since). A nil Record means id was never the
// product of a merge.
func (r *Reader) GetMergeHistory(ctx context.Context, id fingerprint.ID) (*MergeLineage, error) {
	rec, err := r.store.GetMergeHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &MergeLineage{}, nil
	}

	lineage := &MergeLineage{Record: rec}
	for _, sourceID := range rec.SourceIDs {
		fp, err := r.store.Get(ctx, sourceID, true)
		if err != nil {
			continue // source no longer retrievable; the record itself is still authoritative
		}
		lineage.Originals = append(lineage.Originals, fp)
	}
	return lineage, nil
}

// ProvenanceChain is the full provenance assembly for one fingerprint:
// its own source metadata, every merge it participated in as a product,
// its importance history, the audit trail naming it as a target, and the
// model-version registry snapshot at query time.
type ProvenanceChain struct {
	Fingerprint       *fingerprint.Fingerprint
	Source            fingerprint.SourceMetadata
	MergeLineage      MergeLineage
	ImportanceHistory []store.ImportanceEntry
	AuditTrail        []store.AuditRecord
	ModelVersions     []store.ModelVersion
}

// GetProvenanceChain assembles the full provenance record for id: source
// metadata (including session/tool/hook context and embedding-hint
// provenance, carried on the fingerprint itself), merge lineage, permanent
// importance history, the audit trail naming id as a target, and a
// snapshot of the model-version registry.
func (r *Reader) GetProvenanceChain(ctx context.Context, id fingerprint.ID) (*ProvenanceChain, error) {
	fp, err := r.store.Get(ctx, id, true)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeNotFound, err)
	}

	lineage, err := r.GetMergeHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	importance, err := r.store.ImportanceHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	trail, err := r.store.GetAuditTrail(ctx, &id, nil)
	if err != nil {
		return nil, err
	}

	versions, err := r.store.ModelVersions(ctx)
	if err != nil {
		return nil, err
	}

	return &ProvenanceChain{
		Fingerprint:       fp,
		Source:            fp.Source,
		MergeLineage:      *lineage,
		ImportanceHistory: importance,
		AuditTrail:        trail,
		ModelVersions:     versions,
	}, nil
}
