package store

import (
	"context"
	"time"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// TimeRange bounds a GetAuditTrail query; a zero value on either side is
// unbounded on that side.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// GetAuditTrail returns audit records in chronological order, optionally
// filtered to a target fingerprint id and/or a time range.
func (s *Store) GetAuditTrail(ctx context.Context, targetID *fingerprint.ID, tr *TimeRange) ([]AuditRecord, error) {
	var args []interface{}
	var query string

	if targetID != nil {
		query = `SELECT al.record FROM audit_log al
		         JOIN audit_by_target abt ON abt.akey = al.akey
		         WHERE abt.target_id = ?`
		args = append(args, (*targetID)[:])
	} else {
		query = `SELECT al.record FROM audit_log al WHERE 1=1`
	}

	if tr != nil && !tr.From.IsZero() {
		query += ` AND al.ts_nanos >= ?`
		args = append(args, tr.From.UnixNano())
	}
	if tr != nil && !tr.To.IsZero() {
		query += ` AND al.ts_nanos <= ?`
		args = append(args, tr.To.UnixNano())
	}
	query += ` ORDER BY al.ts_nanos ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
		var rec AuditRecord
		if err := decodeGob(data, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// ImportanceHistory returns the permanent importance-change chain for id,
// oldest first.
func (s *Store) ImportanceHistory(ctx context.Context, id fingerprint.ID) ([]ImportanceEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, old_val, new_val, delta, operator, reason FROM importance_history
		 WHERE fingerprint_id = ? ORDER BY ts ASC`, id[:])
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer rows.Close()

	var entries []ImportanceEntry
	for rows.Next() {
		var tsNanos int64
		e := ImportanceEntry{FingerprintID: id}
		if err := rows.Scan(&tsNanos, &e.Old, &e.New, &e.Delta, &e.OperatorID, &e.Reason); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
		e.Timestamp = time.Unix(0, tsNanos)
		entries = append(entries, e)
	}
	return entries, nil
}

// AllTombstones returns every tombstone row, used by
// lifecycle.TombstoneSet.Rehydrate to rebuild its in-memory set.
func (s *Store) AllTombstones(ctx context.Context) ([]Tombstone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint_id, deleted_at, operator, reason, recovery_deadline FROM tombstones`)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer rows.Close()

	var tombstones []Tombstone
	for rows.Next() {
		var idBytes []byte
		var deletedAt, deadline int64
		t := Tombstone{}
		if err := rows.Scan(&idBytes, &deletedAt, &t.OperatorID, &t.Reason, &deadline); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
		copy(t.FingerprintID[:], idBytes)
		t.DeletedAt = time.Unix(0, deletedAt)
		t.RecoveryDeadline = time.Unix(0, deadline)
		tombstones = append(tombstones, t)
	}
	return tombstones, nil
}

// ModelVersions returns the full model-version registry, oldest first.
// Used by internal/provenance to report which embedding models were live
// at query time alongside a fingerprint's provenance chain.
func (s *Store) ModelVersions(ctx context.Context) ([]ModelVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT embedder_index, model_version_hash, model_identifier, quantization, first_seen_at
		 FROM model_version_registry ORDER BY first_seen_at ASC`)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer rows.Close()

	var versions []ModelVersion
	for rows.Next() {
		var firstSeen int64
		v := ModelVersion{}
		if err := rows.Scan(&v.EmbedderIndex, &v.ModelVersionHash, &v.ModelIdentifier, &v.Quantization, &firstSeen); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
		v.FirstSeenAt = time.Unix(0, firstSeen)
		versions = append(versions, v)
	}
	return versions, nil
}
