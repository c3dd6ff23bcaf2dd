// Package store implements the durable primary column-family store:
// fingerprints, content, and every provenance record family, backed by a single modernc.org/sqlite database guarded by an
// advisory file lock and a shared LRU block cache.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// RecoveryWindow is the soft-delete tombstone recovery period.
const RecoveryWindow = 30 * 24 * time.Hour

// ReversalWindow is how long a merge's reversal envelope remains usable
// .
const ReversalWindow = 30 * 24 * time.Hour

// Store is the primary durable store. A single *sql.DB and a single
// *lru.Cache are shared across every logical column family.
type Store struct {
	db    *sql.DB
	lock  *dirLock
	cache *lru.Cache[string, []byte]

	mu       sync.Mutex // serializes the secondary tool-call/model-version writes alongside the primary batch
	auditSeq atomic.Uint64
}

// Open opens or creates the store at dataDir. cacheMB sizes the shared
// block cache (approximated here as an entry-count cache since
// modernc.org/sqlite already manages its own page cache; this LRU layer
// caches decoded fingerprint records to avoid repeat gob decodes).
func Open(dataDir string, cacheMB int) (*Store, error) {
	lock := newDirLock(dataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeLockFailed, err)
	}
	if !acquired {
		return nil, cerrors.New(cerrors.ErrCodeLockFailed, "data directory is locked by another process", nil)
	}

	dbPath := dataDir
	if dataDir != "" {
		dbPath = dataDir + "/corvid.db"
	}
	db, err := openDB(dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	entries := cacheMB * 64 // ~16KB budget per cached decoded record
	if entries < 256 {
		entries = 256
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		db.Close()
		_ = lock.Unlock()
		return nil, cerrors.Wrap(cerrors.ErrCodeInternal, err)
	}

	return &Store{db: db, lock: lock, cache: cache}, nil
}

// DB returns the underlying connection, for packages (telemetry) that
// need their own tables in the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle and the advisory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// StoreFingerprint commits a fingerprint, its raw content, a Created
// audit record, a tool-call index entry, and model-version registry rows
// for every embedder, all inside one *sql.Tx.
func (s *Store) StoreFingerprint(ctx context.Context, fp *fingerprint.Fingerprint, content, operatorID, toolInvocationID string) error {
	record, err := encodeGob(*fp)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fingerprints (id, content, record, content_hash, created_at, updated_at, importance)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fp.ID[:], content, record, fp.ContentHash, fp.CreatedAt.UnixNano(), fp.UpdatedAt.UnixNano(), fp.Importance,
	); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if toolInvocationID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_call_index (tool_invocation_id, fingerprint_id) VALUES (?, ?)`,
			toolInvocationID, fp.ID[:],
		); err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
	}

	if err := s.recordModelVersions(ctx, tx, fp); err != nil {
		return err
	}

	if err := s.appendAuditTx(ctx, tx, OpCreated, []fingerprint.ID{fp.ID}, operatorID, fp.Source.SessionID,
		"store_memory", nil, nil, OutcomeSuccess); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	s.cache.Add(string(fp.ID[:]), record)
	return nil
}

// Delete permanently removes a fingerprint and its content from the
// primary store. Used by the ingest pipeline's compensating path when an
// index insert fails after the primary batch committed, and by
// internal/lifecycle's tombstone reaper once a soft-delete's 30-day
// recovery window has closed. The audit log itself is
// append-only and is never touched by this call beyond appending the
// Deleted record below.
func (s *Store) Delete(ctx context.Context, id fingerprint.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	var prevState []byte
	if err := tx.QueryRowContext(ctx, `SELECT record FROM fingerprints WHERE id = ?`, id[:]).Scan(&prevState); err != nil && err != sql.ErrNoRows {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE id = ?`, id[:]); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_call_index WHERE fingerprint_id = ?`, id[:]); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if err := s.appendAuditTx(ctx, tx, OpDeleted, []fingerprint.ID{id}, "", "",
		"ingest_compensation", nil, prevState, OutcomeFailure); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	s.cache.Remove(string(id[:]))
	return nil
}

// Get fetches a fingerprint by id. It returns NotFound for tombstoned ids
// unless includeTombstoned is set (Merge and the provenance reader set it).
func (s *Store) Get(ctx context.Context, id fingerprint.ID, includeTombstoned bool) (*fingerprint.Fingerprint, error) {
	if !includeTombstoned {
		tombstoned, err := s.isTombstoned(ctx, id)
		if err != nil {
			return nil, err
		}
		if tombstoned {
			return nil, cerrors.NotFoundError("fingerprint not found")
		}
	}

	if cached, ok := s.cache.Get(string(id[:])); ok {
		var fp fingerprint.Fingerprint
		if err := decodeGob(cached, &fp); err == nil {
			return &fp, nil
		}
	}

	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM fingerprints WHERE id = ?`, id[:]).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, cerrors.NotFoundError("fingerprint not found")
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	var fp fingerprint.Fingerprint
	if err := decodeGob(record, &fp); err != nil {
		return nil, err
	}
	s.cache.Add(string(id[:]), record)
	return &fp, nil
}

// GetContent returns the raw content stored alongside a fingerprint,
// used by Merge to snapshot sources into their reversal envelope.
func (s *Store) GetContent(ctx context.Context, id fingerprint.ID) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM fingerprints WHERE id = ?`, id[:]).Scan(&content)
	if err == sql.ErrNoRows {
		return "", cerrors.NotFoundError("fingerprint not found")
	}
	if err != nil {
		return "", cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return content, nil
}

// RestoreFingerprintFromSnapshot re-stores a fingerprint exactly as
// StoreFingerprint does, but tags the audit record MergeReversed with the
// reversal envelope itself as PreviousState. Used to reverse a merge
// within its envelope's 30-day window after a source was deleted.
func (s *Store) RestoreFingerprintFromSnapshot(ctx context.Context, fp *fingerprint.Fingerprint, content string, operatorID string, envelopeSnapshot []byte) error {
	record, err := encodeGob(*fp)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO fingerprints (id, content, record, content_hash, created_at, updated_at, importance)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fp.ID[:], content, record, fp.ContentHash, fp.CreatedAt.UnixNano(), fp.UpdatedAt.UnixNano(), fp.Importance,
	); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE fingerprint_id = ?`, fp.ID[:]); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if err := s.recordModelVersions(ctx, tx, fp); err != nil {
		return err
	}

	if err := s.appendAuditTx(ctx, tx, OpMergeReversed, []fingerprint.ID{fp.ID}, operatorID, fp.Source.SessionID,
		"reversal_envelope_restore", nil, envelopeSnapshot, OutcomeSuccess); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	s.cache.Add(string(fp.ID[:]), record)
	return nil
}

// GetReversalEnvelope returns the reversal envelope for hash, or NotFound
// if it has no row or its expiry has already passed. Reading an expired
// envelope never deletes it; ReapExpiredReversalEnvelopes owns reclamation.
func (s *Store) GetReversalEnvelope(ctx context.Context, hash string) (*ReversalEnvelope, error) {
	var data []byte
	var expiresAtNanos int64
	err := s.db.QueryRowContext(ctx, `SELECT record, expires_at FROM reversal_envelopes WHERE reversal_hash = ?`, hash).
		Scan(&data, &expiresAtNanos)
	if err == sql.ErrNoRows {
		return nil, cerrors.NotFoundError("no reversal envelope for hash")
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	var env ReversalEnvelope
	if err := decodeGob(data, &env); err != nil {
		return nil, err
	}
	if time.Now().After(env.ExpiresAt) {
		return nil, cerrors.New(cerrors.ErrCodeNotFound, "reversal envelope has expired", nil)
	}
	return &env, nil
}

// ReapExpiredReversalEnvelopes permanently deletes every reversal
// envelope whose 30-day window has closed as of now, mirroring
// internal/lifecycle's tombstone reaper: intended to run on a periodic
// tick owned by the caller. It returns the number of rows reclaimed.
func (s *Store) ReapExpiredReversalEnvelopes(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reversal_envelopes WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return int(n), nil
}

// SoftDelete tombstones id with a 30-day recovery deadline and appends a
// Deleted audit record. It does not touch any index.
func (s *Store) SoftDelete(ctx context.Context, id fingerprint.ID, operatorID, reason string) error {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	var prevState []byte
	if err := tx.QueryRowContext(ctx, `SELECT record FROM fingerprints WHERE id = ?`, id[:]).Scan(&prevState); err != nil && err != sql.ErrNoRows {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	deadline := now.Add(RecoveryWindow)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO tombstones (fingerprint_id, deleted_at, operator, reason, recovery_deadline)
		 VALUES (?, ?, ?, ?, ?)`,
		id[:], now.UnixNano(), operatorID, reason, deadline.UnixNano(),
	); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if err := s.appendAuditTx(ctx, tx, OpDeleted, []fingerprint.ID{id}, operatorID, "", reason, nil, prevState, OutcomeSuccess); err != nil {
		return err
	}

	return commit(tx)
}

// Restore clears a tombstone if its recovery window has not closed, and
// appends a Restored audit record.
func (s *Store) Restore(ctx context.Context, id fingerprint.ID, operatorID string) error {
	now := time.Now()

	var deadlineNanos, deletedAtNanos int64
	var priorOperator, reason string
	err := s.db.QueryRowContext(ctx, `SELECT deleted_at, operator, reason, recovery_deadline FROM tombstones WHERE fingerprint_id = ?`, id[:]).
		Scan(&deletedAtNanos, &priorOperator, &reason, &deadlineNanos)
	if err == sql.ErrNoRows {
		return cerrors.NotFoundError("no tombstone for fingerprint")
	}
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	if now.UnixNano() >= deadlineNanos {
		return cerrors.New(cerrors.ErrCodeNotFound, "recovery window has closed", nil)
	}

	prevState, err := encodeGob(Tombstone{
		FingerprintID:    id,
		DeletedAt:        time.Unix(0, deletedAtNanos),
		OperatorID:       priorOperator,
		Reason:           reason,
		RecoveryDeadline: time.Unix(0, deadlineNanos),
	})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones WHERE fingerprint_id = ?`, id[:]); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	if err := s.appendAuditTx(ctx, tx, OpRestored, []fingerprint.ID{id}, operatorID, "", "", nil, prevState, OutcomeSuccess); err != nil {
		return err
	}
	return commit(tx)
}

// BoostImportance clamps the updated importance to [0,1], persists it,
// and appends to the permanent importance history plus the audit log.
func (s *Store) BoostImportance(ctx context.Context, id fingerprint.ID, delta float64, operatorID, reason string) (old, new float64, err error) {
	fp, err := s.Get(ctx, id, true)
	if err != nil {
		return 0, 0, err
	}

	old = fp.Importance
	new = clamp01(old + delta)

	prevState, err := encodeGob(*fp)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	fp.Importance = new
	fp.UpdatedAt = time.Now()
	record, err := encodeGob(*fp)
	if err != nil {
		return 0, 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE fingerprints SET record = ?, importance = ?, updated_at = ? WHERE id = ?`,
		record, new, fp.UpdatedAt.UnixNano(), id[:],
	); err != nil {
		return 0, 0, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO importance_history (fingerprint_id, ts, old_val, new_val, delta, operator, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id[:], fp.UpdatedAt.UnixNano(), old, new, new-old, operatorID, reason,
	); err != nil {
		return 0, 0, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	if err := s.appendAuditTx(ctx, tx, OpImportanceBoosted, []fingerprint.ID{id}, operatorID, "", reason, nil, prevState, OutcomeSuccess); err != nil {
		return 0, 0, err
	}

	if err := commit(tx); err != nil {
		return 0, 0, err
	}

	s.cache.Add(string(id[:]), record)
	return old, new, nil
}

func (s *Store) isTombstoned(ctx context.Context, id fingerprint.ID) (bool, error) {
	var deadlineNanos int64
	err := s.db.QueryRowContext(ctx, `SELECT recovery_deadline FROM tombstones WHERE fingerprint_id = ?`, id[:]).Scan(&deadlineNanos)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return true, nil
}

func (s *Store) recordModelVersions(ctx context.Context, tx *sql.Tx, fp *fingerprint.Fingerprint) error {
	now := time.Now().UnixNano()
	for idx := range fp.PurposeVector {
		hash := fp.ContentHash // placeholder model-version identity until real embedders are wired
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO model_version_registry (embedder_index, model_version_hash, model_identifier, quantization, first_seen_at)
			 VALUES (?, ?, ?, ?, ?)`,
			idx, hash, "static", "none", now,
		); err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
	}
	return nil
}

func (s *Store) nextAuditKey(ts time.Time) AuditKey {
	var key AuditKey
	binary.BigEndian.PutUint64(key[0:8], uint64(ts.UnixNano()))
	tiebreak := s.auditSeq.Add(1)
	binary.BigEndian.PutUint64(key[8:16], tiebreak)
	return key
}

func (s *Store) appendAuditTx(ctx context.Context, tx *sql.Tx, op Operation, targets []fingerprint.ID, operatorID, sessionID, rationale string, params map[string]string, prevState []byte, outcome Outcome) error {
	now := time.Now()
	rec := AuditRecord{
		Key:           s.nextAuditKey(now),
		Operation:     op,
		TargetIDs:     targets,
		OperatorID:    operatorID,
		SessionID:     sessionID,
		Rationale:     rationale,
		Parameters:    params,
		PreviousState: prevState,
		Outcome:       outcome,
		Timestamp:     now,
	}

	data, err := encodeGob(rec)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO audit_log (akey, ts_nanos, record) VALUES (?, ?, ?)`,
		rec.Key[:], now.UnixNano(), data); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	for _, target := range targets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO audit_by_target (target_id, akey) VALUES (?, ?)`,
			target[:], rec.Key[:]); err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}
	}

	return nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
