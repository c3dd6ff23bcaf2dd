package store

import (
	"context"
	"time"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// PutConsolidationRecommendation persists a candidate pair for merge
// review. It is the only expiring provenance artifact.
func (s *Store) PutConsolidationRecommendation(ctx context.Context, rec ConsolidationRecommendation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO consolidation_recommendations
		 (id, fingerprint_a, fingerprint_b, score, state, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID[:], rec.FingerprintA[:], rec.FingerprintB[:], rec.Score, string(rec.State),
		rec.CreatedAt.UnixNano(), rec.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return nil
}

// ListConsolidationRecommendations returns recommendations in the given
// state, automatically treating (but not persisting the transition of)
// any past-expiry Pending row as Expired.
func (s *Store) ListConsolidationRecommendations(ctx context.Context, state RecommendationState) ([]ConsolidationRecommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint_a, fingerprint_b, score, state, created_at, expires_at
		 FROM consolidation_recommendations`)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer rows.Close()

	now := time.Now()
	var out []ConsolidationRecommendation
	for rows.Next() {
		var idB, aB, bB []byte
		var stateStr string
		var createdAt, expiresAt int64
		var score float64
		if err := rows.Scan(&idB, &aB, &bB, &score, &stateStr, &createdAt, &expiresAt); err != nil {
			return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
		}

		rec := ConsolidationRecommendation{
			Score:     score,
			State:     RecommendationState(stateStr),
			CreatedAt: time.Unix(0, createdAt),
			ExpiresAt: time.Unix(0, expiresAt),
		}
		copy(rec.ID[:], idB)
		copy(rec.FingerprintA[:], aB)
		copy(rec.FingerprintB[:], bB)

		if rec.State == RecommendationPending && now.After(rec.ExpiresAt) {
			rec.State = RecommendationExpired
		}
		if rec.State == state {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SetConsolidationState transitions a recommendation's state (e.g. to
// Accepted before the caller invokes Merge).
func (s *Store) SetConsolidationState(ctx context.Context, id fingerprint.ID, state RecommendationState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE consolidation_recommendations SET state = ? WHERE id = ?`, string(state), id[:])
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	if n == 0 {
		return cerrors.NotFoundError("consolidation recommendation not found")
	}
	return nil
}
