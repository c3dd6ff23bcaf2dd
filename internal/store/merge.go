package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// MergeStrategy selects how source fingerprints combine into one
// .
type MergeStrategy string

const (
	MergeUnion           MergeStrategy = "union"
	MergeIntersection    MergeStrategy = "intersection"
	MergeWeightedAverage MergeStrategy = "weighted_average"
)

// Merge fetches every source fingerprint, computes a merged fingerprint
// per strategy, stores it via StoreFingerprint with derivation provenance
// set, and records a permanent merge record plus a 30-day reversal
// envelope.
func (s *Store) Merge(ctx context.Context, ids []fingerprint.ID, strategy MergeStrategy, operatorID, rationale string) (fingerprint.ID, error) {
	if len(ids) < 2 {
		return fingerprint.ID{}, cerrors.New(cerrors.ErrCodeInvalidInput, "merge requires at least two source ids", nil)
	}

	sources := make([]*fingerprint.Fingerprint, 0, len(ids))
	contents := make(map[fingerprint.ID]string, len(ids))
	for _, id := range ids {
		fp, err := s.Get(ctx, id, true)
		if err != nil {
			return fingerprint.ID{}, err
		}
		sources = append(sources, fp)
		content, err := s.GetContent(ctx, id)
		if err != nil {
			return fingerprint.ID{}, err
		}
		contents[id] = content
	}

	merged, err := mergeFingerprints(sources, strategy)
	if err != nil {
		return fingerprint.ID{}, err
	}
	merged.Source.DerivedFrom = ids
	merged.Source.DerivationMethod = fmt.Sprintf("merge:%s", strategy)

	if err := s.StoreFingerprint(ctx, merged, "", operatorID, ""); err != nil {
		return fingerprint.ID{}, err
	}

	reversalHash := reversalHashFor(merged.ID, ids)
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fingerprint.ID{}, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	defer tx.Rollback()

	mergeRec := MergeRecord{
		MergedID:     merged.ID,
		SourceIDs:    ids,
		Strategy:     strategy,
		Rationale:    rationale,
		OperatorID:   operatorID,
		ReversalHash: reversalHash,
		CreatedAt:    now,
	}
	mergeData, err := encodeGob(mergeRec)
	if err != nil {
		return fingerprint.ID{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO merge_history (merged_id, record, created_at) VALUES (?, ?, ?)`,
		merged.ID[:], mergeData, now.UnixNano()); err != nil {
		return fingerprint.ID{}, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	envelope := ReversalEnvelope{
		ReversalHash: reversalHash,
		MergedID:     merged.ID,
		Sources:      sources,
		Contents:     contents,
		ExpiresAt:    now.Add(ReversalWindow),
	}
	envData, err := encodeGob(envelope)
	if err != nil {
		return fingerprint.ID{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO reversal_envelopes (reversal_hash, merged_id, record, expires_at) VALUES (?, ?, ?, ?)`,
		reversalHash, merged.ID[:], envData, envelope.ExpiresAt.UnixNano()); err != nil {
		return fingerprint.ID{}, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	prevState, err := encodeGob(sources)
	if err != nil {
		return fingerprint.ID{}, err
	}

	if err := s.appendAuditTx(ctx, tx, OpMerged, append(append([]fingerprint.ID{}, ids...), merged.ID), operatorID, "", rationale, nil, prevState, OutcomeSuccess); err != nil {
		return fingerprint.ID{}, err
	}

	if err := commit(tx); err != nil {
		return fingerprint.ID{}, err
	}

	return merged.ID, nil
}

// GetMergeHistory returns the merge record for id, if any, from the
// merge_history table. provenance.GetMergeHistory wraps this and adds the
// direct sources that are still present; neither follows derived_from
// chains past those direct sources.
func (s *Store) GetMergeHistory(ctx context.Context, id fingerprint.ID) (*MergeRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM merge_history WHERE merged_id = ?`, id[:]).Scan(&data)
	if err != nil {
		return nil, nil //nolint:nilnil // absence of a merge record is not an error
	}
	var rec MergeRecord
	if err := decodeGob(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func reversalHashFor(mergedID fingerprint.ID, sources []fingerprint.ID) string {
	h := sha256.New()
	h.Write(mergedID[:])
	for _, id := range sources {
		h.Write(id[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func mergeFingerprints(sources []*fingerprint.Fingerprint, strategy MergeStrategy) (*fingerprint.Fingerprint, error) {
	merged := &fingerprint.Fingerprint{
		Embeddings:  make(map[string]fingerprint.Embedding),
		ContentHash: sources[0].ContentHash,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Source:      sources[0].Source,
	}

	totalImportance := 0.0
	for _, src := range sources {
		totalImportance += src.Importance
	}

	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			embeddings := make([]fingerprint.Embedding, 0, len(sources))
			weights := make([]float64, 0, len(sources))
			for _, src := range sources {
				e, ok := src.Get(slot)
				if !ok {
					continue
				}
				embeddings = append(embeddings, e)
				if totalImportance > 0 {
					weights = append(weights, src.Importance/totalImportance)
				} else {
					weights = append(weights, 1.0/float64(len(sources)))
				}
			}
			if len(embeddings) == 0 {
				continue
			}

			merged.Embeddings[slot.String()] = mergeSlot(spec, slot, embeddings, weights, strategy)
		}
	}

	merged.Importance = clamp01(totalImportance / float64(len(sources)))
	merged.ID = deriveMergedID(sources)

	return merged, nil
}

func mergeSlot(spec embedder.Spec, slot embedder.Slot, embeddings []fingerprint.Embedding, weights []float64, strategy MergeStrategy) fingerprint.Embedding {
	switch spec.Shape {
	case embedder.ShapeDense:
		return fingerprint.Embedding{Slot: slot, Dense: mergeDense(embeddings, weights, strategy)}
	case embedder.ShapeSparse:
		return fingerprint.Embedding{Slot: slot, Sparse: mergeSparse(embeddings, strategy)}
	case embedder.ShapeToken:
		// Token sequences don't merge element-wise; the first source's
		// tokens stand in, matching preference for a simple,
		// auditable default over an ambiguous token-alignment algorithm.
		return fingerprint.Embedding{Slot: slot, Tokens: embeddings[0].Tokens}
	default:
		return fingerprint.Embedding{Slot: slot}
	}
}

func mergeDense(embeddings []fingerprint.Embedding, weights []float64, strategy MergeStrategy) []float32 {
	dim := len(embeddings[0].Dense)
	out := make([]float32, dim)

	switch strategy {
	case MergeUnion:
		for _, e := range embeddings {
			for i, v := range e.Dense {
				if v > out[i] {
					out[i] = v
				}
			}
		}
	case MergeIntersection:
		for i := range out {
			out[i] = embeddings[0].Dense[i]
		}
		for _, e := range embeddings[1:] {
			for i, v := range e.Dense {
				if v < out[i] {
					out[i] = v
				}
			}
		}
	default: // weighted_average
		for ei, e := range embeddings {
			w := float32(weights[ei])
			for i, v := range e.Dense {
				out[i] += v * w
			}
		}
	}

	return out
}

func mergeSparse(embeddings []fingerprint.Embedding, strategy MergeStrategy) map[string]float32 {
	switch strategy {
	case MergeUnion:
		out := make(map[string]float32)
		for _, e := range embeddings {
			for term, w := range e.Sparse {
				if w > out[term] {
					out[term] = w
				}
			}
		}
		return out
	case MergeIntersection:
		counts := make(map[string]int)
		mins := make(map[string]float32)
		for _, e := range embeddings {
			for term, w := range e.Sparse {
				counts[term]++
				if cur, ok := mins[term]; !ok || w < cur {
					mins[term] = w
				}
			}
		}
		out := make(map[string]float32)
		for term, c := range counts {
			if c == len(embeddings) {
				out[term] = mins[term]
			}
		}
		return out
	default: // weighted_average: sum then L1-normalize
		sums := make(map[string]float32)
		for _, e := range embeddings {
			for term, w := range e.Sparse {
				sums[term] += w
			}
		}
		var total float32
		for _, w := range sums {
			total += w
		}
		if total == 0 {
			return sums
		}
		out := make(map[string]float32, len(sums))
		for term, w := range sums {
			out[term] = w / total
		}
		return out
	}
}

func deriveMergedID(sources []*fingerprint.Fingerprint) fingerprint.ID {
	h := sha256.New()
	for _, src := range sources {
		h.Write(src.ID[:])
	}
	h.Write([]byte(time.Now().String()))
	sum := h.Sum(nil)
	var id fingerprint.ID
	copy(id[:], sum[:16])
	return id
}
