// Package ingest implements the atomic embed-all-or-fail path from raw
// content to a fully indexed fingerprint.
package ingest

import (
	"bytes"
	"context"
	"encoding/gob"
	"log/slog"

	"github.com/google/uuid"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/index"
	"github.com/corvidmem/corvid/internal/store"
)

// Pipeline wires the builder, validator, primary store, and per-embedder
// index manager into one atomic operation: a fingerprint is either fully
// built, fully validated, fully stored, and fully indexed across every
// substrate, or none of it is left observable.
type Pipeline struct {
	builder   *fingerprint.Builder
	validator *fingerprint.Validator
	store     *store.Store
	index     *index.Manager
}

// New returns a Pipeline over the given collaborators. builderOpts are
// forwarded to fingerprint.NewBuilder, e.g. fingerprint.WithReference to
// populate PurposeVector against a configured reference.
func New(pool *embedder.Pool, st *store.Store, idx *index.Manager, builderOpts ...fingerprint.BuilderOption) *Pipeline {
	return &Pipeline{
		builder:   fingerprint.NewBuilder(pool, builderOpts...),
		validator: fingerprint.NewValidator(),
		store:     st,
		index:     idx,
	}
}

// IngestRequest carries everything Ingest needs beyond the raw content.
type IngestRequest struct {
	Content    string
	Source     fingerprint.SourceMetadata
	Hint       *embedder.CausalHint
	OperatorID string
	// ToolInvocationID identifies the calling tool invocation in the
	// audit trail. If left empty, Ingest generates one.
	ToolInvocationID string
}

// Ingest builds, validates, persists, and indexes content as one
// fingerprint. On any failure after the primary store commit, it runs a
// compensating delete so the fingerprint is never left stored without
// being indexed, and never left indexed without being stored.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (fingerprint.ID, error) {
	if req.ToolInvocationID == "" {
		req.ToolInvocationID = uuid.NewString()
	}

	fp, err := p.builder.Build(ctx, req.Content, req.Source, req.Hint)
	if err != nil {
		return fingerprint.ID{}, cerrors.IngestFailure("build fingerprint", err)
	}
	fp.Source.OperatorID = req.OperatorID
	fp.Source.ToolInvocationID = req.ToolInvocationID

	if err := p.validator.ValidateStrict(fp); err != nil {
		return fingerprint.ID{}, err
	}

	if err := p.store.StoreFingerprint(ctx, fp, req.Content, req.OperatorID, req.ToolInvocationID); err != nil {
		return fingerprint.ID{}, err
	}

	if err := p.index.Insert(fp); err != nil {
		p.compensate(ctx, fp.ID)
		return fingerprint.ID{}, cerrors.IngestFailure("index fingerprint", err)
	}

	return fp.ID, nil
}

// RestoreFromReversal reverses a merge within its envelope's 30-day
// window: every source fingerprint the envelope recorded that is no
// longer present in the primary store is re-stored from its snapshot and
// re-inserted into every ANN substrate it originally populated. Sources
// that were never deleted (the common case — Merge does not itself
// remove its sources) are left untouched. It returns the ids actually
// restored.
func (p *Pipeline) RestoreFromReversal(ctx context.Context, reversalHash, operatorID string) ([]fingerprint.ID, error) {
	envelope, err := p.store.GetReversalEnvelope(ctx, reversalHash)
	if err != nil {
		return nil, err
	}

	var envelopeBuf bytes.Buffer
	if err := gob.NewEncoder(&envelopeBuf).Encode(*envelope); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeCorruption, err)
	}
	envelopeData := envelopeBuf.Bytes()

	var restored []fingerprint.ID
	for _, src := range envelope.Sources {
		if _, err := p.store.Get(ctx, src.ID, true); err == nil {
			continue // still present, nothing to reverse for this source
		}

		content := envelope.Contents[src.ID]
		if err := p.store.RestoreFingerprintFromSnapshot(ctx, src, content, operatorID, envelopeData); err != nil {
			return restored, cerrors.IngestFailure("restore fingerprint from reversal envelope", err)
		}
		if err := p.index.Insert(src); err != nil {
			return restored, cerrors.IngestFailure("reindex fingerprint from reversal envelope", err)
		}
		restored = append(restored, src.ID)
	}

	return restored, nil
}

// compensate undoes a committed StoreFingerprint after a downstream index
// failure: it removes whatever substrates did get populated, then hard-
// deletes the primary store row. The delete's own audit record
// (Outcome=Failure) is the permanent trace of the aborted ingest.
func (p *Pipeline) compensate(ctx context.Context, id fingerprint.ID) {
	p.index.Remove(id)
	if err := p.store.Delete(ctx, id); err != nil {
		// Best-effort: the primary store row is now inconsistent with the
		// index, and a caller concerned with strict atomicity must re-run
		// reconciliation. There is no further fallback within one request.
		slog.Error("compensating delete failed after index insert failure", "fingerprint_id", id, "error", err)
	}
}
