package fingerprint

import (
	"fmt"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
)

// Validator enforces the strict-commit invariant: a fingerprint with
// fewer than thirteen embeddings, or with any all-zero embedding,
// cannot be committed.
type Validator struct{}

// NewValidator returns a Validator. It holds no state; every embedder's
// declared shape and dimension come from the package-level Registry.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateStrict enforces: all declared slots present, dense vectors
// non-zero and of their declared dimension, sparse maps non-empty,
// token-level embeddings with at least one token vector.
func (v *Validator) ValidateStrict(fp *Fingerprint) error {
	if fp == nil {
		return cerrors.New(cerrors.ErrCodeValidationFailed, "fingerprint is nil", nil)
	}

	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			emb, ok := fp.Get(slot)
			if !ok {
				return cerrors.New(cerrors.ErrCodeValidationFailed,
					fmt.Sprintf("missing embedder %s", slot), nil).
					WithEmbedder(int(spec.Index)).
					WithDetail("slot", slot.String())
			}
			if err := validateShape(spec, slot, emb); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateShape(spec embedder.Spec, slot embedder.Slot, emb Embedding) error {
	switch spec.Shape {
	case embedder.ShapeDense:
		if len(emb.Dense) != spec.Dimension {
			return cerrors.New(cerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("%s: expected dimension %d, got %d", slot, spec.Dimension, len(emb.Dense)), nil).
				WithEmbedder(int(spec.Index)).
				WithDetail("slot", slot.String())
		}
		if emb.IsZero(spec.Shape) {
			return cerrors.New(cerrors.ErrCodeValidationFailed,
				fmt.Sprintf("%s: all-zero embedding", slot), nil).
				WithEmbedder(int(spec.Index)).
				WithDetail("slot", slot.String())
		}
	case embedder.ShapeSparse:
		if emb.IsZero(spec.Shape) {
			return cerrors.New(cerrors.ErrCodeValidationFailed,
				fmt.Sprintf("%s: empty sparse embedding", slot), nil).
				WithEmbedder(int(spec.Index)).
				WithDetail("slot", slot.String())
		}
	case embedder.ShapeToken:
		if emb.IsZero(spec.Shape) {
			return cerrors.New(cerrors.ErrCodeValidationFailed,
				fmt.Sprintf("%s: no token vectors", slot), nil).
				WithEmbedder(int(spec.Index)).
				WithDetail("slot", slot.String())
		}
	}
	return nil
}
