package index

import (
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

// Manager owns one substrate per embedder slot: a DenseIndex for each
// dense slot (including each asymmetric variant and the E1 matryoshka
// auxiliary), a SparseIndex for E6/E13, and a TokenIndex for E12.
type Manager struct {
	dense   map[string]*DenseIndex
	sparse  map[string]*SparseIndex
	token   *TokenIndex
	matry   *DenseIndex
	compare *Comparator
}

// NewManager builds substrates for every slot in embedder.Registry, plus
// the E1 matryoshka auxiliary filter.
func NewManager() (*Manager, error) {
	m := &Manager{
		dense:   make(map[string]*DenseIndex),
		sparse:  make(map[string]*SparseIndex),
		compare: NewComparator(),
	}

	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			switch spec.Shape {
			case embedder.ShapeDense:
				m.dense[slot.String()] = NewDenseIndex(spec.Dimension)
			case embedder.ShapeSparse:
				idx, err := NewSparseIndex("")
				if err != nil {
					return nil, err
				}
				m.sparse[slot.String()] = idx
			case embedder.ShapeToken:
				m.token = NewTokenIndex()
			}
		}
	}

	m.matry = NewDenseIndex(embedder.MatryoshkaDimension)

	return m, nil
}

// Insert fans a fingerprint's embeddings out to every applicable
// substrate. Callers (internal/ingest) are responsible for compensating
// on partial failure; Insert itself stops at the first error.
func (m *Manager) Insert(fp *fingerprint.Fingerprint) error {
	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			emb, ok := fp.Get(slot)
			if !ok {
				continue
			}
			switch spec.Shape {
			case embedder.ShapeDense:
				if err := m.dense[slot.String()].Insert(fp.ID, emb.Dense); err != nil {
					return err
				}
			case embedder.ShapeSparse:
				if err := m.sparse[slot.String()].Insert(fp.ID, emb.Sparse); err != nil {
					return err
				}
			case embedder.ShapeToken:
				m.token.Insert(fp.ID, emb.Tokens)
			}
		}
	}

	if len(fp.Matryoshka128) > 0 {
		if err := m.matry.Insert(fp.ID, fp.Matryoshka128); err != nil {
			return err
		}
	}

	return nil
}

// Remove removes id from every substrate it may appear in.
func (m *Manager) Remove(id fingerprint.ID) {
	for _, d := range m.dense {
		d.Remove(id)
	}
	for _, s := range m.sparse {
		_ = s.Remove(id)
	}
	if m.token != nil {
		m.token.Remove(id)
	}
	m.matry.Remove(id)
}

// DenseSlot returns the DenseIndex for slot, or nil if the slot has no
// dense substrate (it is sparse, token-level, or unknown).
func (m *Manager) DenseSlot(slot embedder.Slot) *DenseIndex {
	return m.dense[slot.String()]
}

// SparseSlot returns the SparseIndex for slot, or nil if unavailable.
func (m *Manager) SparseSlot(slot embedder.Slot) *SparseIndex {
	return m.sparse[slot.String()]
}

// Token returns the shared E12 TokenIndex.
func (m *Manager) Token() *TokenIndex {
	return m.token
}

// Matryoshka returns the E1 auxiliary stage-2 filter index.
func (m *Manager) Matryoshka() *DenseIndex {
	return m.matry
}

// RequireVectorMetric delegates to the Comparator, rejecting vector
// queries against sparse embedders.
func (m *Manager) RequireVectorMetric(spec embedder.Spec) error {
	return m.compare.RequireVectorMetric(spec)
}

// DegradedSlots reports which declared dense/sparse slots have no
// constructed substrate (should not normally occur, but callers use this
// to populate degraded_embedders field defensively).
func (m *Manager) DegradedSlots() []embedder.Slot {
	var degraded []embedder.Slot
	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			switch spec.Shape {
			case embedder.ShapeDense:
				if m.dense[slot.String()] == nil {
					degraded = append(degraded, slot)
				}
			case embedder.ShapeSparse:
				if m.sparse[slot.String()] == nil {
					degraded = append(degraded, slot)
				}
			case embedder.ShapeToken:
				if m.token == nil {
					degraded = append(degraded, slot)
				}
			}
		}
	}
	return degraded
}

// CompactionCandidates reports which dense slots have an orphan ratio
// above CompactionThreshold and so are due for a lazy-delete rebuild.
func (m *Manager) CompactionCandidates() []embedder.Slot {
	var candidates []embedder.Slot
	for _, spec := range embedder.Registry {
		if spec.Shape != embedder.ShapeDense {
			continue
		}
		for _, slot := range spec.Slots() {
			if d := m.dense[slot.String()]; d != nil && d.NeedsCompaction() {
				candidates = append(candidates, slot)
			}
		}
	}
	if m.matry.NeedsCompaction() {
		candidates = append(candidates, embedder.Slot{Index: embedder.E1, Variant: embedder.VariantNone})
	}
	return candidates
}

// Close releases every substrate's resources.
func (m *Manager) Close() error {
	var firstErr error
	for _, d := range m.dense {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, s := range m.sparse {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.matry.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
