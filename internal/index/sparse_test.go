package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseIndex_InsertAndSearch_FindsMatchingPosting(t *testing.T) {
	s, err := NewSparseIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert(idFor(1), map[string]float32{"cache": 0.9, "database": 0.4}))
	require.NoError(t, s.Insert(idFor(2), map[string]float32{"middleware": 0.8}))

	results, err := s.Search(map[string]float32{"cache": 1.0}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, idFor(1), results[0].ID)
}

func TestSparseIndex_Remove_DropsPosting(t *testing.T) {
	s, err := NewSparseIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Insert(idFor(1), map[string]float32{"token": 1.0}))
	require.NoError(t, s.Remove(idFor(1)))

	results, err := s.Search(map[string]float32{"token": 1.0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSparseIndex_Insert_RejectsEmptyTerms(t *testing.T) {
	s, err := NewSparseIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	err = s.Insert(idFor(1), map[string]float32{})
	assert.Error(t, err)
}
