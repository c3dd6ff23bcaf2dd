package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidmem/corvid/internal/fingerprint"
)

func idFor(b byte) fingerprint.ID {
	var id fingerprint.ID
	id[0] = b
	return id
}

func TestDenseIndex_InsertAndSearch_ReturnsNearestFirst(t *testing.T) {
	d := NewDenseIndex(3)

	require.NoError(t, d.Insert(idFor(1), []float32{1, 0, 0}))
	require.NoError(t, d.Insert(idFor(2), []float32{0, 1, 0}))
	require.NoError(t, d.Insert(idFor(3), []float32{0.9, 0.1, 0}))

	results, err := d.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, idFor(1), results[0].ID)
	assert.Equal(t, 1, results[0].Rank)
}

func TestDenseIndex_Insert_RejectsDimensionMismatch(t *testing.T) {
	d := NewDenseIndex(3)
	err := d.Insert(idFor(1), []float32{1, 0})
	assert.Error(t, err)
}

func TestDenseIndex_Remove_ExcludesFromSearch(t *testing.T) {
	d := NewDenseIndex(2)
	require.NoError(t, d.Insert(idFor(1), []float32{1, 0}))
	require.NoError(t, d.Insert(idFor(2), []float32{0, 1}))

	d.Remove(idFor(1))

	results, err := d.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	for _, c := range results {
		assert.NotEqual(t, idFor(1), c.ID)
	}
}

func TestDenseIndex_Stats_TracksOrphansAfterUpdate(t *testing.T) {
	d := NewDenseIndex(2)
	require.NoError(t, d.Insert(idFor(1), []float32{1, 0}))
	require.NoError(t, d.Insert(idFor(1), []float32{0, 1})) // re-insert orphans the old node

	stats := d.Stats()
	assert.Equal(t, 1, stats.LiveIDs)
	assert.Equal(t, 2, stats.TotalNodes)
	assert.Greater(t, stats.OrphanRatio(), 0.0)
}

func TestDenseIndex_Rebuild_ClearsGhosts(t *testing.T) {
	d := NewDenseIndex(2)
	require.NoError(t, d.Insert(idFor(1), []float32{1, 0}))
	d.Remove(idFor(1))
	require.NoError(t, d.Insert(idFor(2), []float32{0, 1}))

	err := d.Rebuild(func() (map[fingerprint.ID][]float32, error) {
		return map[fingerprint.ID][]float32{idFor(2): {0, 1}}, nil
	})
	require.NoError(t, err)

	stats := d.Stats()
	assert.Equal(t, 1, stats.LiveIDs)
	assert.Equal(t, 1, stats.TotalNodes)
}
