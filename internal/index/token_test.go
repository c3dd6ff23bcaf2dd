package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenIndex_Search_RanksMaxSimHighest(t *testing.T) {
	tok := NewTokenIndex()

	tok.Insert(idFor(1), [][]float32{{1, 0}, {0, 1}})
	tok.Insert(idFor(2), [][]float32{{0, 1}})

	query := [][]float32{{1, 0}, {0, 1}}
	results := tok.Search(query, 2)

	assert.Len(t, results, 2)
	assert.Equal(t, idFor(1), results[0].ID)
	assert.Greater(t, results[0].RawScore, results[1].RawScore)
}

func TestTokenIndex_Remove_ExcludesDocument(t *testing.T) {
	tok := NewTokenIndex()
	tok.Insert(idFor(1), [][]float32{{1, 0}})
	tok.Remove(idFor(1))

	results := tok.Search([][]float32{{1, 0}}, 5)
	assert.Empty(t, results)
}

func TestMaxSim_EmptyDocumentScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, maxSim([][]float32{{1, 0}}, nil))
}
