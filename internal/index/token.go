package index

import (
	"math"
	"sort"
	"sync"

	"github.com/corvidmem/corvid/internal/fingerprint"
)

// TokenIndex stores per-fingerprint token-vector sequences for E12 and
// answers MaxSim queries: for each query token, the max cosine over a
// document's tokens, summed across query tokens.
type TokenIndex struct {
	mu   sync.RWMutex
	docs map[fingerprint.ID][][]float32
}

// NewTokenIndex returns an empty TokenIndex.
func NewTokenIndex() *TokenIndex {
	return &TokenIndex{docs: make(map[fingerprint.ID][][]float32)}
}

// Insert stores (or replaces) the token vectors for id.
func (t *TokenIndex) Insert(id fingerprint.ID, tokens [][]float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[id] = tokens
}

// Remove deletes id's token vectors.
func (t *TokenIndex) Remove(id fingerprint.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.docs, id)
}

// Search scores every stored document against queryTokens via MaxSim and
// returns the top k, ranked 1-based.
func (t *TokenIndex) Search(queryTokens [][]float32, k int) []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type scored struct {
		id    fingerprint.ID
		score float64
	}
	all := make([]scored, 0, len(t.docs))
	for id, docTokens := range t.docs {
		all = append(all, scored{id: id, score: maxSim(queryTokens, docTokens)})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return lessID(all[i].id, all[j].id)
	})

	if k > 0 && len(all) > k {
		all = all[:k]
	}

	candidates := make([]Candidate, len(all))
	for i, s := range all {
		candidates[i] = Candidate{ID: s.id, Rank: i + 1, RawScore: s.score}
	}
	return candidates
}

// maxSim computes sum over query tokens of the max cosine similarity
// against any document token.
func maxSim(query, doc [][]float32) float64 {
	if len(doc) == 0 {
		return 0
	}
	var total float64
	for _, q := range query {
		best := -1.0
		for _, d := range doc {
			if sim := cosine(q, d); sim > best {
				best = sim
			}
		}
		if best > -1.0 {
			total += best
		}
	}
	return total
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func lessID(a, b fingerprint.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
