package index

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/fingerprint"
)

const (
	termTokenizerName = "corvid_term_tokenizer"
	termStopFilter    = "corvid_term_stop"
	termAnalyzerName  = "corvid_term_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(termTokenizerName, termTokenizerConstructor)
	_ = registry.RegisterTokenFilter(termStopFilter, termStopFilterConstructor)
}

// sparseDocument is the bleve document shape for a posting. Terms is a
// pre-weighted pseudo-text: each term repeated proportionally to its
// embedder-assigned weight, so bleve's own term-frequency scoring
// reflects the sparse embedder's weights without a custom scorer.
type sparseDocument struct {
	Terms string `json:"terms"`
}

// SparseIndex wraps a bleve.Index as the posting-list substrate for a
// sparse embedder (E6, E13). Posting-list mutations are serialized by a
// single mutex, matching "batch-read all affected
// postings, apply all mutations, commit in one batch, release the lock".
type SparseIndex struct {
	mu     sync.Mutex
	index  bleve.Index
	closed bool
}

// NewSparseIndex creates a bleve index using the whitespace term analyzer:
// in memory when path is empty (an ephemeral, test index), otherwise opened
// at path, or created there if it does not exist.
func NewSparseIndex(path string) (*SparseIndex, error) {
	im, err := sparseIndexMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	return &SparseIndex{index: idx}, nil
}

func sparseIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(termAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": termTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			termStopFilter,
		},
	}); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = termAnalyzerName
	return im, nil
}

// weightedPseudoText renders term weights as repeated-term text so bleve's
// TF-scored match query approximates weighted dot-product ranking.
// Weights are quantized to an integer repeat count in [1,32].
func weightedPseudoText(terms map[string]float32) string {
	var b strings.Builder
	for term, weight := range terms {
		reps := int(weight*8) + 1
		if reps > 32 {
			reps = 32
		}
		if reps < 1 {
			reps = 1
		}
		for i := 0; i < reps; i++ {
			b.WriteString(term)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Insert adds or replaces the posting for id.
func (s *SparseIndex) Insert(id fingerprint.ID, terms map[string]float32) error {
	if len(terms) == 0 {
		return cerrors.New(cerrors.ErrCodeValidationFailed, "empty sparse posting", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cerrors.New(cerrors.ErrCodeInternal, "sparse index is closed", nil)
	}

	doc := sparseDocument{Terms: weightedPseudoText(terms)}
	if err := s.index.Index(idKey(id), doc); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}
	return nil
}

// Remove deletes the posting for id.
func (s *SparseIndex) Remove(id fingerprint.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.index.Delete(idKey(id))
}

// Search scores documents against the query terms, accumulating term
// weights into a single match-query string.
func (s *SparseIndex) Search(terms map[string]float32, k int) ([]Candidate, error) {
	s.mu.Lock()
	idx := s.index
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "sparse index is closed", nil)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	query := bleve.NewMatchQuery(weightedPseudoText(terms))
	query.SetField("terms")

	req := bleve.NewSearchRequest(query)
	req.Size = k

	result, err := idx.Search(req)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStorageFailure, err)
	}

	candidates := make([]Candidate, 0, len(result.Hits))
	for rank, hit := range result.Hits {
		id, err := parseIDKey(hit.ID)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{ID: id, Rank: rank + 1, RawScore: hit.Score})
	}
	return candidates, nil
}

// Close releases the underlying bleve index.
func (s *SparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

func idKey(id fingerprint.ID) string {
	return fmt.Sprintf("%x", id[:])
}

func parseIDKey(key string) (fingerprint.ID, error) {
	var id fingerprint.ID
	if len(key) != len(id)*2 {
		return id, cerrors.New(cerrors.ErrCodeCorruption, "malformed sparse index key", nil)
	}
	for i := range id {
		v, err := strconv.ParseUint(key[i*2:i*2+2], 16, 8)
		if err != nil {
			return id, cerrors.Wrap(cerrors.ErrCodeCorruption, err)
		}
		id[i] = byte(v)
	}
	return id, nil
}
