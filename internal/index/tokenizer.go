package index

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

// termTokenizerConstructor builds the tokenizer used for sparse-index
// postings. Unlike the free-text code tokenizer, sparse embedder output
// already arrives as discrete terms (weightedPseudoText just repeats
// them), so this tokenizer only needs to split on whitespace.
func termTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &whitespaceTermTokenizer{}, nil
}

type whitespaceTermTokenizer struct{}

func (t *whitespaceTermTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	fields := strings.Fields(text)

	stream := make(analysis.TokenStream, 0, len(fields))
	offset := 0
	pos := 1
	for _, term := range fields {
		start := strings.Index(text[offset:], term)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(term)
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
		pos++
	}
	return stream
}

// termStopFilterConstructor builds a no-op stop filter: sparse embedder
// terms are already curated by the embedder, so unlike the code-search
// analyzer there is no generic English stop-word list to apply here.
func termStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &passthroughFilter{}, nil
}

type passthroughFilter struct{}

func (f *passthroughFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	return input
}
