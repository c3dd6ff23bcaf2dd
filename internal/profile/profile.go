// Package profile holds named and custom weight vectors over the
// thirteen-embedder roster, the generalization of fixed
// BM25/Semantic Weights pair to a full retrieval profile.
package profile

import (
	"fmt"
	"math"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/embedder"
)

// Weights is a validated weight vector over the thirteen embedders, the
// direct analog of search.Weights{BM25, Semantic} widened
// from two named fields to one value per embedder.Index.
type Weights [embedder.NumEmbedders]float64

// sumTolerance matches float-comparison tolerances
// elsewhere (e.g. merge weighted-average normalization).
const sumTolerance = 0.01

// Validate checks that every weight is in [0,1] and the vector sums to
// 1.0 within tolerance.
func (w Weights) Validate() error {
	var sum float64
	for i, v := range w {
		if v < 0 || v > 1 {
			return cerrors.ValidationError(
				fmt.Sprintf("weight for %s out of range [0,1]: %v", embedder.Index(i), v), nil)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > sumTolerance {
		return cerrors.ValidationError(
			fmt.Sprintf("profile weights must sum to 1.0 (±%.2f), got %.4f", sumTolerance, sum), nil)
	}
	return nil
}

// Name identifies one of the built-in retrieval profiles.
type Name string

const (
	SemanticSearch     Name = "semantic_search"
	CausalReasoning    Name = "causal_reasoning"
	CodeSearch         Name = "code_search"
	TemporalNavigation Name = "temporal_navigation"
	FactChecking       Name = "fact_checking"
	IntentSearch       Name = "intent_search"
	TypoTolerant       Name = "typo_tolerant"
)

// builtins maps each named profile to a fixed, pre-validated weight
// vector. Weights are hand-tuned to emphasize the embedders each
// profile's name implies; every row must satisfy Weights.Validate.
//
// Index order: E1 semantic, E2 structural, E3 entity, E4 temporal,
// E5 causal, E6 keyword, E7 language, E8 relational, E9 affective,
// E10 paraphrase, E11 domain, E12 token, E13 expansion.
var builtins = map[Name]Weights{
	SemanticSearch: {
		embedder.E1: 0.40, embedder.E2: 0.10, embedder.E3: 0.05, embedder.E4: 0.00,
		embedder.E5: 0.00, embedder.E6: 0.10, embedder.E7: 0.05, embedder.E8: 0.00,
		embedder.E9: 0.05, embedder.E10: 0.15, embedder.E11: 0.10, embedder.E12: 0.00, embedder.E13: 0.00,
	},
	CausalReasoning: {
		embedder.E1: 0.10, embedder.E2: 0.05, embedder.E3: 0.05, embedder.E4: 0.05,
		embedder.E5: 0.45, embedder.E6: 0.05, embedder.E7: 0.00, embedder.E8: 0.15,
		embedder.E9: 0.00, embedder.E10: 0.05, embedder.E11: 0.05, embedder.E12: 0.00, embedder.E13: 0.00,
	},
	CodeSearch: {
		embedder.E1: 0.10, embedder.E2: 0.30, embedder.E3: 0.10, embedder.E4: 0.00,
		embedder.E5: 0.00, embedder.E6: 0.15, embedder.E7: 0.05, embedder.E8: 0.00,
		embedder.E9: 0.00, embedder.E10: 0.05, embedder.E11: 0.20, embedder.E12: 0.05, embedder.E13: 0.00,
	},
	TemporalNavigation: {
		embedder.E1: 0.15, embedder.E2: 0.00, embedder.E3: 0.10, embedder.E4: 0.45,
		embedder.E5: 0.10, embedder.E6: 0.05, embedder.E7: 0.00, embedder.E8: 0.05,
		embedder.E9: 0.00, embedder.E10: 0.00, embedder.E11: 0.10, embedder.E12: 0.00, embedder.E13: 0.00,
	},
	FactChecking: {
		embedder.E1: 0.15, embedder.E2: 0.05, embedder.E3: 0.20, embedder.E4: 0.05,
		embedder.E5: 0.05, embedder.E6: 0.20, embedder.E7: 0.00, embedder.E8: 0.15,
		embedder.E9: 0.00, embedder.E10: 0.05, embedder.E11: 0.10, embedder.E12: 0.00, embedder.E13: 0.00,
	},
	IntentSearch: {
		embedder.E1: 0.20, embedder.E2: 0.00, embedder.E3: 0.00, embedder.E4: 0.00,
		embedder.E5: 0.05, embedder.E6: 0.05, embedder.E7: 0.10, embedder.E8: 0.00,
		embedder.E9: 0.25, embedder.E10: 0.25, embedder.E11: 0.05, embedder.E12: 0.00, embedder.E13: 0.05,
	},
	TypoTolerant: {
		embedder.E1: 0.15, embedder.E2: 0.05, embedder.E3: 0.05, embedder.E4: 0.00,
		embedder.E5: 0.00, embedder.E6: 0.10, embedder.E7: 0.00, embedder.E8: 0.00,
		embedder.E9: 0.00, embedder.E10: 0.10, embedder.E11: 0.05, embedder.E12: 0.45, embedder.E13: 0.05,
	},
}

func init() {
	for name, w := range builtins {
		if err := w.Validate(); err != nil {
			panic(fmt.Sprintf("profile: built-in %q fails validation: %v", name, err))
		}
	}
}

// Lookup returns the weight vector for a built-in profile name.
func Lookup(name Name) (Weights, bool) {
	w, ok := builtins[name]
	return w, ok
}

// Names returns every built-in profile name, in the fixed order they're
// declared in .
func Names() []Name {
	return []Name{
		SemanticSearch, CausalReasoning, CodeSearch, TemporalNavigation,
		FactChecking, IntentSearch, TypoTolerant,
	}
}

// Default returns the profile used when no profile or explicit weights
// are supplied, matching DefaultWeights() fallback role.
func Default() Weights {
	return builtins[SemanticSearch]
}
