// Package classifier picks a retrieval profile from a query's surface
// cues, the generalization of three-way lexical/semantic/
// mixed PatternClassifier to the six-way profile selection named in
// .
package classifier

import (
	"context"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/corvidmem/corvid/internal/profile"
)

// Category is one of the six cue buckets a query is classified into.
// Unlike QueryType (lexical/semantic/mixed), each category
// here maps directly onto a named profile.Name rather than a weight
// formula, since the profile vectors already encode the tuning.
type Category string

const (
	CategoryCausal   Category = "causal"
	CategoryCode     Category = "code"
	CategoryTemporal Category = "temporal"
	CategoryEntity   Category = "entity"
	CategoryIntent   Category = "intent"
	CategorySemantic Category = "semantic" // default/else bucket
)

// categoryProfiles maps each cue category onto the built-in profile it
// selects.
var categoryProfiles = map[Category]profile.Name{
	CategoryCausal:   profile.CausalReasoning,
	CategoryCode:     profile.CodeSearch,
	CategoryTemporal: profile.TemporalNavigation,
	CategoryEntity:   profile.FactChecking,
	CategoryIntent:   profile.IntentSearch,
	CategorySemantic: profile.SemanticSearch,
}

// Cue patterns, compiled once at package init, mirroring // patterns.go compiled-at-init regex set.
var (
	causalCuePattern = regexp.MustCompile(`(?i)\b(why|because|caused by|leads? to|results? in|due to|consequence|effect of|reason for)\b`)

	codeCuePattern = regexp.MustCompile(`(?i)^[\w\-./\\]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml|toml|css|scss|html|rs|java|kt|c|cpp|h|hpp|rb|php|swift|sh|bash|zsh)$|` +
		`(?i)\b(function|func|class|method|struct|interface|package|import|error|exception|stack trace)\b`)

	camelCasePattern  = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern = regexp.MustCompile(`^([A-Z][a-z0-9]*){2,}$`)
	snakeCasePattern  = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)

	temporalCuePattern = regexp.MustCompile(`(?i)\b(before|after|when|during|since|until|timeline|history of|evolved|changed over time|previously|used to)\b`)

	entityCuePattern = regexp.MustCompile(`(?i)\b(is it true|fact check|verify|confirm|according to|cites?|source for|who said|attributed to)\b`)

	intentCuePattern = regexp.MustCompile(`(?i)^(how do i|how to|i want to|i need to|help me|can you|please)\b`)
)

// Classifier assigns a Category and resolves it to a profile.Weights
// vector, never returning an error — pattern matching always produces
// some answer, falling back to CategorySemantic.
type Classifier struct{}

// New returns a stateless cue-based classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify inspects query and returns the cue category it best matches.
// Patterns are checked most-specific first: entity/fact-check cues and
// code identifiers are narrow and unambiguous, so they're tested before
// the broader causal/temporal/intent phrase cues.
func (c *Classifier) Classify(query string) Category {
	q := strings.TrimSpace(query)
	if q == "" {
		return CategorySemantic
	}

	if c.isCodeQuery(q) {
		return CategoryCode
	}
	if entityCuePattern.MatchString(q) {
		return CategoryEntity
	}
	if causalCuePattern.MatchString(q) {
		return CategoryCausal
	}
	if temporalCuePattern.MatchString(q) {
		return CategoryTemporal
	}
	if intentCuePattern.MatchString(q) {
		return CategoryIntent
	}
	return CategorySemantic
}

func (c *Classifier) isCodeQuery(query string) bool {
	if codeCuePattern.MatchString(query) {
		return true
	}
	if !strings.Contains(query, " ") {
		if camelCasePattern.MatchString(query) ||
			pascalCasePattern.MatchString(query) ||
			snakeCasePattern.MatchString(query) {
			return true
		}
	}
	return false
}

// Resolve classifies query and returns the matched category, the
// selected profile name, and its validated weight vector.
func (c *Classifier) Resolve(query string) (Category, profile.Name, profile.Weights) {
	cat := c.Classify(query)
	name := categoryProfiles[cat]
	w, _ := profile.Lookup(name) // categoryProfiles only ever names a real builtin
	return cat, name, w
}

// cachedResult is what HybridClassifier caches per normalized query.
type cachedResult struct {
	category Category
	name     profile.Name
	weights  profile.Weights
}

// DefaultCacheSize matches HybridClassifier cache sizing.
const DefaultCacheSize = 10000

// HybridClassifier wraps Classifier with an LRU result cache, the same
// shape as HybridClassifier (minus the LLM tier, out of
// scope). Repeated identical queries within one process
// lifetime skip re-running the regex set entirely.
type HybridClassifier struct {
	inner *Classifier
	cache *lru.Cache[string, cachedResult]
}

// NewHybridClassifier returns a cached classifier with DefaultCacheSize.
func NewHybridClassifier() *HybridClassifier {
	return NewHybridClassifierWithCacheSize(DefaultCacheSize)
}

// NewHybridClassifierWithCacheSize returns a cached classifier with a
// custom cache size; size<=0 falls back to DefaultCacheSize.
func NewHybridClassifierWithCacheSize(size int) *HybridClassifier {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, cachedResult](size)
	return &HybridClassifier{inner: New(), cache: cache}
}

// Classify resolves query to a profile, consulting and populating the
// cache by normalized query text.
func (h *HybridClassifier) Classify(_ context.Context, query string) (profile.Name, profile.Weights) {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return profile.SemanticSearch, profile.Default()
	}

	if cached, ok := h.cache.Get(key); ok {
		return cached.name, cached.weights
	}

	cat, name, w := h.inner.Resolve(query)
	h.cache.Add(key, cachedResult{category: cat, name: name, weights: w})
	return name, w
}
