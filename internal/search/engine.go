package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvidmem/corvid/internal/cerrors"
	"github.com/corvidmem/corvid/internal/classifier"
	"github.com/corvidmem/corvid/internal/embedder"
	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/fusion"
	"github.com/corvidmem/corvid/internal/index"
	"github.com/corvidmem/corvid/internal/profile"
	"github.com/corvidmem/corvid/internal/store"
	"github.com/corvidmem/corvid/internal/telemetry"
)

// ErrNilDependency is returned when a required Engine dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs multi-space search and a staged recall/rerank/precision
// pipeline over a shared set of substrates: one index.Manager, one
// store.Store for hydration and the soft-delete filter, and a
// fingerprint.Builder to embed free-text queries the same way ingested
// content is embedded.
type Engine struct {
	index   *index.Manager
	store   *store.Store
	builder *fingerprint.Builder
	fuser   *fusion.WeightedRRF
	config  EngineConfig

	classifier     *classifier.HybridClassifier
	customProfiles *profile.CustomStore
	telemetry      *telemetry.QueryMetrics
}

// NewEngine wires an Engine from its required dependencies, returning an
// error if any is nil (NewEngine validation pattern).
func NewEngine(idx *index.Manager, st *store.Store, pool *embedder.Pool, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if idx == nil {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "index manager is required", ErrNilDependency)
	}
	if st == nil {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "store is required", ErrNilDependency)
	}
	if pool == nil {
		return nil, cerrors.New(cerrors.ErrCodeInternal, "embedder pool is required", ErrNilDependency)
	}

	if config.DefaultTopK <= 0 || config.MaxTopK <= 0 || config.CandidateFanout <= 0 {
		def := DefaultConfig()
		if config.DefaultTopK <= 0 {
			config.DefaultTopK = def.DefaultTopK
		}
		if config.MaxTopK <= 0 {
			config.MaxTopK = def.MaxTopK
		}
		if config.CandidateFanout <= 0 {
			config.CandidateFanout = def.CandidateFanout
		}
	}

	e := &Engine{
		index:   idx,
		store:   st,
		builder: fingerprint.NewBuilder(pool),
		fuser:   fusion.NewWeightedRRF(),
		config:  config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// slotWork is one active embedder's retrieval plan: which query embedding
// to use, and which substrate slot to search against. The two differ only
// for a direction-aware asymmetric query.
type slotWork struct {
	embedSlot  embedder.Slot
	searchSlot embedder.Slot
}

// Search implements multi-space algorithm: active-embedder
// selection, parallel per-embedder retrieval, weighted RRF fusion with an
// optional direction-aware rerank, and cut-and-hydrate.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	start := time.Now()
	opts = e.applyDefaults(opts)

	name, weights, err := e.resolveWeights(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	hint := asymmetricHint(opts.Asymmetric)
	fp, err := e.builder.Build(ctx, query, fingerprint.SourceMetadata{}, hint)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeEmbedderFailure, err)
	}

	plan := e.planSlots(weights, opts.Asymmetric)
	fanout := opts.TopK * e.config.CandidateFanout

	sources, degraded := e.retrieveAll(ctx, fp, plan, fanout, opts.ExcludeIDs)

	direction, directionTarget := fusion.DirectionNone, embedder.Index(-1)
	if opts.Asymmetric != nil {
		direction = opts.Asymmetric.Direction
		directionTarget = opts.Asymmetric.Embedder
	}

	fused := e.fuser.Fuse(sources, weights, direction, directionTarget)
	results := e.hydrate(ctx, fused, opts)

	resp := buildResponse(name, results, plan, degraded)
	resp.Partial = ctx.Err() != nil
	e.recordQuery(query, queryTypeForPlan(plan), len(resp.Results), time.Since(start))
	return resp, nil
}

// Pipeline implements staged recall/rerank/precision
// retrieval: broad sparse recall (E13+E6), a dense rerank restricted to
// the stage-1 pool (E1, with the matryoshka-128 auxiliary as a cheap
// pre-filter), and a token-level MaxSim (E12) precision pass over the
// stage-2 survivors. The fused score is weighted RRF across all three
// stages using the caller's profile.
func (e *Engine) Pipeline(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	start := time.Now()
	opts = e.applyDefaults(opts)

	name, weights, err := e.resolveWeights(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	fp, err := e.builder.Build(ctx, query, fingerprint.SourceMetadata{}, nil)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeEmbedderFailure, err)
	}

	recallSize := e.config.PipelineRecallSize
	if recallSize <= 0 {
		recallSize = opts.TopK * 10
	}

	var degraded []embedder.Slot
	var allSources []fusion.SourceResult

	stage1 := e.sparseRecall(fp, recallSize, opts.ExcludeIDs, &degraded)
	allSources = append(allSources, stage1...)
	pool := candidateSet(stage1)
	if len(pool) == 0 {
		resp := buildResponse(name, nil, nil, degraded)
		e.recordQuery(query, telemetry.QueryTypeMixed, 0, time.Since(start))
		return resp, nil
	}

	stage2 := e.denseRerank(fp, recallSize, pool, &degraded)
	allSources = append(allSources, stage2...)
	stage2Pool := candidateSet(stage2)
	if len(stage2Pool) == 0 {
		stage2Pool = pool
	}

	stage3 := e.tokenPrecision(fp, recallSize, stage2Pool, &degraded)
	allSources = append(allSources, stage3...)

	fused := e.fuser.Fuse(allSources, weights, fusion.DirectionNone, embedder.Index(-1))
	results := e.hydrate(ctx, fused, opts)

	resp := buildResponse(name, results, nil, degraded)
	resp.Partial = ctx.Err() != nil
	e.recordQuery(query, telemetry.QueryTypeMixed, len(resp.Results), time.Since(start))
	return resp, nil
}

func (e *Engine) sparseRecall(fp *fingerprint.Fingerprint, recallSize int, exclude map[fingerprint.ID]bool, degraded *[]embedder.Slot) []fusion.SourceResult {
	var out []fusion.SourceResult
	for _, idx := range []embedder.Index{embedder.E13, embedder.E6} {
		slot := embedder.Slot{Index: idx}
		emb, ok := fp.Get(slot)
		if !ok {
			*degraded = append(*degraded, slot)
			continue
		}
		sparse := e.index.SparseSlot(slot)
		if sparse == nil {
			*degraded = append(*degraded, slot)
			continue
		}
		cands, err := sparse.Search(emb.Sparse, recallSize)
		if err != nil {
			slog.Warn("pipeline stage1 recall degraded", slog.String("slot", slot.String()), slog.String("error", err.Error()))
			*degraded = append(*degraded, slot)
			continue
		}
		out = append(out, fusion.SourceResult{Slot: slot, Candidates: filterExcluded(cands, exclude)})
	}
	return out
}

func (e *Engine) denseRerank(fp *fingerprint.Fingerprint, recallSize int, pool map[fingerprint.ID]bool, degraded *[]embedder.Slot) []fusion.SourceResult {
	var out []fusion.SourceResult

	e1Slot := embedder.Slot{Index: embedder.E1}
	if emb, ok := fp.Get(e1Slot); ok {
		if dense := e.index.DenseSlot(e1Slot); dense != nil {
			if cands, err := dense.Search(emb.Dense, recallSize); err == nil {
				out = append(out, fusion.SourceResult{Slot: e1Slot, Candidates: restrictTo(cands, pool)})
			} else {
				*degraded = append(*degraded, e1Slot)
			}
		} else {
			*degraded = append(*degraded, e1Slot)
		}
	} else {
		*degraded = append(*degraded, e1Slot)
	}

	if len(fp.Matryoshka128) > 0 {
		if matry := e.index.Matryoshka(); matry != nil {
			if cands, err := matry.Search(fp.Matryoshka128, recallSize); err == nil {
				matrySlot := embedder.Slot{Index: embedder.E1, Variant: embedder.Variant("matryoshka")}
				out = append(out, fusion.SourceResult{Slot: matrySlot, Candidates: restrictTo(cands, pool)})
			}
		}
	}

	return out
}

func (e *Engine) tokenPrecision(fp *fingerprint.Fingerprint, recallSize int, pool map[fingerprint.ID]bool, degraded *[]embedder.Slot) []fusion.SourceResult {
	tokenSlot := embedder.Slot{Index: embedder.E12}
	emb, ok := fp.Get(tokenSlot)
	token := e.index.Token()
	if !ok || token == nil {
		*degraded = append(*degraded, tokenSlot)
		return nil
	}
	cands := token.Search(emb.Tokens, recallSize)
	return []fusion.SourceResult{{Slot: tokenSlot, Candidates: restrictTo(cands, pool)}}
}

// resolveWeights picks a profile by explicit weights, explicit profile
// name (built-in or custom), or the cue-based classifier, in that order
// of precedence, falling back to semantic_search.
func (e *Engine) resolveWeights(ctx context.Context, query string, opts SearchOptions) (profile.Name, profile.Weights, error) {
	if opts.Weights != nil {
		if err := opts.Weights.Validate(); err != nil {
			return "", profile.Weights{}, err
		}
		return opts.ProfileName, *opts.Weights, nil
	}

	if opts.ProfileName != "" {
		if w, ok := profile.Lookup(opts.ProfileName); ok {
			return opts.ProfileName, w, nil
		}
		if e.customProfiles != nil {
			if w, ok := e.customProfiles.Lookup(string(opts.ProfileName)); ok {
				return opts.ProfileName, w, nil
			}
		}
		return "", profile.Weights{}, cerrors.New(cerrors.ErrCodeInvalidInput, "unknown profile: "+string(opts.ProfileName), nil)
	}

	if e.classifier != nil {
		name, w := e.classifier.Classify(ctx, query)
		return name, w, nil
	}

	return profile.SemanticSearch, profile.Default(), nil
}

// planSlots selects active embedders: every dense
// or sparse embedder with nonzero weight, both sides of an asymmetric
// embedder unless it's the one opted into direction-aware retrieval, in
// which case only the single directional slot participates. E12 never
// participates here; it is pipeline-only.
func (e *Engine) planSlots(weights profile.Weights, asym *AsymmetricQuery) []slotWork {
	var plan []slotWork
	for i, spec := range embedder.Registry {
		if weights[i] == 0 {
			continue
		}
		if spec.Shape == embedder.ShapeToken {
			continue
		}
		if asym != nil && asym.Embedder == spec.Index {
			queryVariant, targetVariant, ok := directionVariants(spec.Index, asym.Direction)
			if !ok {
				continue
			}
			plan = append(plan, slotWork{
				embedSlot:  embedder.Slot{Index: spec.Index, Variant: queryVariant},
				searchSlot: embedder.Slot{Index: spec.Index, Variant: targetVariant},
			})
			continue
		}
		for _, slot := range spec.Slots() {
			plan = append(plan, slotWork{embedSlot: slot, searchSlot: slot})
		}
	}
	return plan
}

// directionVariants maps an asymmetric embedder and a requested direction
// onto (which side to embed the query text as, which side's substrate to
// search). step 5: a Cause query embeds as an effect and
// searches the cause-side index; an Effect query does the mirror. The
// same convention generalizes to E8's source/target pair when a caller
// opts in, matching "analogous ... modifiers are available for E8".
func directionVariants(idx embedder.Index, direction fusion.Direction) (queryVariant, targetVariant embedder.Variant, ok bool) {
	spec := embedder.Registry[idx]
	if !spec.Asymmetric || len(spec.Variants) != 2 {
		return "", "", false
	}
	first, second := spec.Variants[0], spec.Variants[1]
	switch direction {
	case fusion.DirectionCause:
		return second, first, true
	case fusion.DirectionEffect:
		return first, second, true
	default:
		return "", "", false
	}
}

// asymmetricHint turns an opted-in AsymmetricQuery into the CausalHint the
// embedder pool uses to bias an asymmetric embedding, if the caller asked
// for E5 specifically.
func asymmetricHint(asym *AsymmetricQuery) *embedder.CausalHint {
	if asym == nil || asym.Embedder != embedder.E5 {
		return nil
	}
	queryVariant, _, ok := directionVariants(asym.Embedder, asym.Direction)
	if !ok {
		return nil
	}
	return &embedder.CausalHint{Direction: queryVariant, AsymmetryStrength: 1.0, Confidence: 1.0}
}

// retrieveAll dispatches one goroutine per active slot (// parallelSearch pattern, generalized from two sources to thirteen), never
// failing the group on a single slot's error — that slot is reported in
// degraded instead.
func (e *Engine) retrieveAll(ctx context.Context, fp *fingerprint.Fingerprint, plan []slotWork, fanout int, exclude map[fingerprint.ID]bool) ([]fusion.SourceResult, []embedder.Slot) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var sources []fusion.SourceResult
	var degraded []embedder.Slot

	for _, work := range plan {
		work := work
		g.Go(func() error {
			cands, err := e.retrieveSlot(gctx, fp, work, fanout, exclude)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("embedder retrieval degraded",
					slog.String("slot", work.searchSlot.String()),
					slog.String("error", err.Error()))
				degraded = append(degraded, work.searchSlot)
				return nil
			}
			sources = append(sources, fusion.SourceResult{Slot: work.searchSlot, Candidates: cands})
			return nil
		})
	}
	_ = g.Wait()

	return sources, degraded
}

func (e *Engine) retrieveSlot(ctx context.Context, fp *fingerprint.Fingerprint, work slotWork, fanout int, exclude map[fingerprint.ID]bool) ([]index.Candidate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	emb, ok := fp.Get(work.embedSlot)
	if !ok {
		return nil, cerrors.New(cerrors.ErrCodeIndexDegraded, "no query embedding for slot "+work.embedSlot.String(), nil)
	}

	spec := embedder.Registry[work.searchSlot.Index]
	var cands []index.Candidate
	var err error

	switch spec.Shape {
	case embedder.ShapeDense:
		dense := e.index.DenseSlot(work.searchSlot)
		if dense == nil {
			return nil, cerrors.New(cerrors.ErrCodeIndexDegraded, "no dense substrate for "+work.searchSlot.String(), nil)
		}
		cands, err = dense.Search(emb.Dense, fanout)
	case embedder.ShapeSparse:
		sparse := e.index.SparseSlot(work.searchSlot)
		if sparse == nil {
			return nil, cerrors.New(cerrors.ErrCodeIndexDegraded, "no sparse substrate for "+work.searchSlot.String(), nil)
		}
		cands, err = sparse.Search(emb.Sparse, fanout)
	default:
		return nil, cerrors.New(cerrors.ErrCodeMetricMisuse, "unsupported shape for multi-space search: "+string(spec.Shape), nil)
	}
	if err != nil {
		return nil, err
	}

	return filterExcluded(cands, exclude), nil
}

// hydrate cuts the fused list by MinSimilarity and TopK, then fetches
// each surviving id from the primary store. Store.Get filters tombstoned
// ids by default, which is exactly "soft-delete filter
// consulted after candidate gathering": a fused id whose tombstone
// committed after retrieval but before this call is silently dropped
// rather than erroring the whole search.
func (e *Engine) hydrate(ctx context.Context, fused []fusion.Result, opts SearchOptions) []Result {
	results := make([]Result, 0, opts.TopK)
	for _, r := range fused {
		if r.Score < opts.MinSimilarity {
			continue
		}
		full, err := e.store.Get(ctx, r.ID, false)
		if err != nil {
			continue
		}

		res := Result{
			ID:            r.ID,
			Fingerprint:   full,
			Score:         r.Score,
			DominantSlot:  r.DominantSlot,
			DominantScore: r.DominantScore,
			Agreement:     r.Agreement,
		}
		if opts.IncludeBreakdown {
			perSlot := r.PerSlot()
			res.Breakdown = make(map[string]SlotBreakdown, len(perSlot))
			for slot, c := range perSlot {
				res.Breakdown[slot] = SlotBreakdown{
					Rank:            c.Rank,
					NormalizedScore: c.NormalizedScore,
					Contribution:    c.Contribution,
				}
			}
		}
		results = append(results, res)

		if opts.TopK > 0 && len(results) >= opts.TopK {
			break
		}
	}
	return results
}

// applyDefaults fills unset SearchOptions fields from e.config.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.TopK <= 0 {
		opts.TopK = e.config.DefaultTopK
	}
	if opts.TopK > e.config.MaxTopK {
		opts.TopK = e.config.MaxTopK
	}
	return opts
}

// recordQuery is a no-op unless WithTelemetry wired a QueryMetrics sink.
func (e *Engine) recordQuery(query string, qt telemetry.QueryType, resultCount int, latency time.Duration) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// queryTypeForPlan classifies a Search call by which substrate shapes its
// active slots span: lexical when only sparse (keyword/entity-graph)
// slots are active, semantic when only dense/token slots are, mixed when
// both contribute.
func queryTypeForPlan(plan []slotWork) telemetry.QueryType {
	var sawSparse, sawOther bool
	for _, w := range plan {
		spec := embedder.Registry[w.searchSlot.Index]
		if spec.Shape == embedder.ShapeSparse {
			sawSparse = true
		} else {
			sawOther = true
		}
	}
	switch {
	case sawSparse && sawOther:
		return telemetry.QueryTypeMixed
	case sawSparse:
		return telemetry.QueryTypeLexical
	default:
		return telemetry.QueryTypeSemantic
	}
}

// Stats reports substrate sizes for operational visibility.
func (e *Engine) Stats() EngineStats {
	var stats EngineStats
	for _, spec := range embedder.Registry {
		for _, slot := range spec.Slots() {
			switch spec.Shape {
			case embedder.ShapeDense:
				if e.index.DenseSlot(slot) != nil {
					stats.DenseSlots++
				}
			case embedder.ShapeSparse:
				if e.index.SparseSlot(slot) != nil {
					stats.SparseSlots++
				}
			case embedder.ShapeToken:
				stats.HasToken = e.index.Token() != nil
			}
		}
	}
	return stats
}

// Close releases the Engine's substrates.
func (e *Engine) Close() error {
	return e.index.Close()
}

// filterExcluded drops any candidate whose id is in exclude, re-ranking
// the remainder so downstream rank-based fusion sees a contiguous
// 1-based sequence.
func filterExcluded(cands []index.Candidate, exclude map[fingerprint.ID]bool) []index.Candidate {
	if len(exclude) == 0 {
		return cands
	}
	out := make([]index.Candidate, 0, len(cands))
	rank := 0
	for _, c := range cands {
		if exclude[c.ID] {
			continue
		}
		rank++
		c.Rank = rank
		out = append(out, c)
	}
	return out
}

// restrictTo keeps only candidates whose id is in pool, re-ranking the
// survivors. Used by Pipeline to approximate a filtered ANN search: the
// dense and token substrates don't support restricting traversal to a
// candidate subset directly, so a stage searches its full substrate and
// the result is intersected with the prior stage's pool instead.
func restrictTo(cands []index.Candidate, pool map[fingerprint.ID]bool) []index.Candidate {
	out := make([]index.Candidate, 0, len(cands))
	rank := 0
	for _, c := range cands {
		if !pool[c.ID] {
			continue
		}
		rank++
		c.Rank = rank
		out = append(out, c)
	}
	return out
}

func candidateSet(sources []fusion.SourceResult) map[fingerprint.ID]bool {
	set := make(map[fingerprint.ID]bool)
	for _, src := range sources {
		for _, c := range src.Candidates {
			set[c.ID] = true
		}
	}
	return set
}

func buildResponse(name profile.Name, results []Result, plan []slotWork, degraded []embedder.Slot) *Response {
	resp := &Response{
		Results:           results,
		ProfileName:       name,
		DegradedEmbedders: slotNames(degraded),
	}

	seen := make(map[string]bool)
	for _, w := range plan {
		s := w.searchSlot.String()
		if !seen[s] {
			seen[s] = true
			resp.ActiveEmbedders = append(resp.ActiveEmbedders, s)
		}
	}

	if len(results) > 0 {
		resp.DominantEmbedder = results[0].DominantSlot.String()
		resp.AgreementLevel = results[0].Agreement
	}

	return resp
}

func slotNames(slots []embedder.Slot) []string {
	if len(slots) == 0 {
		return nil
	}
	names := make([]string, len(slots))
	for i, s := range slots {
		names[i] = s.String()
	}
	return names
}
