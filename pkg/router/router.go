// Package router decides, per query, which retrieval strategy will
// produce the most reliable answer, executes it, and assembles a
// grounded response. Routing runs as an explicit state machine:
// CLASSIFY branches into one of ANALYTICS, DOCUMENT, GRAPH, or HYBRID,
// which all converge on ASSEMBLE and GENERATE.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/lemur/backend/internal/timing"
	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
	"github.com/OFFIS-RIT/lemur/backend/pkg/analytics"
	"github.com/OFFIS-RIT/lemur/backend/pkg/common"
	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

var (
	// ErrEmbeddingUnavailable means no query vector could be produced,
	// so vector retrieval cannot run.
	ErrEmbeddingUnavailable = errors.New("query embedding unavailable")
	// ErrServiceUnavailable means generation failed on every provider.
	// Callers should surface this as a degraded-service response.
	ErrServiceUnavailable = errors.New("generation service unavailable")
)

// noDataAnswer is returned when every retrieval path came back empty
// without infrastructure failures.
const noDataAnswer = "No relevant information was found for this query."

const (
	defaultTopK             = 9
	defaultTopSections      = 3
	defaultSectionThreshold = 0.35
	defaultSubCallTimeout   = 10 * time.Second
	defaultGenerateTimeout  = 60 * time.Second
	defaultContextBudget    = 4000
	defaultResultTTL        = time.Hour
)

const answerSystemPrompt = "You are a maintenance assistant. Answer strictly from the " +
	"provided context. If the context does not contain the answer, say so. " +
	"Cite equipment and documents by the names given in the context."

// DocumentIndex is the retrieval surface of the hierarchical index.
type DocumentIndex interface {
	SearchScoped(query []float32, topSections, chunksPerSection int, sectionThreshold float64, docScope []string) ([]index.ChunkResult, error)
}

// GraphService builds graph context for a set of entity names.
type GraphService interface {
	BuildContext(names []string, purpose graph.Purpose) graph.Context
}

// AnalyticsBridge fetches a metric and its rendered context block.
type AnalyticsBridge interface {
	Fetch(ctx context.Context, kind common.AnalyticsKind, entities common.ExtractedEntities) (analytics.Result, string, error)
}

// Generator is the slice of the provider gateway the router needs.
type Generator interface {
	GenerateChat(ctx context.Context, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, string, error)
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, string, error)
}

// ResultCache caches assembled results keyed by query hash. A nil
// cache disables result caching.
type ResultCache interface {
	GetResult(ctx context.Context, queryHash string, out any) bool
	SetResult(ctx context.Context, queryHash string, value any, ttl time.Duration)
}

// EmbeddingCache caches query embeddings keyed by content and model.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, content, model string) ([]float32, bool)
	SetEmbedding(ctx context.Context, content, model string, vector []float32)
}

// Router orchestrates classification, extraction, retrieval, and
// generation for one query at a time. It is safe for concurrent use.
type Router struct {
	classifier *Classifier
	extractor  *Extractor
	docs       DocumentIndex
	graphSvc   GraphService
	bridge     AnalyticsBridge
	gateway    Generator
	cache      ResultCache
	embedCache EmbeddingCache
	embedModel string
	pool       *ants.Pool

	topK             int
	sectionThreshold float64
	subCallTimeout   time.Duration
	generateTimeout  time.Duration
	contextBudget    int
	resultTTL        time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithResultCache enables result caching.
func WithResultCache(cache ResultCache) RouterOption {
	return func(r *Router) { r.cache = cache }
}

// WithEmbeddingCache enables query embedding caching. The model name
// keys the entries so a model change never serves stale vectors.
func WithEmbeddingCache(cache EmbeddingCache, model string) RouterOption {
	return func(r *Router) {
		r.embedCache = cache
		r.embedModel = model
		if r.embedModel == "" {
			r.embedModel = "default"
		}
	}
}

// WithWorkerPool dispatches CPU-bound retrieval work through the pool
// instead of ad hoc goroutines.
func WithWorkerPool(pool *ants.Pool) RouterOption {
	return func(r *Router) { r.pool = pool }
}

// WithSubCallTimeout bounds each retrieval sub-call.
func WithSubCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.subCallTimeout = d
		}
	}
}

// WithGenerateTimeout bounds the final generation call.
func WithGenerateTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.generateTimeout = d
		}
	}
}

// WithContextBudget caps the assembled context size in tokens.
func WithContextBudget(tokens int) RouterOption {
	return func(r *Router) {
		if tokens > 0 {
			r.contextBudget = tokens
		}
	}
}

// WithDefaults overrides the retrieval defaults applied when request
// options leave them unset.
func WithDefaults(topK int, sectionThreshold float64) RouterOption {
	return func(r *Router) {
		if topK > 0 {
			r.topK = topK
		}
		if sectionThreshold > 0 {
			r.sectionThreshold = sectionThreshold
		}
	}
}

// New creates a Router over the given components. Classifier and
// extractor are owned by the router; the retrieval services are shared
// process-wide singletons injected at startup.
func New(
	classifier *Classifier,
	extractor *Extractor,
	docs DocumentIndex,
	graphSvc GraphService,
	bridge AnalyticsBridge,
	gateway Generator,
	opts ...RouterOption,
) *Router {
	r := &Router{
		classifier:       classifier,
		extractor:        extractor,
		docs:             docs,
		graphSvc:         graphSvc,
		bridge:           bridge,
		gateway:          gateway,
		topK:             defaultTopK,
		sectionThreshold: defaultSectionThreshold,
		subCallTimeout:   defaultSubCallTimeout,
		generateTimeout:  defaultGenerateTimeout,
		contextBudget:    defaultContextBudget,
		resultTTL:        defaultResultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type routeState int

const (
	stateClassify routeState = iota
	stateAnalytics
	stateDocument
	stateGraph
	stateHybrid
	stateAssemble
	stateGenerate
	stateDone
)

// query carries everything accumulated while one request moves through
// the state machine.
type query struct {
	text    string
	opts    Options
	tracker *timing.Tracker

	classification Classification
	entities       common.ExtractedEntities

	analyticsBlock  string
	analyticsResult *analytics.Result
	graphContext    *graph.Context
	chunks          []index.ChunkResult
	assembled       string

	infraFailure bool

	decision RouteDecision
	result   Result
}

// Route answers one query. Component failures with a safe degraded
// behavior are absorbed; only total exhaustion of retrieval and
// generation surfaces as an error.
func (r *Router) Route(ctx context.Context, text string, opts Options) (*Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = r.topK
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = r.sectionThreshold
	}

	queryHash := util.ContentHash(
		strings.ToLower(strings.TrimSpace(text)),
		fmt.Sprintf("%d|%.3f|%s", opts.TopK, opts.SimilarityThreshold, strings.Join(opts.DocumentScope, ",")),
	)
	if opts.UseCache && r.cache != nil {
		var cached Result
		if r.cache.GetResult(ctx, queryHash, &cached) {
			cached.CacheHit = true
			shapeResult(&cached, opts)
			logger.Debug("[Router] Result cache hit", "hash", queryHash)
			return &cached, nil
		}
	}

	requestID, err := gonanoid.New()
	if err != nil {
		requestID = queryHash[:12]
	}

	q := &query{
		text:    text,
		opts:    opts,
		tracker: timing.NewTracker(),
	}
	q.decision.RequestID = requestID

	for st := stateClassify; st != stateDone; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := r.step(ctx, st, q)
		if err != nil {
			return nil, err
		}
		st = next
	}

	q.result.TimingMs = q.tracker.BreakdownMs()
	q.result.Routing = &q.decision
	q.result.GraphContext = q.graphContext

	if opts.UseCache && r.cache != nil {
		r.cache.SetResult(ctx, queryHash, q.result, r.resultTTL)
	}

	shaped := q.result
	shapeResult(&shaped, opts)
	return &shaped, nil
}

// shapeResult strips the optional payload sections the caller did not
// ask for. The cache always holds the full payload so one entry can
// serve callers with different include flags.
func shapeResult(res *Result, opts Options) {
	if !opts.IncludeRouting {
		res.Routing = nil
	}
	if !opts.IncludeGraphContext {
		res.GraphContext = nil
	}
	if !opts.IncludeSources {
		res.Citations = nil
	}
}

func (r *Router) step(ctx context.Context, st routeState, q *query) (routeState, error) {
	switch st {
	case stateClassify:
		return r.handleClassify(ctx, q), nil
	case stateAnalytics:
		return r.handleAnalytics(ctx, q), nil
	case stateDocument:
		return r.handleDocument(ctx, q)
	case stateGraph:
		return r.handleGraph(ctx, q), nil
	case stateHybrid:
		return r.handleHybrid(ctx, q), nil
	case stateAssemble:
		return r.handleAssemble(q), nil
	case stateGenerate:
		return r.handleGenerate(ctx, q)
	default:
		return stateDone, fmt.Errorf("unknown route state %d", st)
	}
}

// handleClassify runs intent classification and entity extraction in
// parallel, they share no state.
func (r *Router) handleClassify(_ context.Context, q *query) routeState {
	stop := q.tracker.Track("classify")

	var wg sync.WaitGroup
	wg.Add(2)
	r.dispatch(func() {
		defer wg.Done()
		q.classification = r.classifier.Classify(q.text)
	})
	r.dispatch(func() {
		defer wg.Done()
		q.entities = r.extractor.Extract(q.text)
	})
	wg.Wait()
	stop()

	q.decision.Intent = q.classification.Intent
	q.decision.Confidence = q.classification.Confidence
	q.decision.Reasoning = q.classification.Reasoning
	q.decision.AnalyticsKind = q.classification.AnalyticsKind
	q.decision.Entities = q.entities

	logger.Debug("[Router] Classified",
		"request", q.decision.RequestID,
		"intent", q.classification.Intent,
		"confidence", q.classification.Confidence,
	)

	switch q.classification.Intent {
	case common.IntentAnalytics:
		q.decision.Primary = HandlerAnalytics
		return stateAnalytics
	case common.IntentRelationship:
		q.decision.Primary = HandlerGraph
		return stateGraph
	case common.IntentHybrid:
		q.decision.Primary = HandlerDocument
		return stateHybrid
	default:
		q.decision.Primary = HandlerDocument
		return stateDocument
	}
}

// handleAnalytics fetches the metric; on failure or an empty block the
// query falls through to document retrieval.
func (r *Router) handleAnalytics(ctx context.Context, q *query) routeState {
	stop := q.tracker.Track("analytics")
	defer stop()

	kind := q.classification.AnalyticsKind
	if kind == "" {
		return stateDocument
	}

	result, block, err := r.bridge.Fetch(ctx, kind, q.entities)
	if err != nil || strings.TrimSpace(block) == "" {
		logger.Warn("[Router] Analytics bridge failed, falling back to documents",
			"request", q.decision.RequestID, "error", err)
		return stateDocument
	}

	q.analyticsResult = &result
	q.analyticsBlock = block
	q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerAnalytics)
	return stateAssemble
}

// handleDocument embeds the query and runs the hierarchical search.
func (r *Router) handleDocument(ctx context.Context, q *query) (routeState, error) {
	vector, err := r.embedQuery(ctx, q)
	if err != nil {
		// without a query vector and without any other context the
		// request cannot be answered
		if q.analyticsBlock == "" && q.graphContext == nil {
			return stateDone, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		q.infraFailure = true
		return stateAssemble, nil
	}

	chunks, err := r.searchDocuments(ctx, q, vector, q.opts.DocumentScope)
	if err != nil {
		logger.Warn("[Router] Document search failed",
			"request", q.decision.RequestID, "error", err)
		q.infraFailure = true
		return stateAssemble, nil
	}

	q.chunks = chunks
	q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerDocument)
	return stateAssemble, nil
}

// handleGraph builds graph context for the extracted entities, then
// grounds it with a document search narrowed to the graph's documents.
func (r *Router) handleGraph(ctx context.Context, q *query) routeState {
	gctx := r.buildGraphContext(ctx, q)
	if gctx != nil {
		q.graphContext = gctx
		q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerGraph)
	}

	scope := q.opts.DocumentScope
	if gctx != nil && len(gctx.DocumentIDs) > 0 {
		scope = gctx.DocumentIDs
		q.decision.DocumentScope = scope
	}

	if vector, err := r.embedQuery(ctx, q); err == nil {
		if chunks, err := r.searchDocuments(ctx, q, vector, scope); err == nil {
			q.chunks = chunks
			q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerDocument)
		} else {
			q.infraFailure = true
		}
	} else if gctx == nil {
		q.infraFailure = true
	}

	return stateAssemble
}

// handleHybrid fans out every applicable path concurrently and merges
// whatever came back in time. Sub-task failures degrade, they never
// abort the request.
func (r *Router) handleHybrid(ctx context.Context, q *query) routeState {
	group, groupCtx := errgroup.WithContext(ctx)

	if q.classification.AnalyticsKind != "" {
		group.Go(func() error {
			stop := q.tracker.Track("analytics")
			defer stop()
			result, block, err := r.bridge.Fetch(groupCtx, q.classification.AnalyticsKind, q.entities)
			if err != nil || strings.TrimSpace(block) == "" {
				logger.Debug("[Router] Hybrid analytics path skipped",
					"request", q.decision.RequestID, "error", err)
				return nil
			}
			q.analyticsResult = &result
			q.analyticsBlock = block
			return nil
		})
	}

	group.Go(func() error {
		if gctx := r.buildGraphContext(groupCtx, q); gctx != nil {
			q.graphContext = gctx
		}
		return nil
	})

	var chunks []index.ChunkResult
	var searchErr error
	group.Go(func() error {
		vector, err := r.embedQuery(groupCtx, q)
		if err != nil {
			searchErr = err
			return nil
		}
		chunks, searchErr = r.searchDocuments(groupCtx, q, vector, q.opts.DocumentScope)
		return nil
	})

	group.Wait()

	if searchErr != nil {
		logger.Warn("[Router] Hybrid document path failed",
			"request", q.decision.RequestID, "error", searchErr)
		q.infraFailure = true
	} else {
		q.chunks = chunks
		q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerDocument)
	}
	if q.analyticsBlock != "" {
		q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerAnalytics)
	}
	if q.graphContext != nil {
		q.decision.HandlersUsed = append(q.decision.HandlersUsed, HandlerGraph)
	}

	return stateAssemble
}

// handleAssemble merges the context sections in precedence order:
// analytics first, then graph summary, then chunk excerpts. The merged
// text is cut to the token budget before generation.
func (r *Router) handleAssemble(q *query) routeState {
	stop := q.tracker.Track("assemble")
	defer stop()

	var sections []string
	if q.analyticsBlock != "" {
		sections = append(sections, q.analyticsBlock)
	}
	if q.graphContext != nil && q.graphContext.Summary != "" {
		sections = append(sections, "[GRAPH CONTEXT]\n"+q.graphContext.Summary)
	}
	if len(q.chunks) > 0 {
		var sb strings.Builder
		sb.WriteString("[DOCUMENT EXCERPTS]")
		for _, c := range q.chunks {
			fmt.Fprintf(&sb, "\n\n(source %s, score %.2f)\n%s", c.DocumentID, c.Score, c.Chunk.Text)
		}
		sections = append(sections, sb.String())
	}

	merged := strings.Join(sections, "\n\n---\n\n")
	q.result.ChunksRetrieved = len(q.chunks)
	q.result.AnalyticsData = q.analyticsResult
	q.result.Citations = r.collectCitations(q)

	if util.CountTokens(merged) > r.contextBudget {
		merged = util.TruncateTokens(merged, r.contextBudget)
	}
	q.assembled = merged
	return stateGenerate
}

// handleGenerate calls the provider gateway with the assembled context.
func (r *Router) handleGenerate(ctx context.Context, q *query) (routeState, error) {
	if strings.TrimSpace(q.assembled) == "" {
		if q.infraFailure {
			return stateDone, ErrServiceUnavailable
		}
		q.result.Answer = noDataAnswer
		return stateDone, nil
	}

	stop := q.tracker.Track("generate")
	defer stop()

	genCtx, cancel := context.WithTimeout(ctx, r.generateTimeout)
	defer cancel()

	messages := []ai.ChatMessage{
		{Role: "user", Message: "Context:\n" + q.assembled + "\n\nQuestion: " + q.text},
	}
	answer, provider, err := r.gateway.GenerateChat(genCtx, messages,
		ai.WithSystemPrompts(answerSystemPrompt),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return stateDone, err
		}
		return stateDone, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	q.result.Answer = answer
	q.result.ProviderUsed = provider
	return stateDone, nil
}

func (r *Router) embedQuery(ctx context.Context, q *query) ([]float32, error) {
	stop := q.tracker.Track("embed")
	defer stop()

	content := strings.ToLower(strings.TrimSpace(q.text))
	if r.embedCache != nil {
		if vector, ok := r.embedCache.GetEmbedding(ctx, content, r.embedModel); ok {
			return vector, nil
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.subCallTimeout)
	defer cancel()

	vector, _, err := r.gateway.GenerateEmbedding(embedCtx, []byte(q.text))
	if err != nil {
		return nil, err
	}
	if r.embedCache != nil {
		r.embedCache.SetEmbedding(ctx, content, r.embedModel, vector)
	}
	return vector, nil
}

// searchDocuments runs the hierarchical search off the request path
// with its own deadline.
func (r *Router) searchDocuments(ctx context.Context, q *query, vector []float32, scope []string) ([]index.ChunkResult, error) {
	stop := q.tracker.Track("search")
	defer stop()

	searchCtx, cancel := context.WithTimeout(ctx, r.subCallTimeout)
	defer cancel()

	chunksPerSection := (q.opts.TopK + defaultTopSections - 1) / defaultTopSections

	type outcome struct {
		chunks []index.ChunkResult
		err    error
	}
	ch := make(chan outcome, 1)
	r.dispatch(func() {
		chunks, err := r.docs.SearchScoped(vector, defaultTopSections, chunksPerSection, q.opts.SimilarityThreshold, scope)
		ch <- outcome{chunks: chunks, err: err}
	})

	select {
	case <-searchCtx.Done():
		return nil, searchCtx.Err()
	case out := <-ch:
		return out.chunks, out.err
	}
}

// buildGraphContext resolves the query's entity names into graph
// context off the request path. Nil means nothing usable came back.
func (r *Router) buildGraphContext(ctx context.Context, q *query) *graph.Context {
	names := append(append([]string(nil), q.entities.Equipment...), q.entities.Components...)
	if len(names) == 0 {
		return nil
	}

	stop := q.tracker.Track("graph")
	defer stop()

	graphCtx, cancel := context.WithTimeout(ctx, r.subCallTimeout)
	defer cancel()

	purpose := graph.PurposeFailureAnalysis
	if causalCue.MatchString(strings.ToLower(q.text)) {
		purpose = graph.PurposeRootCause
	}
	if q.classification.Intent == common.IntentHybrid {
		purpose = graph.PurposeGeneral
	}

	ch := make(chan graph.Context, 1)
	r.dispatch(func() {
		ch <- r.graphSvc.BuildContext(names, purpose)
	})

	select {
	case <-graphCtx.Done():
		logger.Warn("[Router] Graph context timed out", "request", q.decision.RequestID)
		return nil
	case gctx := <-ch:
		if len(gctx.Entities) == 0 {
			return nil
		}
		return &gctx
	}
}

func (r *Router) collectCitations(q *query) []common.Citation {
	var citations []common.Citation
	for _, c := range q.chunks {
		citations = append(citations, common.Citation{
			Kind:       common.CiteDocument,
			DocumentID: c.DocumentID,
			SectionID:  c.Chunk.SectionID,
			Score:      c.Score,
		})
	}
	if q.graphContext != nil {
		for _, n := range q.graphContext.Entities {
			citations = append(citations, common.Citation{Kind: common.CiteGraph, NodeID: n.ID})
		}
	}
	if q.analyticsResult != nil {
		citations = append(citations, common.Citation{
			Kind:   common.CiteAnalytics,
			Metric: string(q.analyticsResult.Kind),
		})
	}
	return citations
}

// dispatch runs task on the worker pool when one is configured,
// falling back to a goroutine when the pool is saturated or absent.
func (r *Router) dispatch(task func()) {
	if r.pool != nil {
		if err := r.pool.Submit(task); err == nil {
			return
		}
	}
	go task()
}
