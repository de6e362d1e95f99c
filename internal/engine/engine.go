package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Engine is the hybrid memory retrieval engine. Each call runs a
// self-contained, stateless pipeline:
//
//	intent → router → handler → reranker → compactor →
//	invalidated-fact lookup → token budgeter → formatter
//
// All dependencies are injected at construction; there is no process-wide
// mutable state, so one Engine serves unbounded concurrent requests.
type Engine struct {
	vectors    storage.VectorStore
	graph      storage.GraphStore
	relational storage.RelationalStore
	embedder   llm.Embedder

	router    *Router
	reranker  *Reranker
	compactor *Compactor

	cfg    RetrievalConfig
	logger *slog.Logger
}

// Dependencies carries everything an Engine needs. Vectors, Graph,
// Relational, Embedder, and Generator are required; CrossEncoder is
// optional (reranking then relies on the vector fallback).
type Dependencies struct {
	Vectors      storage.VectorStore
	Graph        storage.GraphStore
	Relational   storage.RelationalStore
	Embedder     llm.Embedder
	Generator    llm.StructuredGenerator
	CrossEncoder llm.CrossEncoder
	Config       RetrievalConfig
	Logger       *slog.Logger
}

// New constructs the engine from explicit dependencies.
func New(deps Dependencies) (*Engine, error) {
	if deps.Vectors == nil || deps.Graph == nil || deps.Relational == nil {
		return nil, fmt.Errorf("engine: storage dependencies are required")
	}
	if deps.Embedder == nil || deps.Generator == nil {
		return nil, fmt.Errorf("engine: model dependencies are required")
	}
	if deps.Config == (RetrievalConfig{}) {
		deps.Config = DefaultRetrievalConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		vectors:    deps.Vectors,
		graph:      deps.Graph,
		relational: deps.Relational,
		embedder:   deps.Embedder,
		router:     NewRouter(deps.Vectors, deps.Relational, deps.Embedder, deps.Generator, deps.Config.LabelThreshold, logger),
		reranker:   NewReranker(deps.CrossEncoder, deps.Vectors, logger),
		compactor:  NewCompactor(deps.Relational, deps.Config.CompactMinEpisodes, logger),
		cfg:        deps.Config,
		logger:     logger,
	}, nil
}

// Search is the engine's entry point: classify the query, run the matching
// handler, rerank, compact, surface invalidated facts, enforce the token
// budget, and format.
//
// Store connectivity failures propagate; every model-side failure degrades
// to a lower-quality but non-empty result.
func (e *Engine) Search(ctx context.Context, query, userID string, opts SearchOptions) (*SearchResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: search: %w", storage.ErrMissingOwner)
	}
	start := time.Now()
	workspaceID := opts.WorkspaceID
	if workspaceID == "" {
		workspaceID = userID
	}

	// Pre-known labels bypass label routing entirely; extraction still
	// runs because the query type drives handler selection.
	var route *types.RouterOutput
	if len(opts.LabelIDs) > 0 {
		routeStart := time.Now()
		route = e.router.ExtractAspects(ctx, query, nil)
		route.RoutingTimeMs = time.Since(routeStart).Milliseconds()
	} else {
		route = e.router.RouteIntent(ctx, query, workspaceID)
	}

	// The gate: greetings and meta-questions cost nothing downstream.
	if !ShouldProceed(route) {
		resp := e.respond(&types.RecallResult{}, route, opts)
		e.logSearchAsync(query, userID, route, resp.Result, opts.Source, start)
		return resp, nil
	}

	labelIDs := opts.LabelIDs
	if len(labelIDs) == 0 {
		labelIDs = MatchedLabelIDs(route, e.cfg.LabelThreshold)
	}

	handled, err := e.dispatch(ctx, userID, route, labelIDs, opts)
	if err != nil {
		return nil, err
	}

	result := &types.RecallResult{}
	if handled != nil {
		if len(handled.Entities) > 0 {
			result.Entity = &handled.Entities[0]
		}

		switch {
		case handled.EntityOnly:
			// Attribute fast path: the entity record is the whole answer.

		case route.QueryType == types.QueryTypeRelationship:
			result.Statements = e.rankStatements(ctx, query, handled.Statements, opts)

		default:
			if err := e.buildEpisodePayload(ctx, query, userID, workspaceID, route, handled.Episodes, opts, result); err != nil {
				return nil, err
			}
		}
	}

	resp := e.respond(result, route, opts)
	e.logSearchAsync(query, userID, route, result, opts.Source, start)
	return resp, nil
}

// AnalyzeQuery exposes the routing decision without executing retrieval,
// for debugging and testing of intent classification.
func (e *Engine) AnalyzeQuery(ctx context.Context, query, userID string) (*types.RouterOutput, error) {
	if userID == "" {
		return nil, fmt.Errorf("engine: analyze: %w", storage.ErrMissingOwner)
	}
	return e.router.RouteIntent(ctx, query, userID), nil
}

// buildEpisodePayload runs the episode half of the pipeline: rerank,
// invalidated facts, compaction, sort, token budget.
func (e *Engine) buildEpisodePayload(ctx context.Context, query, userID, workspaceID string, route *types.RouterOutput, episodes []types.Episode, opts SearchOptions, result *types.RecallResult) error {
	maxEpisodes := opts.maxEpisodes(DefaultMaxEpisodes)
	if route.QueryType == types.QueryTypeTemporal {
		maxEpisodes = opts.maxEpisodes(DefaultTemporalEpisodes)
	}

	var ranked []types.EpisodeResult
	if e.rerankEnabled(opts) {
		queryVec := e.embedQuery(ctx, query)
		ranked = e.reranker.RankEpisodes(ctx, query, queryVec, episodes,
			e.rerankThreshold(route, opts), maxEpisodes, e.fallbackEnabled(opts))
	} else {
		ranked = passthroughEpisodes(episodes, maxEpisodes)
	}

	// Invalidated facts come from the pre-compaction candidate set: every
	// statement ever provenance-linked to those episodes, kept when
	// superseded.
	ids := make([]string, len(ranked))
	for i, item := range ranked {
		ids[i] = item.ID
	}
	statements, err := e.graph.StatementsForEpisodes(ctx, userID, ids)
	if err != nil {
		return err
	}
	for _, st := range statements {
		if st.Invalidated() {
			result.InvalidatedFacts = append(result.InvalidatedFacts, types.InvalidatedFact{
				Fact:      st.Fact,
				ValidAt:   st.ValidAt,
				InvalidAt: *st.InvalidAt,
			})
		}
	}

	ranked = e.compactor.Compact(ctx, workspaceID, ranked)

	budget := opts.TokenBudget
	if budget <= 0 {
		budget = e.cfg.TokenBudget
	}
	kept, dropped, total := EnforceTokenBudget(ranked, budget, e.cfg.TokenDivisor)
	result.TokensDropped = dropped
	result.TokensTotal = total

	if opts.SortBy == "createdAt" {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].CreatedAt.After(kept[j].CreatedAt)
		})
	}
	result.Episodes = kept
	return nil
}

func (e *Engine) rankStatements(ctx context.Context, query string, statements []types.Statement, opts SearchOptions) []types.Statement {
	if !e.rerankEnabled(opts) {
		return truncateStatements(statements, opts.maxStatements())
	}
	return e.reranker.RankStatements(ctx, query, statements, opts.maxStatements())
}

// embedQuery maps embedding failure to an empty vector: "could not embed"
// is a degraded state, never an error.
func (e *Engine) embedQuery(ctx context.Context, query string) []float32 {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed", "error", err)
		return nil
	}
	return vec
}

func (e *Engine) rerankEnabled(opts SearchOptions) bool {
	if opts.EnableReranking != nil {
		return *opts.EnableReranking
	}
	return e.cfg.EnableReranking
}

func (e *Engine) fallbackEnabled(opts SearchOptions) bool {
	if opts.EnableFallback != nil {
		return *opts.EnableFallback
	}
	return true
}

// rerankThreshold picks the score floor: exploratory queries trade
// precision for recall, and an explicit fallbackThreshold option wins.
func (e *Engine) rerankThreshold(route *types.RouterOutput, opts SearchOptions) float64 {
	if opts.FallbackThreshold > 0 {
		return opts.FallbackThreshold
	}
	if route.QueryType == types.QueryTypeExploratory {
		return e.cfg.ExploratoryThreshold
	}
	return e.cfg.RerankThreshold
}

// respond renders the normalized result in the requested output mode.
func (e *Engine) respond(result *types.RecallResult, route *types.RouterOutput, opts SearchOptions) *SearchResponse {
	resp := &SearchResponse{Result: result}
	if opts.Structured {
		resp.Structured = FormatStructured(result, route.QueryType)
	} else {
		resp.Markdown = FormatMarkdown(result)
	}
	return resp
}

// logSearchAsync writes the analytics row from a detached goroutine.
// Failure is logged and swallowed; the response path never waits on it.
func (e *Engine) logSearchAsync(query, userID string, route *types.RouterOutput, result *types.RecallResult, source string, start time.Time) {
	entry := storage.SearchLog{
		UserID:         userID,
		Query:          query,
		QueryType:      route.QueryType,
		Source:         source,
		EpisodeCount:   len(result.Episodes),
		StatementCount: len(result.Statements),
		RoutingTimeMs:  route.RoutingTimeMs,
		TotalTimeMs:    time.Since(start).Milliseconds(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.relational.InsertSearchLog(ctx, entry); err != nil {
			e.logger.Warn("search analytics write failed", "error", err)
		}
	}()
}
