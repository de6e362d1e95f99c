package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Reranker applies second-pass relevance scoring: a cross-encoder when one
// is available, with a vector-similarity fallback for episodes.
type Reranker struct {
	crossEncoder llm.CrossEncoder
	vectors      storage.VectorStore
	logger       *slog.Logger
}

// NewReranker wires the reranking subsystem. crossEncoder may be nil; the
// fallback chain then starts at vector similarity.
func NewReranker(crossEncoder llm.CrossEncoder, vectors storage.VectorStore, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{crossEncoder: crossEncoder, vectors: vectors, logger: logger}
}

// RankEpisodes reranks candidate episodes against the query. Reranking is
// skipped entirely when disabled, the query is empty, or there is at most
// one candidate: the original order then passes through truncated.
//
// queryVec is the pre-computed query embedding used by the cosine fallback;
// it may be empty, in which case a cross-encoder failure degrades straight
// to original order.
func (r *Reranker) RankEpisodes(ctx context.Context, query string, queryVec []float32, episodes []types.Episode, threshold float64, maxEpisodes int, enableFallback bool) []types.EpisodeResult {
	if maxEpisodes <= 0 {
		maxEpisodes = DefaultMaxEpisodes
	}
	if query == "" || len(episodes) <= 1 {
		return passthroughEpisodes(episodes, maxEpisodes)
	}

	scored, ok := r.crossEncodeEpisodes(ctx, query, episodes)
	if !ok && enableFallback {
		scored, ok = r.cosineFallback(ctx, queryVec, episodes)
	}
	if !ok {
		return passthroughEpisodes(episodes, maxEpisodes)
	}

	filtered := scored[:0]
	for _, item := range scored {
		if item.RelevanceScore >= threshold {
			filtered = append(filtered, item)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].RelevanceScore > filtered[j].RelevanceScore
	})
	if len(filtered) > maxEpisodes {
		filtered = filtered[:maxEpisodes]
	}
	return filtered
}

// crossEncodeEpisodes scores episodes with the external cross-encoder.
func (r *Reranker) crossEncodeEpisodes(ctx context.Context, query string, episodes []types.Episode) ([]types.EpisodeResult, bool) {
	if r.crossEncoder == nil {
		return nil, false
	}

	docs := make([]string, len(episodes))
	for i, ep := range episodes {
		docs[i] = episodeText(ep)
	}

	ranked, err := r.crossEncoder.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		r.logger.Warn("cross-encoder rerank failed, falling back", "error", err)
		return nil, false
	}

	results := make([]types.EpisodeResult, 0, len(ranked))
	for _, rd := range ranked {
		if rd.Index < 0 || rd.Index >= len(episodes) {
			r.logger.Warn("cross-encoder returned out-of-range index, skipping", "index", rd.Index)
			continue
		}
		results = append(results, episodeResult(episodes[rd.Index], rd.Score))
	}
	return results, true
}

// cosineFallback scores episodes by cosine similarity between the query
// embedding and the stored episode embeddings. No ANN search happens; the
// candidate set is already known, so this is a batch score.
func (r *Reranker) cosineFallback(ctx context.Context, queryVec []float32, episodes []types.Episode) ([]types.EpisodeResult, bool) {
	if len(queryVec) == 0 {
		return nil, false
	}

	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.UUID
	}
	scores, err := r.vectors.BatchScore(ctx, queryVec, storage.NamespaceEpisodes, ids)
	if err != nil {
		r.logger.Warn("cosine fallback scoring failed", "error", err)
		return nil, false
	}

	results := make([]types.EpisodeResult, 0, len(episodes))
	for _, ep := range episodes {
		results = append(results, episodeResult(ep, scores[ep.UUID]))
	}
	return results, true
}

// RankStatements reranks statements with the cross-encoder. There is no
// vector fallback here: on any failure the original order is returned,
// truncated to maxStatements.
func (r *Reranker) RankStatements(ctx context.Context, query string, statements []types.Statement, maxStatements int) []types.Statement {
	if maxStatements <= 0 {
		maxStatements = DefaultMaxStatements
	}
	if query == "" || len(statements) <= 1 || r.crossEncoder == nil {
		return truncateStatements(statements, maxStatements)
	}

	docs := make([]string, len(statements))
	for i, st := range statements {
		docs[i] = st.Fact
	}
	ranked, err := r.crossEncoder.Rerank(ctx, query, docs, maxStatements)
	if err != nil {
		r.logger.Warn("statement rerank failed, keeping original order", "error", err)
		return truncateStatements(statements, maxStatements)
	}

	reordered := make([]types.Statement, 0, len(ranked))
	for _, rd := range ranked {
		if rd.Index < 0 || rd.Index >= len(statements) {
			r.logger.Warn("cross-encoder returned out-of-range index, skipping", "index", rd.Index)
			continue
		}
		reordered = append(reordered, statements[rd.Index])
	}
	return truncateStatements(reordered, maxStatements)
}

// passthroughEpisodes maps episodes to results in their original order.
func passthroughEpisodes(episodes []types.Episode, limit int) []types.EpisodeResult {
	if len(episodes) > limit {
		episodes = episodes[:limit]
	}
	results := make([]types.EpisodeResult, 0, len(episodes))
	for _, ep := range episodes {
		results = append(results, episodeResult(ep, 0))
	}
	return results
}

func truncateStatements(statements []types.Statement, limit int) []types.Statement {
	if len(statements) > limit {
		return statements[:limit]
	}
	return statements
}

// episodeText prefers normalized content, falling back to the original.
func episodeText(ep types.Episode) string {
	if ep.Content != "" {
		return ep.Content
	}
	return ep.OriginalContent
}

func episodeResult(ep types.Episode, score float64) types.EpisodeResult {
	return types.EpisodeResult{
		ID:             ep.UUID,
		Content:        episodeText(ep),
		CreatedAt:      ep.CreatedAt,
		Source:         ep.Source,
		Type:           ep.Type,
		SessionID:      ep.SessionID,
		LabelIDs:       ep.LabelIDs,
		RelevanceScore: score,
	}
}
