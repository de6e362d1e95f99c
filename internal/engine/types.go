// Package engine implements the hybrid memory retrieval pipeline: intent
// routing, query-type handlers, reranking, session compaction, invalidated
// fact extraction, token budgeting, and output formatting.
package engine

import (
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// Policy constants. The compaction threshold and token estimation divisor
// are configurable through RetrievalConfig but the defaults are load-bearing
// for behavioral parity with existing consumers.
const (
	// DefaultLabelSearchLimit caps router label ANN matches.
	DefaultLabelSearchLimit = 3

	// DefaultLabelThreshold is the similarity floor for label routing.
	DefaultLabelThreshold = 0.7

	// MinRoutingConfidence gates retrieval: below this the router's
	// classification is not trusted enough to spend store calls on.
	MinRoutingConfidence = 0.2

	// DefaultEntityThreshold and DefaultEntityLimit bound per-hint entity
	// resolution.
	DefaultEntityThreshold = 0.7
	DefaultEntityLimit     = 5

	// DefaultMaxEpisodes bounds most handlers; temporal queries use the
	// tighter DefaultTemporalEpisodes.
	DefaultMaxEpisodes      = 20
	DefaultTemporalEpisodes = 10

	// DefaultMaxStatements bounds relationship queries.
	DefaultMaxStatements = 50

	// DefaultRerankThreshold filters rerank scores; exploratory queries
	// use the looser DefaultExploratoryThreshold because recall matters
	// more than precision there.
	DefaultRerankThreshold      = 0.1
	DefaultExploratoryThreshold = 0.05

	// DefaultTemporalDays is the fallback window for temporal queries with
	// no explicit filter.
	DefaultTemporalDays = 7

	// DefaultCompactMinEpisodes: a session group is substituted by its
	// summary document only when it has strictly more members than this.
	DefaultCompactMinEpisodes = 2

	// DefaultTokenBudget caps the estimated size of the returned episode
	// set.
	DefaultTokenBudget = 4000

	// DefaultTokenDivisor approximates tokens as len(content)/divisor + 1.
	DefaultTokenDivisor = 4
)

// RetrievalConfig carries the tunable policy knobs with their parity
// defaults.
type RetrievalConfig struct {
	LabelThreshold       float64
	RerankThreshold      float64
	ExploratoryThreshold float64
	TokenBudget          int
	TokenDivisor         int
	CompactMinEpisodes   int
	EnableReranking      bool
}

// DefaultRetrievalConfig returns the parity defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		LabelThreshold:       DefaultLabelThreshold,
		RerankThreshold:      DefaultRerankThreshold,
		ExploratoryThreshold: DefaultExploratoryThreshold,
		TokenBudget:          DefaultTokenBudget,
		TokenDivisor:         DefaultTokenDivisor,
		CompactMinEpisodes:   DefaultCompactMinEpisodes,
		EnableReranking:      true,
	}
}

// SearchOptions are the recognized per-request options on the search entry
// point. Zero values mean "use the default".
type SearchOptions struct {
	// Limit caps episode results; alias for MaxEpisodes kept for older
	// callers, MaxEpisodes wins when both are set.
	Limit       int `json:"limit,omitempty"`
	MaxEpisodes int `json:"maxEpisodes,omitempty"`

	// MaxStatements caps relationship-query statements.
	MaxStatements int `json:"maxStatements,omitempty"`

	// TokenBudget overrides the default episode token ceiling.
	TokenBudget int `json:"tokenBudget,omitempty"`

	// StartTime/EndTime force a time window, overriding the router's
	// temporal filter.
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	// LabelIDs are pre-known labels; when set, label routing is bypassed.
	LabelIDs []string `json:"labelIds,omitempty"`

	// WorkspaceID scopes label routing and compaction lookups. Defaults to
	// the user id.
	WorkspaceID string `json:"workspaceId,omitempty"`

	// Structured selects the legacy structured payload over markdown.
	Structured bool `json:"structured,omitempty"`

	// SortBy orders the final episode list: "relevance" (default) or
	// "createdAt".
	SortBy string `json:"sortBy,omitempty"`

	// EnableFallback toggles the vector-similarity rerank fallback;
	// FallbackThreshold overrides its score floor.
	EnableFallback    *bool   `json:"enableFallback,omitempty"`
	FallbackThreshold float64 `json:"fallbackThreshold,omitempty"`

	// EnableReranking toggles reranking entirely for this request.
	EnableReranking *bool `json:"enableReranking,omitempty"`

	// Source tags the analytics log row with the calling surface.
	Source string `json:"source,omitempty"`
}

// maxEpisodes resolves the per-request episode cap.
func (o SearchOptions) maxEpisodes(fallback int) int {
	if o.MaxEpisodes > 0 {
		return o.MaxEpisodes
	}
	if o.Limit > 0 {
		return o.Limit
	}
	return fallback
}

// maxStatements resolves the per-request statement cap.
func (o SearchOptions) maxStatements() int {
	if o.MaxStatements > 0 {
		return o.MaxStatements
	}
	return DefaultMaxStatements
}

// handlerResult is the raw output of one query-type handler before
// reranking and post-processing.
type handlerResult struct {
	Episodes   []types.Episode
	Statements []types.Statement
	Entities   []types.Entity

	// EntityOnly marks the entity_lookup attribute fast path: the answer
	// is on the entity record, no episode fetch happened.
	EntityOnly bool
}

// SearchResponse is the engine's formatted output: exactly one of Markdown
// or Structured is populated, per request options.
type SearchResponse struct {
	Markdown   string            `json:"markdown,omitempty"`
	Structured *StructuredResult `json:"structured,omitempty"`

	// Result is the normalized payload both formats are rendered from.
	Result *types.RecallResult `json:"-"`
}

// StructuredResult mirrors the prior flat API shape for backward-compatible
// consumers.
type StructuredResult struct {
	Episodes         []types.EpisodeResult   `json:"episodes"`
	Facts            []string                `json:"facts"`
	InvalidatedFacts []types.InvalidatedFact `json:"invalidatedFacts"`
	Entity           *types.Entity           `json:"entity,omitempty"`
	QueryType        types.QueryType         `json:"queryType"`
	TokensDropped    int                     `json:"tokensDropped"`
	TokensTotal      int                     `json:"tokensTotal"`
}
