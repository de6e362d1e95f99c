package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Router classifies a free-text intent into a structured retrieval plan
// using one fast label ANN lookup followed by one structured LLM call.
type Router struct {
	vectors    storage.VectorStore
	relational storage.RelationalStore
	embedder   llm.Embedder
	generator  llm.StructuredGenerator
	logger     *slog.Logger

	labelThreshold float64
}

// NewRouter wires a router from its dependencies.
func NewRouter(vectors storage.VectorStore, relational storage.RelationalStore, embedder llm.Embedder, generator llm.StructuredGenerator, labelThreshold float64, logger *slog.Logger) *Router {
	if labelThreshold <= 0 {
		labelThreshold = DefaultLabelThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		vectors:        vectors,
		relational:     relational,
		embedder:       embedder,
		generator:      generator,
		labelThreshold: labelThreshold,
		logger:         logger,
	}
}

// SearchLabels embeds the intent and ANN-searches the label namespace,
// scoped to one workspace. Embedding failure or zero matches yield an
// empty list, never an error: routing must always proceed.
func (r *Router) SearchLabels(ctx context.Context, intent, workspaceID string, limit int) []types.LabelMatch {
	if limit <= 0 {
		limit = DefaultLabelSearchLimit
	}

	vec, err := r.embedder.Embed(ctx, intent)
	if err != nil || len(vec) == 0 {
		if err != nil {
			r.logger.Warn("label routing: embedding failed", "error", err)
		}
		return nil
	}

	hits, err := r.vectors.Search(ctx, vec, storage.NamespaceLabels, workspaceID, limit, r.labelThreshold)
	if err != nil {
		r.logger.Warn("label routing: vector search failed", "error", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	names, err := r.relational.LabelNames(ctx, ids)
	if err != nil {
		r.logger.Warn("label routing: name lookup failed", "error", err)
		return nil
	}

	matches := make([]types.LabelMatch, 0, len(hits))
	for _, h := range hits {
		name, ok := names[h.ID]
		if !ok {
			continue
		}
		matches = append(matches, types.LabelMatch{ID: h.ID, Name: name, Score: h.Score})
	}
	return matches
}

// extractionOutput is the raw JSON shape returned by the extraction model.
type extractionOutput struct {
	Aspects        []string              `json:"aspects"`
	QueryType      string                `json:"queryType"`
	Temporal       *types.TemporalFilter `json:"temporal"`
	ShouldSearch   *bool                 `json:"shouldSearch"`
	EntityHints    []string              `json:"entityHints"`
	SelectedLabels []string              `json:"selectedLabels"`
	LookupMode     string                `json:"lookupMode"`
	AttributeHint  string                `json:"attributeHint"`
	Confidence     float64               `json:"confidence"`
}

// ExtractAspects runs the structured extraction call. On any failure it
// returns the safe default: an exploratory search at low confidence.
// Extraction failure must never propagate as an error to the caller.
func (r *Router) ExtractAspects(ctx context.Context, intent string, matched []types.LabelMatch) *types.RouterOutput {
	var raw extractionOutput
	err := r.generator.GenerateJSON(ctx, routerSystemPrompt, buildRouterPrompt(intent, matched), &raw)
	if err != nil {
		r.logger.Warn("aspect extraction failed, using safe default", "error", err)
		return safeDefaultOutput(matched)
	}

	out := &types.RouterOutput{
		MatchedLabels: matched,
		Aspects:       types.FilterValidAspects(raw.Aspects),
		QueryType:     types.ParseQueryType(raw.QueryType),
		EntityHints:   raw.EntityHints,
		AttributeHint: raw.AttributeHint,
		Confidence:    clamp01(raw.Confidence),
		ShouldSearch:  true,
	}
	if raw.ShouldSearch != nil {
		out.ShouldSearch = *raw.ShouldSearch
	}

	// The prompt forbids inventing label names, but the model is not a
	// contract enforcer. Keep only selections that echo a matched name.
	out.SelectedLabels = filterToMatched(raw.SelectedLabels, matched)

	if raw.Temporal != nil {
		if verr := raw.Temporal.Validate(); verr == nil {
			out.Temporal = raw.Temporal
		} else {
			r.logger.Warn("dropping invalid temporal filter", "error", verr)
		}
	}

	if out.QueryType == types.QueryTypeEntityLookup {
		switch types.LookupMode(raw.LookupMode) {
		case types.LookupModeAttribute:
			out.LookupMode = types.LookupModeAttribute
		default:
			out.LookupMode = types.LookupModeBroad
		}
	}
	return out
}

// RouteIntent runs label search then aspect extraction, sequentially: the
// label context feeds the extraction prompt. Stamps routing latency.
func (r *Router) RouteIntent(ctx context.Context, intent, workspaceID string) *types.RouterOutput {
	start := time.Now()
	matched := r.SearchLabels(ctx, intent, workspaceID, DefaultLabelSearchLimit)
	out := r.ExtractAspects(ctx, intent, matched)
	out.RoutingTimeMs = time.Since(start).Milliseconds()
	return out
}

// ShouldProceed is the single gate that turns a greeting or meta-question
// into an empty result with zero downstream cost.
func ShouldProceed(out *types.RouterOutput) bool {
	return out.ShouldSearch && out.Confidence >= MinRoutingConfidence
}

// MatchedLabelIDs resolves the effective label id set. LLM-selected labels
// are resolved by case-insensitive exact name match against the ANN
// matches — ids are never invented. Without a selection, any match at or
// above threshold qualifies.
func MatchedLabelIDs(out *types.RouterOutput, threshold float64) []string {
	if len(out.SelectedLabels) > 0 {
		var ids []string
		for _, sel := range out.SelectedLabels {
			for _, m := range out.MatchedLabels {
				if strings.EqualFold(m.Name, sel) {
					ids = append(ids, m.ID)
					break
				}
			}
		}
		return ids
	}

	var ids []string
	for _, m := range out.MatchedLabels {
		if m.Score >= threshold {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// safeDefaultOutput is the degraded routing decision used when extraction
// fails: search broadly, admit low confidence.
func safeDefaultOutput(matched []types.LabelMatch) *types.RouterOutput {
	return &types.RouterOutput{
		MatchedLabels: matched,
		QueryType:     types.QueryTypeExploratory,
		ShouldSearch:  true,
		Confidence:    0.3,
	}
}

func filterToMatched(selected []string, matched []types.LabelMatch) []string {
	if len(selected) == 0 || len(matched) == 0 {
		return nil
	}
	var kept []string
	for _, sel := range selected {
		for _, m := range matched {
			if strings.EqualFold(m.Name, sel) {
				kept = append(kept, sel)
				break
			}
		}
	}
	return kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
