package engine

import (
	"context"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// dispatch routes the request to the handler for its query type. Unknown
// types have already been folded into aspect_query by ParseQueryType, but
// the default arm keeps the fallback explicit.
func (e *Engine) dispatch(ctx context.Context, userID string, route *types.RouterOutput, labelIDs []string, opts SearchOptions) (*handlerResult, error) {
	switch route.QueryType {
	case types.QueryTypeEntityLookup:
		return e.handleEntityLookup(ctx, userID, route, opts)
	case types.QueryTypeTemporal:
		return e.handleTemporal(ctx, userID, route, labelIDs, opts)
	case types.QueryTypeExploratory:
		return e.handleExploratory(ctx, userID, labelIDs, opts)
	case types.QueryTypeRelationship:
		return e.handleRelationship(ctx, userID, route, opts)
	default:
		return e.handleAspectQuery(ctx, userID, route, labelIDs, opts)
	}
}

// handleAspectQuery fetches episodes whose statements match the labels and
// aspects inside the temporal window.
func (e *Engine) handleAspectQuery(ctx context.Context, userID string, route *types.RouterOutput, labelIDs []string, opts SearchOptions) (*handlerResult, error) {
	start, end := resolveWindow(route, opts, time.Now())
	episodes, err := e.graph.EpisodesByAspects(ctx, userID, storage.EpisodeFilter{
		LabelIDs: labelIDs,
		Aspects:  route.Aspects,
		Window:   storage.TimeWindow{Start: start, End: end},
		Limit:    opts.maxEpisodes(DefaultMaxEpisodes),
	})
	if err != nil {
		return nil, err
	}
	return &handlerResult{Episodes: episodes}, nil
}

// handleEntityLookup resolves entity hints through the entity namespace and
// either answers from entity attributes (the fast path) or fetches the
// episodes connected to the resolved entities.
func (e *Engine) handleEntityLookup(ctx context.Context, userID string, route *types.RouterOutput, opts SearchOptions) (*handlerResult, error) {
	entityIDs := e.resolveEntityHints(ctx, userID, route.EntityHints, DefaultEntityLimit)
	if len(entityIDs) == 0 {
		// Nothing resolved is a null result, not an error.
		return nil, nil
	}

	entities, err := e.graph.EntitiesByUUID(ctx, userID, entityIDs)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}

	if route.LookupMode == types.LookupModeAttribute && route.AttributeHint != "" {
		if matched := entitiesWithAttribute(entities, route.AttributeHint); len(matched) > 0 {
			// Fast path: the answer is on the entity record. No episode
			// fetch at all.
			return &handlerResult{Entities: matched, EntityOnly: true}, nil
		}
	}

	episodes, err := e.graph.EpisodesByEntities(ctx, userID, entityIDs, opts.maxEpisodes(DefaultMaxEpisodes))
	if err != nil {
		return nil, err
	}
	return &handlerResult{Episodes: episodes, Entities: entities}, nil
}

// handleTemporal fetches episodes in the effective window, defaulting to
// the last DefaultTemporalDays days when the router extracted no filter.
func (e *Engine) handleTemporal(ctx context.Context, userID string, route *types.RouterOutput, labelIDs []string, opts SearchOptions) (*handlerResult, error) {
	now := time.Now()
	start, end := resolveWindow(route, opts, now)
	if start.IsZero() && end.IsZero() {
		start = now.AddDate(0, 0, -DefaultTemporalDays)
		end = now
	}

	episodes, err := e.graph.EpisodesByTimeRange(ctx, userID, storage.EpisodeFilter{
		LabelIDs: labelIDs,
		Aspects:  route.Aspects,
		Window:   storage.TimeWindow{Start: start, End: end},
		Limit:    opts.maxEpisodes(DefaultTemporalEpisodes),
	})
	if err != nil {
		return nil, err
	}
	return &handlerResult{Episodes: episodes}, nil
}

// handleExploratory is the broadest handler: labels only, no aspect or
// entity constraint.
func (e *Engine) handleExploratory(ctx context.Context, userID string, labelIDs []string, opts SearchOptions) (*handlerResult, error) {
	episodes, err := e.graph.EpisodesByLabels(ctx, userID, labelIDs, opts.maxEpisodes(DefaultMaxEpisodes))
	if err != nil {
		return nil, err
	}
	return &handlerResult{Episodes: episodes}, nil
}

// handleRelationship finds statements connecting the first two entity
// hints. Fewer than two hints, or an unresolvable hint, yields an empty
// statement list rather than a degraded search.
func (e *Engine) handleRelationship(ctx context.Context, userID string, route *types.RouterOutput, opts SearchOptions) (*handlerResult, error) {
	if len(route.EntityHints) < 2 {
		return &handlerResult{}, nil
	}

	first := e.resolveEntityHints(ctx, userID, route.EntityHints[:1], 1)
	second := e.resolveEntityHints(ctx, userID, route.EntityHints[1:2], 1)
	if len(first) == 0 || len(second) == 0 {
		return &handlerResult{}, nil
	}

	statements, err := e.graph.ConnectingStatements(ctx, userID, first[0], second[0], opts.maxStatements())
	if err != nil {
		return nil, err
	}
	return &handlerResult{Statements: statements}, nil
}

// resolveEntityHints embeds each hint and ANN-searches the entity
// namespace, deduplicating by uuid and preserving hint order. A hint that
// fails to embed or match is skipped.
func (e *Engine) resolveEntityHints(ctx context.Context, userID string, hints []string, limitPerHint int) []string {
	seen := make(map[string]bool)
	var ids []string

	for _, hint := range hints {
		hint = strings.TrimSpace(hint)
		if hint == "" {
			continue
		}
		vec, err := e.embedder.Embed(ctx, hint)
		if err != nil || len(vec) == 0 {
			if err != nil {
				e.logger.Warn("entity hint embedding failed", "hint", hint, "error", err)
			}
			continue
		}
		hits, err := e.vectors.Search(ctx, vec, storage.NamespaceEntities, userID, limitPerHint, DefaultEntityThreshold)
		if err != nil {
			e.logger.Warn("entity hint search failed", "hint", hint, "error", err)
			continue
		}
		for _, h := range hits {
			if !seen[h.ID] {
				seen[h.ID] = true
				ids = append(ids, h.ID)
			}
		}
	}
	return ids
}

// entitiesWithAttribute returns the entities whose attribute map has a key
// containing hint, case-insensitively.
func entitiesWithAttribute(entities []types.Entity, hint string) []types.Entity {
	hint = strings.ToLower(hint)
	var matched []types.Entity
	for _, ent := range entities {
		for key := range ent.Attributes {
			if strings.Contains(strings.ToLower(key), hint) {
				matched = append(matched, ent)
				break
			}
		}
	}
	return matched
}

// resolveWindow picks the effective time window: explicit request options
// win over the router's temporal filter.
func resolveWindow(route *types.RouterOutput, opts SearchOptions, now time.Time) (start, end time.Time) {
	if opts.StartTime != nil || opts.EndTime != nil {
		if opts.StartTime != nil {
			start = *opts.StartTime
		}
		if opts.EndTime != nil {
			end = *opts.EndTime
		}
		return start, end
	}
	return route.Temporal.Window(now)
}
