package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Compactor collapses dense session-episode clusters into their
// pre-generated summary documents.
type Compactor struct {
	relational storage.RelationalStore
	logger     *slog.Logger

	// minEpisodes: a session group is substituted only when it has
	// strictly more members than this.
	minEpisodes int
}

// NewCompactor wires the compaction stage.
func NewCompactor(relational storage.RelationalStore, minEpisodes int, logger *slog.Logger) *Compactor {
	if minEpisodes <= 0 {
		minEpisodes = DefaultCompactMinEpisodes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{relational: relational, minEpisodes: minEpisodes, logger: logger}
}

// Compact substitutes qualifying session groups with their compacted
// summary document. A group qualifies only when it has more than
// minEpisodes members AND a compact document exists; everything else
// passes through unchanged. Document-type and session-less episodes are
// never grouped. Each session contributes at most one output item, placed
// at its highest-ranked member's position.
//
// A missing compact document is an expected condition, not an error; any
// other lookup failure is logged and the group passes through raw.
func (c *Compactor) Compact(ctx context.Context, workspaceID string, items []types.EpisodeResult) []types.EpisodeResult {
	if len(items) == 0 {
		return items
	}

	groups := make(map[string][]types.EpisodeResult)
	for _, item := range items {
		if item.SessionID == "" || item.Type == types.EpisodeTypeDocument || item.IsCompact {
			continue
		}
		groups[item.SessionID] = append(groups[item.SessionID], item)
	}

	// Decide substitution per session up front.
	substitutes := make(map[string]types.EpisodeResult)
	for sessionID, members := range groups {
		if len(members) <= c.minEpisodes {
			continue
		}
		doc, err := c.relational.CompactedSession(ctx, workspaceID, sessionID, types.EpisodeTypeConversation)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				c.logger.Warn("compacted session lookup failed", "session", sessionID, "error", err)
			}
			continue
		}
		substitutes[sessionID] = compactResult(doc, members)
	}

	emitted := make(map[string]bool)
	out := make([]types.EpisodeResult, 0, len(items))
	for _, item := range items {
		sub, isSubstituted := substitutes[item.SessionID]
		if item.SessionID == "" || item.Type == types.EpisodeTypeDocument || item.IsCompact || !isSubstituted {
			out = append(out, item)
			continue
		}
		if !emitted[item.SessionID] {
			emitted[item.SessionID] = true
			out = append(out, sub)
		}
	}
	return out
}

// compactResult builds the synthetic item standing in for a session group:
// the document's identity and content, the union of all member label sets,
// and the maximum member relevance.
func compactResult(doc *types.CompactedSession, members []types.EpisodeResult) types.EpisodeResult {
	labelSet := make(map[string]bool)
	maxScore := members[0].RelevanceScore
	for _, m := range members {
		for _, id := range m.LabelIDs {
			labelSet[id] = true
		}
		if m.RelevanceScore > maxScore {
			maxScore = m.RelevanceScore
		}
	}
	labels := make([]string, 0, len(labelSet))
	for id := range labelSet {
		labels = append(labels, id)
	}
	sort.Strings(labels)

	return types.EpisodeResult{
		ID:             doc.ID,
		Content:        doc.Content,
		CreatedAt:      doc.CreatedAt,
		Type:           doc.Type,
		SessionID:      doc.SessionID,
		LabelIDs:       labels,
		RelevanceScore: maxScore,
		IsCompact:      true,
	}
}
