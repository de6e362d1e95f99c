package storage

import (
	"context"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// VectorStore is the namespace-partitioned approximate-nearest-neighbor
// index over embeddings, multi-tenant by owner id.
type VectorStore interface {
	// Search returns up to limit hits from the namespace whose cosine
	// similarity to vector is at least threshold, sorted by score
	// descending. A threshold of 0 disables score filtering. Every search
	// is scoped to ownerID; an empty owner returns ErrMissingOwner.
	Search(ctx context.Context, vector []float32, ns Namespace, ownerID string, limit int, threshold float64) ([]VectorHit, error)

	// BatchScore scores a known, caller-supplied id set against a query
	// vector without ANN search at all. Used when candidates already came
	// from a graph traversal and only need ranking. IDs absent from the
	// namespace are simply missing from the returned map.
	BatchScore(ctx context.Context, vector []float32, ns Namespace, ids []string) (map[string]float64, error)

	// Upsert writes an embedding row with idempotent semantics: the same
	// ID written twice leaves exactly one row matching the latest write.
	Upsert(ctx context.Context, ns Namespace, rec VectorRecord) error
}

// GraphStore is the read contract over the temporal knowledge graph:
// entities, statements, episodes, and their provenance links. Writers live
// in the ingestion pipeline, outside this engine.
type GraphStore interface {
	// EpisodesByAspects fetches episodes whose statements match the
	// filter's labels and aspects inside its time window.
	EpisodesByAspects(ctx context.Context, userID string, filter EpisodeFilter) ([]types.Episode, error)

	// EpisodesByEntities fetches episodes provenance-linked to any of the
	// given entity uuids.
	EpisodesByEntities(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Episode, error)

	// EpisodesByTimeRange fetches episodes created inside the filter's
	// window, optionally narrowed by labels and aspects.
	EpisodesByTimeRange(ctx context.Context, userID string, filter EpisodeFilter) ([]types.Episode, error)

	// EpisodesByLabels fetches episodes carrying any of the given labels.
	// The broadest read; used by the exploratory handler.
	EpisodesByLabels(ctx context.Context, userID string, labelIDs []string, limit int) ([]types.Episode, error)

	// ConnectingStatements finds statements linking two entities, newest
	// first.
	ConnectingStatements(ctx context.Context, userID, entityA, entityB string, limit int) ([]types.Statement, error)

	// StatementsForEpisodes fetches every statement ever provenance-linked
	// to the given episodes, including invalidated ones.
	StatementsForEpisodes(ctx context.Context, userID string, episodeIDs []string) ([]types.Statement, error)

	// EntitiesByUUID resolves full entity nodes by uuid.
	EntitiesByUUID(ctx context.Context, userID string, uuids []string) ([]types.Entity, error)
}

// RelationalStore covers the point lookups and the analytics write that
// back compaction and routing.
type RelationalStore interface {
	// CompactedSession looks up the summary document for a session, if the
	// external batch job has produced one. Returns ErrNotFound otherwise.
	CompactedSession(ctx context.Context, workspaceID, sessionID string, epType types.EpisodeType) (*types.CompactedSession, error)

	// LabelNames resolves label ids to names.
	LabelNames(ctx context.Context, ids []string) (map[string]string, error)

	// InsertSearchLog writes one analytics row per completed search.
	// Callers invoke it fire-and-forget.
	InsertSearchLog(ctx context.Context, entry SearchLog) error

	// SourceCounts aggregates the user's episodes by source. A zero since
	// time means all history; episodes without a source count as "unknown".
	SourceCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error)

	// EpisodeContents returns the content of every episode the user wrote
	// after since, newest first. A zero since time means all history.
	EpisodeContents(ctx context.Context, userID string, since time.Time) ([]string, error)

	// ActivitySpan returns the creation times of the user's oldest and
	// newest episodes after since, plus the total count. A zero count comes
	// back with zero times and no error.
	ActivitySpan(ctx context.Context, userID string, since time.Time) (oldest, newest time.Time, total int, err error)
}
