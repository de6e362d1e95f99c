package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// openTestStore connects to the database named by RECALL_TEST_DATABASE_URL
// and applies the schema. Tests are skipped when the variable is unset, so
// the suite stays runnable without a local pgvector instance.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RECALL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RECALL_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn, 3, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestIntegration_UpsertAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := uuid.NewString()

	near := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "near", Vector: []float32{1, 0, 0}}
	far := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "far", Vector: []float32{0, 1, 0}}
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, near))
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, far))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, storage.NamespaceEpisodes, owner, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, near.ID, hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIntegration_SearchThresholdFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := uuid.NewString()

	near := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "near", Vector: []float32{1, 0, 0}}
	orthogonal := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "orthogonal", Vector: []float32{0, 0, 1}}
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, near))
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, orthogonal))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, storage.NamespaceEpisodes, owner, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near.ID, hits[0].ID)
}

func TestIntegration_SearchIsOwnerScoped(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := uuid.NewString()
	stranger := uuid.NewString()

	rec := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "mine", Vector: []float32{1, 0, 0}}
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, rec))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, storage.NamespaceEpisodes, stranger, 10, 0)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, rec.ID, h.ID, "another owner's rows must never leak")
	}
}

func TestIntegration_UpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := uuid.NewString()
	id := uuid.NewString()

	first := storage.VectorRecord{ID: id, OwnerID: owner, Content: "v1", Vector: []float32{1, 0, 0}}
	second := storage.VectorRecord{ID: id, OwnerID: owner, Content: "v2", Vector: []float32{0, 1, 0}}
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, first))
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, second))

	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM episodes WHERE uuid = $1`, id).Scan(&count))
	assert.Equal(t, 1, count)

	scores, err := store.BatchScore(ctx, []float32{0, 1, 0}, storage.NamespaceEpisodes, []string{id})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scores[id], 1e-6, "the latest embedding wins")
}

func TestIntegration_BatchScoreSkipsMissingIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	owner := uuid.NewString()

	rec := storage.VectorRecord{ID: uuid.NewString(), OwnerID: owner, Content: "x", Vector: []float32{1, 0, 0}}
	require.NoError(t, store.Upsert(ctx, storage.NamespaceEpisodes, rec))

	missing := uuid.NewString()
	scores, err := store.BatchScore(ctx, []float32{1, 0, 0}, storage.NamespaceEpisodes, []string{rec.ID, missing})
	require.NoError(t, err)
	assert.Contains(t, scores, rec.ID)
	assert.NotContains(t, scores, missing)
}

func TestIntegration_CompactedSessionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CompactedSession(context.Background(), uuid.NewString(), uuid.NewString(), types.EpisodeTypeConversation)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_SearchLogRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	err := store.InsertSearchLog(ctx, storage.SearchLog{
		UserID:        userID,
		Query:         "what did we decide?",
		QueryType:     types.QueryTypeAspect,
		Source:        "test",
		EpisodeCount:  2,
		RoutingTimeMs: 12,
		TotalTimeMs:   48,
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT count(*) FROM search_logs WHERE user_id = $1`, userID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIntegration_EnsureVectorIndexes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnsureVectorIndexes(ctx))
	// Second call is served by the in-process flag.
	require.NoError(t, store.EnsureVectorIndexes(ctx))

	var exists bool
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_episodes_embedding_hnsw')`).Scan(&exists))
	assert.True(t, exists)
}

func TestIntegration_EpisodeAggregates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	insert := func(id, source, content string, createdAt time.Time) {
		_, err := store.DB().ExecContext(ctx,
			`INSERT INTO episodes (uuid, user_id, content, source, created_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5)`,
			id, userID, content, source, createdAt)
		require.NoError(t, err)
	}
	oldest := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	newest := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	insert(uuid.NewString(), "slack", "first note.", oldest)
	insert(uuid.NewString(), "slack", "second note.", oldest.Add(48*time.Hour))
	insert(uuid.NewString(), "", "untagged note.", newest)

	counts, err := store.SourceCounts(ctx, userID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, counts["slack"])
	assert.Equal(t, 1, counts["unknown"])

	contents, err := store.EpisodeContents(ctx, userID, time.Time{})
	require.NoError(t, err)
	require.Len(t, contents, 3)
	assert.Equal(t, "untagged note.", contents[0], "newest first")

	gotOldest, gotNewest, total, err := store.ActivitySpan(ctx, userID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.True(t, gotOldest.Equal(oldest))
	assert.True(t, gotNewest.Equal(newest))

	// A since cutoff narrows every aggregate the same way.
	counts, err = store.SourceCounts(ctx, userID, newest.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"unknown": 1}, counts)
}

func TestIntegration_ActivitySpanEmptyHistory(t *testing.T) {
	store := openTestStore(t)

	oldest, newest, total, err := store.ActivitySpan(context.Background(), uuid.NewString(), time.Time{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.True(t, oldest.IsZero())
	assert.True(t, newest.IsZero())
}
