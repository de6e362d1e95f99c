package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Hand-written fakes with function fields: a nil field means "not expected
// to be called" and returns a zero value.

type fakeVectorStore struct {
	searchFn     func(ctx context.Context, vector []float32, ns storage.Namespace, ownerID string, limit int, threshold float64) ([]storage.VectorHit, error)
	batchScoreFn func(ctx context.Context, vector []float32, ns storage.Namespace, ids []string) (map[string]float64, error)

	searchCalls     int
	batchScoreCalls int
}

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, ns storage.Namespace, ownerID string, limit int, threshold float64) ([]storage.VectorHit, error) {
	f.searchCalls++
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, vector, ns, ownerID, limit, threshold)
}

func (f *fakeVectorStore) BatchScore(ctx context.Context, vector []float32, ns storage.Namespace, ids []string) (map[string]float64, error) {
	f.batchScoreCalls++
	if f.batchScoreFn == nil {
		return nil, nil
	}
	return f.batchScoreFn(ctx, vector, ns, ids)
}

func (f *fakeVectorStore) Upsert(ctx context.Context, ns storage.Namespace, rec storage.VectorRecord) error {
	return nil
}

type fakeGraphStore struct {
	byAspectsFn   func(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error)
	byEntitiesFn  func(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Episode, error)
	byTimeRangeFn func(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error)
	byLabelsFn    func(ctx context.Context, userID string, labelIDs []string, limit int) ([]types.Episode, error)
	connectingFn  func(ctx context.Context, userID, entityA, entityB string, limit int) ([]types.Statement, error)
	forEpisodesFn func(ctx context.Context, userID string, episodeIDs []string) ([]types.Statement, error)
	entitiesFn    func(ctx context.Context, userID string, uuids []string) ([]types.Entity, error)

	calls int
}

func (f *fakeGraphStore) EpisodesByAspects(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error) {
	f.calls++
	if f.byAspectsFn == nil {
		return nil, nil
	}
	return f.byAspectsFn(ctx, userID, filter)
}

func (f *fakeGraphStore) EpisodesByEntities(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Episode, error) {
	f.calls++
	if f.byEntitiesFn == nil {
		return nil, nil
	}
	return f.byEntitiesFn(ctx, userID, entityIDs, limit)
}

func (f *fakeGraphStore) EpisodesByTimeRange(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error) {
	f.calls++
	if f.byTimeRangeFn == nil {
		return nil, nil
	}
	return f.byTimeRangeFn(ctx, userID, filter)
}

func (f *fakeGraphStore) EpisodesByLabels(ctx context.Context, userID string, labelIDs []string, limit int) ([]types.Episode, error) {
	f.calls++
	if f.byLabelsFn == nil {
		return nil, nil
	}
	return f.byLabelsFn(ctx, userID, labelIDs, limit)
}

func (f *fakeGraphStore) ConnectingStatements(ctx context.Context, userID, entityA, entityB string, limit int) ([]types.Statement, error) {
	f.calls++
	if f.connectingFn == nil {
		return nil, nil
	}
	return f.connectingFn(ctx, userID, entityA, entityB, limit)
}

func (f *fakeGraphStore) StatementsForEpisodes(ctx context.Context, userID string, episodeIDs []string) ([]types.Statement, error) {
	f.calls++
	if f.forEpisodesFn == nil {
		return nil, nil
	}
	return f.forEpisodesFn(ctx, userID, episodeIDs)
}

func (f *fakeGraphStore) EntitiesByUUID(ctx context.Context, userID string, uuids []string) ([]types.Entity, error) {
	f.calls++
	if f.entitiesFn == nil {
		return nil, nil
	}
	return f.entitiesFn(ctx, userID, uuids)
}

type fakeRelationalStore struct {
	compactedFn    func(ctx context.Context, workspaceID, sessionID string, epType types.EpisodeType) (*types.CompactedSession, error)
	labelNamesFn   func(ctx context.Context, ids []string) (map[string]string, error)
	sourceCountsFn func(ctx context.Context, userID string, since time.Time) (map[string]int, error)
	contentsFn     func(ctx context.Context, userID string, since time.Time) ([]string, error)
	activitySpanFn func(ctx context.Context, userID string, since time.Time) (time.Time, time.Time, int, error)

	mu         sync.Mutex
	searchLogs []storage.SearchLog
	logDone    chan struct{}
}

func (f *fakeRelationalStore) CompactedSession(ctx context.Context, workspaceID, sessionID string, epType types.EpisodeType) (*types.CompactedSession, error) {
	if f.compactedFn == nil {
		return nil, storage.ErrNotFound
	}
	return f.compactedFn(ctx, workspaceID, sessionID, epType)
}

func (f *fakeRelationalStore) LabelNames(ctx context.Context, ids []string) (map[string]string, error) {
	if f.labelNamesFn == nil {
		return map[string]string{}, nil
	}
	return f.labelNamesFn(ctx, ids)
}

func (f *fakeRelationalStore) InsertSearchLog(ctx context.Context, entry storage.SearchLog) error {
	f.mu.Lock()
	f.searchLogs = append(f.searchLogs, entry)
	f.mu.Unlock()
	if f.logDone != nil {
		select {
		case f.logDone <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *fakeRelationalStore) SourceCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	if f.sourceCountsFn == nil {
		return map[string]int{}, nil
	}
	return f.sourceCountsFn(ctx, userID, since)
}

func (f *fakeRelationalStore) EpisodeContents(ctx context.Context, userID string, since time.Time) ([]string, error) {
	if f.contentsFn == nil {
		return nil, nil
	}
	return f.contentsFn(ctx, userID, since)
}

func (f *fakeRelationalStore) ActivitySpan(ctx context.Context, userID string, since time.Time) (time.Time, time.Time, int, error) {
	if f.activitySpanFn == nil {
		return time.Time{}, time.Time{}, 0, nil
	}
	return f.activitySpanFn(ctx, userID, since)
}

func (f *fakeRelationalStore) loggedSearches() []storage.SearchLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.SearchLog, len(f.searchLogs))
	copy(out, f.searchLogs)
	return out
}

type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.embedFn == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.embedFn(ctx, text)
}

func (f *fakeEmbedder) GetModel() string { return "fake-embedder" }

type fakeGenerator struct {
	generateFn func(ctx context.Context, system, user string, out any) error
	lastUser   string
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system, user string, out any) error {
	f.lastUser = user
	if f.generateFn == nil {
		return errors.New("generator not configured")
	}
	return f.generateFn(ctx, system, user, out)
}

func (f *fakeGenerator) GetModel() string { return "fake-generator" }

type fakeCrossEncoder struct {
	rerankFn func(ctx context.Context, query string, documents []string, topN int) ([]llm.RankedDocument, error)
	calls    int
}

func (f *fakeCrossEncoder) Rerank(ctx context.Context, query string, documents []string, topN int) ([]llm.RankedDocument, error) {
	f.calls++
	if f.rerankFn == nil {
		return nil, errors.New("cross encoder not configured")
	}
	return f.rerankFn(ctx, query, documents, topN)
}

// routedExtraction configures a generator that writes a fixed extraction
// payload into the output value.
func routedExtraction(payload extractionOutput) *fakeGenerator {
	return &fakeGenerator{
		generateFn: func(ctx context.Context, system, user string, out any) error {
			target, ok := out.(*extractionOutput)
			if !ok {
				return errors.New("unexpected output type")
			}
			*target = payload
			return nil
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(v bool) *bool { return &v }

func timePtr(t time.Time) *time.Time { return &t }
