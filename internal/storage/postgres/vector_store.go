package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/storage"
)

// nsMapping ties one embedding namespace to its physical table. The content
// column is what Upsert writes and what rerank fallbacks read.
type nsMapping struct {
	ns         storage.Namespace
	table      string
	idColumn   string
	ownerCol   string
	contentCol string
}

func namespaceTables() []nsMapping {
	return []nsMapping{
		{storage.NamespaceStatements, "statements", "uuid", "user_id", "fact"},
		{storage.NamespaceEpisodes, "episodes", "uuid", "user_id", "content"},
		{storage.NamespaceEntities, "entities", "uuid", "user_id", "name"},
		{storage.NamespaceCompactSessions, "compact_sessions", "id", "workspace_id", "content"},
		{storage.NamespaceLabels, "labels", "id", "workspace_id", "name"},
	}
}

func mappingFor(ns storage.Namespace) (nsMapping, error) {
	for _, m := range namespaceTables() {
		if m.ns == ns {
			return m, nil
		}
	}
	return nsMapping{}, fmt.Errorf("postgres: unknown namespace %q: %w", ns, storage.ErrInvalidInput)
}

// Search performs ANN search over one namespace, scoped to a single owner.
//
// The query is deliberately two-stage. Combining a similarity-threshold
// predicate with ORDER BY distance in one clause set defeats HNSW index
// usage and forces a full scan, so the inner stage selects top-K nearest
// neighbors by distance alone and the outer stage applies the score
// threshold and re-limits. K expands to max(limit*2, 100) when a threshold
// is set, since threshold filtering can discard most of the inner page.
func (s *Store) Search(ctx context.Context, vector []float32, ns storage.Namespace, ownerID string, limit int, threshold float64) ([]storage.VectorHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("postgres: search %s: %w", ns, storage.ErrMissingOwner)
	}
	m, err := mappingFor(ns)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	vec := pgvector.NewVector(vector)

	if threshold <= 0 {
		querySQL := fmt.Sprintf(`
			SELECT %s, 1 - (embedding <=> $1::vector) AS score
			FROM %s
			WHERE %s = $2 AND embedding IS NOT NULL
			ORDER BY embedding <=> $1::vector
			LIMIT $3
		`, m.idColumn, m.table, m.ownerCol)
		return s.scanHits(ctx, querySQL, vec, ownerID, limit)
	}

	expandedLimit := limit * 2
	if expandedLimit < 100 {
		expandedLimit = 100
	}
	querySQL := fmt.Sprintf(`
		SELECT id, score FROM (
			SELECT %s AS id, 1 - (embedding <=> $1::vector) AS score
			FROM %s
			WHERE %s = $2 AND embedding IS NOT NULL
			ORDER BY embedding <=> $1::vector
			LIMIT $3
		) nearest
		WHERE score >= $4
		ORDER BY score DESC
		LIMIT $5
	`, m.idColumn, m.table, m.ownerCol)

	rows, err := s.db.QueryContext(ctx, querySQL, vec, ownerID, expandedLimit, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search %s: %w", ns, err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.VectorHit
	for rows.Next() {
		var h storage.VectorHit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("postgres: search %s scan: %w", ns, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search %s rows: %w", ns, err)
	}
	return hits, nil
}

func (s *Store) scanHits(ctx context.Context, querySQL string, args ...any) ([]storage.VectorHit, error) {
	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.VectorHit
	for rows.Next() {
		var h storage.VectorHit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("postgres: vector scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector rows: %w", err)
	}
	return hits, nil
}

// BatchScore scores a caller-supplied id set against a query vector. No ANN
// search happens at all; this is a point read over the id list, used when
// candidates already came from a graph traversal and only need ranking.
func (s *Store) BatchScore(ctx context.Context, vector []float32, ns storage.Namespace, ids []string) (map[string]float64, error) {
	m, err := mappingFor(ns)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 || len(ids) == 0 {
		return map[string]float64{}, nil
	}

	querySQL := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1::vector)
		FROM %s
		WHERE %s = ANY($2) AND embedding IS NOT NULL
	`, m.idColumn, m.table, m.idColumn)

	rows, err := s.db.QueryContext(ctx, querySQL, pgvector.NewVector(vector), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: batch score %s: %w", ns, err)
	}
	defer func() { _ = rows.Close() }()

	scores := make(map[string]float64, len(ids))
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("postgres: batch score %s scan: %w", ns, err)
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: batch score %s rows: %w", ns, err)
	}
	return scores, nil
}

// Upsert writes an embedding row with idempotent semantics: writing the
// same id twice leaves one row matching the latest write. Domain columns
// beyond id/owner/content are owned by the ingestion pipeline and are left
// untouched on conflict.
func (s *Store) Upsert(ctx context.Context, ns storage.Namespace, rec storage.VectorRecord) error {
	if rec.OwnerID == "" {
		return fmt.Errorf("postgres: upsert %s: %w", ns, storage.ErrMissingOwner)
	}
	m, err := mappingFor(ns)
	if err != nil {
		return err
	}

	querySQL := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			embedding = EXCLUDED.embedding
	`, m.table, m.idColumn, m.ownerCol, m.contentCol,
		m.idColumn, m.contentCol, m.contentCol)

	if _, err := s.db.ExecContext(ctx, querySQL, rec.ID, rec.OwnerID, rec.Content, pgvector.NewVector(rec.Vector)); err != nil {
		return fmt.Errorf("postgres: upsert %s %s: %w", ns, rec.ID, err)
	}
	return nil
}
