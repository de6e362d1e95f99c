package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// episodeSelectColumns is the canonical SELECT column list for episode
// reads. It must match the scan order in scanEpisodeRow.
const episodeSelectColumns = `
	e.uuid, e.user_id, e.content, e.original_content, e.source, e.type,
	e.session_id, e.chunk_index, e.version, e.created_at
`

// statementSelectColumns must match the scan order in scanStatementRow.
const statementSelectColumns = `
	st.uuid, st.fact, st.aspect, st.valid_at, st.invalid_at, st.attributes
`

// EpisodesByAspects fetches episodes whose extracted statements carry one of
// the requested aspects, optionally narrowed by labels and a time window.
func (s *Store) EpisodesByAspects(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: episodes by aspects: %w", storage.ErrMissingOwner)
	}

	querySQL := `
		SELECT DISTINCT ` + episodeSelectColumns + `
		FROM episodes e
		JOIN episode_statements es ON es.episode_id = e.uuid
		JOIN statements st ON st.uuid = es.statement_id
		WHERE e.user_id = $1
		  AND (cardinality($2::text[]) = 0 OR st.aspect = ANY($2))
		  AND (cardinality($3::text[]) = 0 OR EXISTS (
			SELECT 1 FROM episode_labels el
			WHERE el.episode_id = e.uuid AND el.label_id = ANY($3)))
		  AND ($4::timestamptz IS NULL OR e.created_at >= $4)
		  AND ($5::timestamptz IS NULL OR e.created_at <= $5)
		ORDER BY e.created_at DESC
		LIMIT $6
	`
	aspects := make([]string, len(filter.Aspects))
	for i, a := range filter.Aspects {
		aspects[i] = string(a)
	}
	rows, err := s.db.QueryContext(ctx, querySQL,
		userID, pq.Array(aspects), pq.Array(filter.LabelIDs),
		nullableTime(filter.Window.Start), nullableTime(filter.Window.End),
		defaultLimit(filter.Limit, 20))
	if err != nil {
		return nil, fmt.Errorf("postgres: episodes by aspects: %w", err)
	}
	return s.collectEpisodes(ctx, rows)
}

// EpisodesByEntities fetches episodes provenance-linked to any of the given
// entities, newest first.
func (s *Store) EpisodesByEntities(ctx context.Context, userID string, entityIDs []string, limit int) ([]types.Episode, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: episodes by entities: %w", storage.ErrMissingOwner)
	}
	if len(entityIDs) == 0 {
		return nil, nil
	}

	querySQL := `
		SELECT DISTINCT ` + episodeSelectColumns + `
		FROM episodes e
		JOIN episode_statements es ON es.episode_id = e.uuid
		JOIN statement_entities se ON se.statement_id = es.statement_id
		WHERE e.user_id = $1 AND se.entity_id = ANY($2)
		ORDER BY e.created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, pq.Array(entityIDs), defaultLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("postgres: episodes by entities: %w", err)
	}
	return s.collectEpisodes(ctx, rows)
}

// EpisodesByTimeRange fetches episodes created inside the filter's window,
// optionally narrowed by labels and aspects.
func (s *Store) EpisodesByTimeRange(ctx context.Context, userID string, filter storage.EpisodeFilter) ([]types.Episode, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: episodes by time range: %w", storage.ErrMissingOwner)
	}

	querySQL := `
		SELECT ` + episodeSelectColumns + `
		FROM episodes e
		WHERE e.user_id = $1
		  AND ($2::timestamptz IS NULL OR e.created_at >= $2)
		  AND ($3::timestamptz IS NULL OR e.created_at <= $3)
		  AND (cardinality($4::text[]) = 0 OR EXISTS (
			SELECT 1 FROM episode_labels el
			WHERE el.episode_id = e.uuid AND el.label_id = ANY($4)))
		  AND (cardinality($5::text[]) = 0 OR EXISTS (
			SELECT 1 FROM episode_statements es
			JOIN statements st ON st.uuid = es.statement_id
			WHERE es.episode_id = e.uuid AND st.aspect = ANY($5)))
		ORDER BY e.created_at DESC
		LIMIT $6
	`
	aspects := make([]string, len(filter.Aspects))
	for i, a := range filter.Aspects {
		aspects[i] = string(a)
	}
	rows, err := s.db.QueryContext(ctx, querySQL,
		userID, nullableTime(filter.Window.Start), nullableTime(filter.Window.End),
		pq.Array(filter.LabelIDs), pq.Array(aspects),
		defaultLimit(filter.Limit, 10))
	if err != nil {
		return nil, fmt.Errorf("postgres: episodes by time range: %w", err)
	}
	return s.collectEpisodes(ctx, rows)
}

// EpisodesByLabels fetches episodes carrying any of the given labels. An
// empty label set means no label constraint, just the newest episodes.
func (s *Store) EpisodesByLabels(ctx context.Context, userID string, labelIDs []string, limit int) ([]types.Episode, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: episodes by labels: %w", storage.ErrMissingOwner)
	}

	querySQL := `
		SELECT ` + episodeSelectColumns + `
		FROM episodes e
		WHERE e.user_id = $1
		  AND (cardinality($2::text[]) = 0 OR EXISTS (
			SELECT 1 FROM episode_labels el
			WHERE el.episode_id = e.uuid AND el.label_id = ANY($2)))
		ORDER BY e.created_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, pq.Array(labelIDs), defaultLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("postgres: episodes by labels: %w", err)
	}
	return s.collectEpisodes(ctx, rows)
}

// ConnectingStatements finds statements that link two entities, newest
// first. Both entities must appear on the statement, in either role.
func (s *Store) ConnectingStatements(ctx context.Context, userID, entityA, entityB string, limit int) ([]types.Statement, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: connecting statements: %w", storage.ErrMissingOwner)
	}

	querySQL := `
		SELECT ` + statementSelectColumns + `
		FROM statements st
		WHERE st.user_id = $1
		  AND EXISTS (SELECT 1 FROM statement_entities a
			WHERE a.statement_id = st.uuid AND a.entity_id = $2)
		  AND EXISTS (SELECT 1 FROM statement_entities b
			WHERE b.statement_id = st.uuid AND b.entity_id = $3)
		ORDER BY st.valid_at DESC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, entityA, entityB, defaultLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting statements: %w", err)
	}
	return scanStatementRows(rows)
}

// StatementsForEpisodes fetches every statement ever provenance-linked to
// the given episodes, invalidated ones included.
func (s *Store) StatementsForEpisodes(ctx context.Context, userID string, episodeIDs []string) ([]types.Statement, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: statements for episodes: %w", storage.ErrMissingOwner)
	}
	if len(episodeIDs) == 0 {
		return nil, nil
	}

	querySQL := `
		SELECT DISTINCT ` + statementSelectColumns + `
		FROM statements st
		JOIN episode_statements es ON es.statement_id = st.uuid
		WHERE st.user_id = $1 AND es.episode_id = ANY($2)
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, pq.Array(episodeIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: statements for episodes: %w", err)
	}
	return scanStatementRows(rows)
}

// EntitiesByUUID resolves full entity nodes by uuid.
func (s *Store) EntitiesByUUID(ctx context.Context, userID string, uuids []string) ([]types.Entity, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: entities by uuid: %w", storage.ErrMissingOwner)
	}
	if len(uuids) == 0 {
		return nil, nil
	}

	querySQL := `
		SELECT uuid, user_id, name, attributes
		FROM entities
		WHERE user_id = $1 AND uuid = ANY($2)
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, pq.Array(uuids))
	if err != nil {
		return nil, fmt.Errorf("postgres: entities by uuid: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []types.Entity
	for rows.Next() {
		var ent types.Entity
		var attrs sql.NullString
		if err := rows.Scan(&ent.UUID, &ent.UserID, &ent.Name, &attrs); err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		// Attributes can arrive as a JSON object or a JSON-encoded string.
		// Malformed payloads degrade to an empty map rather than failing the read.
		if attrs.Valid {
			ent.Attributes = types.ParseAttributes(attrs.String)
		} else {
			ent.Attributes = map[string]any{}
		}
		entities = append(entities, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entity rows: %w", err)
	}
	return entities, nil
}

// collectEpisodes scans episode rows and attaches each episode's label set.
func (s *Store) collectEpisodes(ctx context.Context, rows *sql.Rows) ([]types.Episode, error) {
	defer func() { _ = rows.Close() }()

	var episodes []types.Episode
	for rows.Next() {
		ep, err := scanEpisodeRow(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: episode rows: %w", err)
	}
	if len(episodes) == 0 {
		return episodes, nil
	}

	ids := make([]string, len(episodes))
	byID := make(map[string]*types.Episode, len(episodes))
	for i := range episodes {
		ids[i] = episodes[i].UUID
		byID[episodes[i].UUID] = &episodes[i]
	}

	labelRows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, label_id FROM episode_labels WHERE episode_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: episode labels: %w", err)
	}
	defer func() { _ = labelRows.Close() }()

	for labelRows.Next() {
		var episodeID, labelID string
		if err := labelRows.Scan(&episodeID, &labelID); err != nil {
			return nil, fmt.Errorf("postgres: scan episode label: %w", err)
		}
		if ep, ok := byID[episodeID]; ok {
			ep.LabelIDs = append(ep.LabelIDs, labelID)
		}
	}
	if err := labelRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: episode label rows: %w", err)
	}
	return episodes, nil
}

// scanEpisodeRow scans a single row in episodeSelectColumns order.
func scanEpisodeRow(rows *sql.Rows) (types.Episode, error) {
	var ep types.Episode
	var originalContent, source, sessionID sql.NullString
	var epType string

	err := rows.Scan(
		&ep.UUID,
		&ep.UserID,
		&ep.Content,
		&originalContent,
		&source,
		&epType,
		&sessionID,
		&ep.ChunkIndex,
		&ep.Version,
		&ep.CreatedAt,
	)
	if err != nil {
		return ep, fmt.Errorf("postgres: scan episode row: %w", err)
	}

	ep.Type = types.EpisodeType(epType)
	if originalContent.Valid {
		ep.OriginalContent = originalContent.String
	}
	if source.Valid {
		ep.Source = source.String
	}
	if sessionID.Valid {
		ep.SessionID = sessionID.String
	}
	return ep, nil
}

// scanStatementRows reads statement rows in statementSelectColumns order.
func scanStatementRows(rows *sql.Rows) ([]types.Statement, error) {
	defer func() { _ = rows.Close() }()

	var statements []types.Statement
	for rows.Next() {
		var st types.Statement
		var invalidAt sql.NullTime
		var attrs sql.NullString
		var aspect string

		if err := rows.Scan(&st.UUID, &st.Fact, &aspect, &st.ValidAt, &invalidAt, &attrs); err != nil {
			return nil, fmt.Errorf("postgres: scan statement row: %w", err)
		}
		st.Aspect = types.Aspect(aspect)
		if invalidAt.Valid {
			t := invalidAt.Time
			st.InvalidAt = &t
		}
		if attrs.Valid {
			st.Attributes = types.ParseAttributes(attrs.String)
		}
		statements = append(statements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: statement rows: %w", err)
	}
	return statements, nil
}

// nullableTime maps zero times to SQL NULL so open-ended windows become
// unbounded predicates.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func defaultLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
