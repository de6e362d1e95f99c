package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// CompactedSession looks up the summary document for one session, keyed by
// workspace + session + episode type. Returns storage.ErrNotFound when the
// external batch job has not produced one yet.
func (s *Store) CompactedSession(ctx context.Context, workspaceID, sessionID string, epType types.EpisodeType) (*types.CompactedSession, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("postgres: compacted session: %w", storage.ErrMissingOwner)
	}

	const querySQL = `
		SELECT id, workspace_id, session_id, type, content, created_at
		FROM compact_sessions
		WHERE workspace_id = $1 AND session_id = $2 AND type = $3
	`
	var cs types.CompactedSession
	var csType string
	err := s.db.QueryRowContext(ctx, querySQL, workspaceID, sessionID, string(epType)).Scan(
		&cs.ID, &cs.WorkspaceID, &cs.SessionID, &csType, &cs.Content, &cs.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: compacted session %s: %w", sessionID, err)
	}
	cs.Type = types.EpisodeType(csType)
	return &cs, nil
}

// LabelNames resolves label ids to display names. Unknown ids are simply
// absent from the result.
func (s *Store) LabelNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM labels WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: label names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("postgres: scan label name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: label name rows: %w", err)
	}
	return names, nil
}

// InsertSearchLog writes one analytics row. The engine calls this from a
// detached goroutine and only logs failures, so errors here never reach a
// user-visible path.
func (s *Store) InsertSearchLog(ctx context.Context, entry storage.SearchLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const querySQL = `
		INSERT INTO search_logs
			(id, user_id, query, query_type, source, episode_count,
			 statement_count, routing_time_ms, total_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, querySQL,
		entry.ID, entry.UserID, entry.Query, string(entry.QueryType), entry.Source,
		entry.EpisodeCount, entry.StatementCount, entry.RoutingTimeMs,
		entry.TotalTimeMs, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert search log: %w", err)
	}
	return nil
}

// SourceCounts aggregates episodes by source. NULL and empty sources fold
// into "unknown".
func (s *Store) SourceCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: source counts: %w", storage.ErrMissingOwner)
	}

	const querySQL = `
		SELECT COALESCE(NULLIF(source, ''), 'unknown'), COUNT(*)
		FROM episodes
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		GROUP BY 1
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, nullableTime(since))
	if err != nil {
		return nil, fmt.Errorf("postgres: source counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan source count: %w", err)
		}
		counts[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: source count rows: %w", err)
	}
	return counts, nil
}

// EpisodeContents streams the user's episode texts, newest first.
func (s *Store) EpisodeContents(ctx context.Context, userID string, since time.Time) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("postgres: episode contents: %w", storage.ErrMissingOwner)
	}

	const querySQL = `
		SELECT content
		FROM episodes
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, querySQL, userID, nullableTime(since))
	if err != nil {
		return nil, fmt.Errorf("postgres: episode contents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("postgres: scan episode content: %w", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: episode content rows: %w", err)
	}
	return contents, nil
}

// ActivitySpan returns the user's oldest and newest episode times and the
// total episode count in one aggregate pass.
func (s *Store) ActivitySpan(ctx context.Context, userID string, since time.Time) (time.Time, time.Time, int, error) {
	if userID == "" {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("postgres: activity span: %w", storage.ErrMissingOwner)
	}

	const querySQL = `
		SELECT MIN(created_at), MAX(created_at), COUNT(*)
		FROM episodes
		WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
	`
	var oldest, newest sql.NullTime
	var total int
	err := s.db.QueryRowContext(ctx, querySQL, userID, nullableTime(since)).Scan(&oldest, &newest, &total)
	if err != nil {
		return time.Time{}, time.Time{}, 0, fmt.Errorf("postgres: activity span: %w", err)
	}
	if !oldest.Valid || !newest.Valid {
		return time.Time{}, time.Time{}, 0, nil
	}
	return oldest.Time, newest.Time, total, nil
}
