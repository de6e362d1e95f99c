package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/lib/pq" // postgres driver

	"github.com/scrypster/recall/internal/storage"
)

// Store implements storage.VectorStore, storage.GraphStore, and
// storage.RelationalStore on a single PostgreSQL database with pgvector.
// It is safe for unbounded concurrent use; all state beyond the pooled
// *sql.DB is the one-shot index provisioning flag.
type Store struct {
	db     *sql.DB
	dim    int
	logger *slog.Logger

	// indexesReady is the in-process "already provisioned" flag. Combined
	// with the catalog check in EnsureVectorIndexes it tolerates concurrent
	// start-up races across multiple processes.
	indexesReady atomic.Bool
}

// Compile-time interface assertions.
var (
	_ storage.VectorStore     = (*Store)(nil)
	_ storage.GraphStore      = (*Store)(nil)
	_ storage.RelationalStore = (*Store)(nil)
)

// Open connects to PostgreSQL, verifies the connection, and returns a
// Store configured for the given embedding dimension.
func Open(ctx context.Context, dsn string, dim int, logger *slog.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", dim)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dim: dim, logger: logger}, nil
}

// NewStore wraps an existing database handle. Used by tests and callers
// that manage the connection themselves.
func NewStore(db *sql.DB, dim int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dim: dim, logger: logger}
}

// EnsureSchema applies the full DDL. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema(s.dim)); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// EnsureVectorIndexes provisions one HNSW index per embedding namespace.
// Creation is check-before-create against pg_indexes and runs CONCURRENTLY
// so it never locks out writers. Subsequent calls in the same process are
// free once the flag is set.
func (s *Store) EnsureVectorIndexes(ctx context.Context) error {
	if s.indexesReady.Load() {
		return nil
	}
	for _, m := range namespaceTables() {
		name := fmt.Sprintf("idx_%s_embedding_hnsw", m.table)

		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("postgres: check index %s: %w", name, err)
		}
		if exists {
			continue
		}

		// CONCURRENTLY cannot run inside a transaction, so this is a bare
		// Exec. A concurrent process may win the race; "already exists" is
		// then expected and ignored.
		if _, err := s.db.ExecContext(ctx, hnswIndexSQL(m.table)); err != nil {
			return fmt.Errorf("postgres: create index %s: %w", name, err)
		}
		s.logger.Info("created hnsw index", "index", name, "table", m.table)
	}
	s.indexesReady.Store(true)
	return nil
}

// hnswIndexSQL builds the HNSW index DDL for one embedding table.
func hnswIndexSQL(table string) string {
	return fmt.Sprintf(
		`CREATE INDEX CONCURRENTLY IF NOT EXISTS idx_%s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)`,
		table, table,
	)
}

// DB exposes the underlying handle for schema management and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
