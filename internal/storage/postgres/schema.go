// Package postgres implements the storage contracts on PostgreSQL with the
// pgvector extension. The graph lives in relational tables linked by
// provenance join tables; each vector namespace is one physical table with
// an HNSW index over its embedding column.
package postgres

import "fmt"

// Schema returns the DDL for all tables. Embedding columns are typed
// vector(dim) with the single configured dimension; a mismatch between this
// dimension and the stored vector type silently stops the HNSW index from
// being used, so it is applied uniformly here and nowhere else.
//
// All statements are idempotent (IF NOT EXISTS) so schema application is
// safe to run on every start.
func Schema(dim int) string {
	return fmt.Sprintf(schemaTemplate, dim)
}

const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

-- Entities: person/project/concept nodes, owned per user.
CREATE TABLE IF NOT EXISTS entities (
    uuid       TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    attributes JSONB,
    embedding  vector(%[1]d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_entities_user ON entities(user_id);

-- Statements: temporal subject-predicate-object facts. Invalidation is
-- append-only: invalid_at is set when a fact is superseded, rows are never
-- deleted.
CREATE TABLE IF NOT EXISTS statements (
    uuid       TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    fact       TEXT NOT NULL,
    aspect     TEXT NOT NULL DEFAULT 'Knowledge',
    valid_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    invalid_at TIMESTAMPTZ,
    attributes JSONB,
    embedding  vector(%[1]d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_statements_user ON statements(user_id);
CREATE INDEX IF NOT EXISTS idx_statements_aspect ON statements(aspect);
CREATE INDEX IF NOT EXISTS idx_statements_valid_at ON statements(valid_at);

-- Statement-entity links: which entities a statement connects, with the
-- role the entity plays (subject/object).
CREATE TABLE IF NOT EXISTS statement_entities (
    statement_id TEXT NOT NULL REFERENCES statements(uuid) ON DELETE CASCADE,
    entity_id    TEXT NOT NULL REFERENCES entities(uuid) ON DELETE CASCADE,
    role         TEXT NOT NULL DEFAULT 'subject',
    PRIMARY KEY (statement_id, entity_id, role)
);
CREATE INDEX IF NOT EXISTS idx_statement_entities_entity ON statement_entities(entity_id);

-- Episodes: ingested units of raw content.
CREATE TABLE IF NOT EXISTS episodes (
    uuid             TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    content          TEXT NOT NULL,
    original_content TEXT,
    source           TEXT,
    type             TEXT NOT NULL DEFAULT 'CONVERSATION',
    session_id       TEXT,
    chunk_index      INTEGER NOT NULL DEFAULT 0,
    version          INTEGER NOT NULL DEFAULT 1,
    embedding        vector(%[1]d),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_episodes_user ON episodes(user_id);
CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id);
CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at);

-- Episode labels: topic tags assigned during ingestion.
CREATE TABLE IF NOT EXISTS episode_labels (
    episode_id TEXT NOT NULL REFERENCES episodes(uuid) ON DELETE CASCADE,
    label_id   TEXT NOT NULL,
    PRIMARY KEY (episode_id, label_id)
);
CREATE INDEX IF NOT EXISTS idx_episode_labels_label ON episode_labels(label_id);

-- Episode-statement provenance: which statements were extracted from which
-- episodes.
CREATE TABLE IF NOT EXISTS episode_statements (
    episode_id   TEXT NOT NULL REFERENCES episodes(uuid) ON DELETE CASCADE,
    statement_id TEXT NOT NULL REFERENCES statements(uuid) ON DELETE CASCADE,
    PRIMARY KEY (episode_id, statement_id)
);
CREATE INDEX IF NOT EXISTS idx_episode_statements_statement ON episode_statements(statement_id);

-- Compacted sessions: summary documents produced by the external batch job.
CREATE TABLE IF NOT EXISTS compact_sessions (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    session_id   TEXT NOT NULL,
    type         TEXT NOT NULL DEFAULT 'CONVERSATION',
    content      TEXT NOT NULL,
    embedding    vector(%[1]d),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (workspace_id, session_id, type)
);

-- Labels: workspace-scoped topics used only for intent routing.
CREATE TABLE IF NOT EXISTS labels (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    name         TEXT NOT NULL,
    embedding    vector(%[1]d),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (workspace_id, name)
);
CREATE INDEX IF NOT EXISTS idx_labels_workspace ON labels(workspace_id);

-- Search logs: one analytics row per completed retrieval request.
CREATE TABLE IF NOT EXISTS search_logs (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    query           TEXT NOT NULL,
    query_type      TEXT NOT NULL,
    source          TEXT,
    episode_count   INTEGER NOT NULL DEFAULT 0,
    statement_count INTEGER NOT NULL DEFAULT 0,
    routing_time_ms BIGINT NOT NULL DEFAULT 0,
    total_time_ms   BIGINT NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_search_logs_user ON search_logs(user_id);
`
