// Package storage defines the read contracts the retrieval engine depends
// on: the namespace-partitioned vector index, the temporal knowledge graph,
// and the relational lookups for compacted sessions, labels, and analytics.
//
// The interfaces are small and focused so backends can be implemented and
// mocked independently.
package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrMissingOwner indicates a vector or graph operation was attempted
	// without an owner id. Every query must be scoped to a single user or
	// workspace; searching cross-tenant is a programming error, so this
	// fails fast rather than degrading.
	ErrMissingOwner = errors.New("owner id is required")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// Namespace identifies one embedding partition of the vector index. Each
// namespace maps 1:1 to a physical table; all namespaces share a single
// configured embedding dimension.
type Namespace string

// Vector index namespaces.
const (
	NamespaceStatements      Namespace = "statements"
	NamespaceEpisodes        Namespace = "episodes"
	NamespaceEntities        Namespace = "entities"
	NamespaceCompactSessions Namespace = "compact_sessions"
	NamespaceLabels          Namespace = "labels"
)

// Valid reports whether n names a known namespace.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceStatements, NamespaceEpisodes, NamespaceEntities,
		NamespaceCompactSessions, NamespaceLabels:
		return true
	}
	return false
}

// VectorHit is one ANN search result: an id with its cosine similarity
// score in [0,1], higher is more similar.
type VectorHit struct {
	ID    string
	Score float64
}

// VectorRecord is an embedding row for upsert. Writing the same ID twice
// replaces the previous content and vector.
type VectorRecord struct {
	ID      string
	OwnerID string
	Content string
	Vector  []float32
}

// TimeWindow bounds a graph query in time. Zero values mean unbounded on
// that side.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// EpisodeFilter narrows graph episode queries. All fields are optional;
// empty slices mean no constraint on that dimension.
type EpisodeFilter struct {
	LabelIDs []string
	Aspects  []types.Aspect
	Window   TimeWindow
	Limit    int
}

// SearchLog is one analytics row describing a completed retrieval request.
// Written fire-and-forget; a failed write is logged, never surfaced.
type SearchLog struct {
	ID             string
	UserID         string
	Query          string
	QueryType      types.QueryType
	Source         string
	EpisodeCount   int
	StatementCount int
	RoutingTimeMs  int64
	TotalTimeMs    int64
	CreatedAt      time.Time
}
