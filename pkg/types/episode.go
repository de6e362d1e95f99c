package types

import "time"

// EpisodeType distinguishes conversational episodes from document chunks.
type EpisodeType string

// Episode type constants.
const (
	EpisodeTypeConversation EpisodeType = "CONVERSATION"
	EpisodeTypeDocument     EpisodeType = "DOCUMENT"
)

// Episode is one ingested unit of raw content: a message, a document chunk,
// an email. Immutable once written except for label assignment and recall
// counters, which the ingestion side owns.
type Episode struct {
	UUID            string      `json:"uuid"`
	Content         string      `json:"content"`
	OriginalContent string      `json:"originalContent,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	Source          string      `json:"source,omitempty"`
	UserID          string      `json:"userId"`
	Type            EpisodeType `json:"type"`

	// LabelIDs is the set of topic tags assigned to the episode.
	LabelIDs []string `json:"labelIds,omitempty"`

	// SessionID groups multi-part conversations and documents; empty for
	// standalone episodes. ChunkIndex and Version order parts in a session.
	SessionID  string `json:"sessionId,omitempty"`
	ChunkIndex int    `json:"chunkIndex,omitempty"`
	Version    int    `json:"version,omitempty"`
}

// CompactedSession is a pre-generated summary document that can stand in
// for a cluster of raw episodes from one session. Created by an external
// batch job once a session accumulates enough episodes.
type CompactedSession struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	WorkspaceID string      `json:"workspaceId"`
	Type        EpisodeType `json:"type"`
	Content     string      `json:"content"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Label is a workspace-scoped topic with a stored embedding. Labels are
// used only for fast intent routing, never for final result ranking.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
}

// LabelMatch is one label returned by the router's ANN lookup.
type LabelMatch struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}
