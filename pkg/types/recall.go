package types

import "time"

// EpisodeResult is one ranked item in a recall payload. It unifies three
// shapes: a raw episode, a compacted-session summary standing in for
// several episodes, and a document chunk.
type EpisodeResult struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"createdAt"`
	Source         string      `json:"source,omitempty"`
	Type           EpisodeType `json:"type"`
	SessionID      string      `json:"sessionId,omitempty"`
	LabelIDs       []string    `json:"labelIds,omitempty"`
	RelevanceScore float64     `json:"relevanceScore"`

	// IsCompact marks a compacted-session summary substituted for the raw
	// episodes of one session.
	IsCompact bool `json:"isCompact,omitempty"`
}

// RecallResult is the engine's output for one retrieval request: ranked
// episodes, superseded facts, connecting statements, and at most one
// entity. Built fresh per request — relevance is query-dependent, so
// results are never cached across requests.
type RecallResult struct {
	Episodes         []EpisodeResult   `json:"episodes,omitempty"`
	InvalidatedFacts []InvalidatedFact `json:"invalidatedFacts,omitempty"`
	Statements       []Statement       `json:"statements,omitempty"`
	Entity           *Entity           `json:"entity,omitempty"`

	// TokensDropped and TokensTotal report the token-budget pass: how many
	// episodes were cut from the tail and the estimated size of what is left.
	TokensDropped int `json:"tokensDropped,omitempty"`
	TokensTotal   int `json:"tokensTotal,omitempty"`
}

// Empty reports whether the result carries nothing at all.
func (r *RecallResult) Empty() bool {
	return len(r.Episodes) == 0 && len(r.InvalidatedFacts) == 0 &&
		len(r.Statements) == 0 && r.Entity == nil
}
