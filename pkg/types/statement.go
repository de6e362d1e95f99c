package types

import "time"

// Statement is a subject-predicate-object fact with temporal validity.
// Invalidation is append-only metadata: when a fact is superseded its
// InvalidAt is set, the row is never deleted, and the full history stays
// queryable.
type Statement struct {
	UUID       string         `json:"uuid"`
	Fact       string         `json:"fact"`
	Aspect     Aspect         `json:"aspect"`
	ValidAt    time.Time      `json:"validAt"`
	InvalidAt  *time.Time     `json:"invalidAt,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Invalidated reports whether the statement has been superseded.
func (s *Statement) Invalidated() bool {
	return s.InvalidAt != nil
}

// InvalidatedFact is the caller-facing rendering of a superseded statement:
// "this was true from ValidAt until InvalidAt".
type InvalidatedFact struct {
	Fact      string    `json:"fact"`
	ValidAt   time.Time `json:"validAt"`
	InvalidAt time.Time `json:"invalidAt"`
}
