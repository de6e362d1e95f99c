package types

import (
	"fmt"
	"time"
)

// QueryType classifies what kind of retrieval a natural-language intent
// is asking for. The router assigns exactly one per request.
type QueryType string

// Query type constants.
const (
	QueryTypeEntityLookup QueryType = "entity_lookup"
	QueryTypeAspect       QueryType = "aspect_query"
	QueryTypeTemporal     QueryType = "temporal"
	QueryTypeExploratory  QueryType = "exploratory"
	QueryTypeRelationship QueryType = "relationship"
)

// ParseQueryType maps a raw string to a QueryType. Unknown values fall back
// to aspect_query: it is the broadest statement-backed handler and the
// safest place to send a query the classifier mislabeled.
func ParseQueryType(s string) QueryType {
	switch QueryType(s) {
	case QueryTypeEntityLookup, QueryTypeAspect, QueryTypeTemporal,
		QueryTypeExploratory, QueryTypeRelationship:
		return QueryType(s)
	default:
		return QueryTypeAspect
	}
}

// LookupMode narrows an entity_lookup query: attribute mode answers a
// single-field question from the entity record alone, broad mode fetches
// the episodes connected to the entity.
type LookupMode string

// Lookup mode constants.
const (
	LookupModeAttribute LookupMode = "attribute"
	LookupModeBroad     LookupMode = "broad"
)

// TemporalKind discriminates the TemporalFilter union.
type TemporalKind string

// Temporal filter kinds.
const (
	TemporalRecent TemporalKind = "recent"
	TemporalRange  TemporalKind = "range"
	TemporalBefore TemporalKind = "before"
	TemporalAfter  TemporalKind = "after"
	TemporalAll    TemporalKind = "all"
)

// TemporalFilter is a closed tagged union describing the time window a
// query applies to. Only the fields belonging to Kind are meaningful.
type TemporalFilter struct {
	Kind  TemporalKind `json:"type"`
	Days  int          `json:"days,omitempty"`
	Start *time.Time   `json:"startDate,omitempty"`
	End   *time.Time   `json:"endDate,omitempty"`
}

// Validate rejects unknown kinds and kind/field mismatches.
func (f *TemporalFilter) Validate() error {
	switch f.Kind {
	case TemporalRecent:
		if f.Days <= 0 {
			return fmt.Errorf("temporal filter: recent requires days > 0, got %d", f.Days)
		}
	case TemporalRange:
		if f.Start == nil || f.End == nil {
			return fmt.Errorf("temporal filter: range requires both start and end")
		}
	case TemporalBefore:
		if f.End == nil {
			return fmt.Errorf("temporal filter: before requires end")
		}
	case TemporalAfter:
		if f.Start == nil {
			return fmt.Errorf("temporal filter: after requires start")
		}
	case TemporalAll:
	default:
		return fmt.Errorf("temporal filter: unknown kind %q", f.Kind)
	}
	return nil
}

// Window resolves the filter to a concrete [start, end] pair relative to
// now. Open ends are reported as zero times; callers translate those to
// unbounded SQL predicates. A nil filter means no time constraint at all.
func (f *TemporalFilter) Window(now time.Time) (start, end time.Time) {
	if f == nil {
		return time.Time{}, time.Time{}
	}
	switch f.Kind {
	case TemporalRecent:
		return now.AddDate(0, 0, -f.Days), now
	case TemporalRange:
		return *f.Start, *f.End
	case TemporalBefore:
		return time.Time{}, *f.End
	case TemporalAfter:
		return *f.Start, time.Time{}
	default:
		return time.Time{}, time.Time{}
	}
}
