// Package types defines the core data structures for the Recall memory
// retrieval engine: entities, temporal statements, episodes, labels,
// compacted sessions, and the router/recall result shapes that flow
// through a retrieval request.
package types

// Aspect is the semantic category of a statement. The set is closed:
// statements are always filed under exactly one of these eleven categories
// by the ingestion pipeline.
type Aspect string

// Aspect constants.
const (
	AspectIdentity     Aspect = "Identity"
	AspectKnowledge    Aspect = "Knowledge"
	AspectBelief       Aspect = "Belief"
	AspectPreference   Aspect = "Preference"
	AspectAction       Aspect = "Action"
	AspectGoal         Aspect = "Goal"
	AspectDirective    Aspect = "Directive"
	AspectDecision     Aspect = "Decision"
	AspectEvent        Aspect = "Event"
	AspectProblem      Aspect = "Problem"
	AspectRelationship Aspect = "Relationship"
)

// AllAspects lists every valid aspect, in canonical order.
var AllAspects = []Aspect{
	AspectIdentity,
	AspectKnowledge,
	AspectBelief,
	AspectPreference,
	AspectAction,
	AspectGoal,
	AspectDirective,
	AspectDecision,
	AspectEvent,
	AspectProblem,
	AspectRelationship,
}

// Valid reports whether a is one of the eleven fixed aspect categories.
func (a Aspect) Valid() bool {
	for _, known := range AllAspects {
		if a == known {
			return true
		}
	}
	return false
}

// FilterValidAspects drops any aspect string that is not in the fixed set.
// LLM output occasionally invents categories; those are skipped rather than
// rejected so one bad aspect never fails a whole extraction.
func FilterValidAspects(raw []string) []Aspect {
	var aspects []Aspect
	for _, s := range raw {
		if a := Aspect(s); a.Valid() {
			aspects = append(aspects, a)
		}
	}
	return aspects
}
