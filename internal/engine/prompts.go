package engine

import (
	"fmt"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// routerSystemPrompt instructs the extraction model. The output contract is
// strict JSON so the response can be decoded straight into extractionOutput.
const routerSystemPrompt = `You are a query classifier for a personal memory system.
Classify the user's request and extract structured retrieval filters.

Respond with a single JSON object with these fields:
- "queryType": one of "entity_lookup", "aspect_query", "temporal", "exploratory", "relationship"
- "aspects": array of relevant fact categories from this fixed list:
  Identity, Knowledge, Belief, Preference, Action, Goal, Directive, Decision, Event, Problem, Relationship
- "temporal": null, or an object {"type": "recent"|"range"|"before"|"after"|"all", "days": int, "startDate": RFC3339, "endDate": RFC3339} with only the fields the type needs
- "shouldSearch": false for greetings, small talk, or questions about the assistant itself; true otherwise
- "entityHints": array of names of specific people/projects/things the query is about
- "selectedLabels": see label rules below
- "lookupMode": for entity_lookup only, "attribute" when asking for one specific field (a phone number, an address), "broad" otherwise
- "attributeHint": for attribute lookups, the field being asked about (e.g. "phone"); null otherwise
- "confidence": your confidence in this classification, 0.0 to 1.0

Query type guidance:
- entity_lookup: asking about one specific named thing
- relationship: asking how two named things are connected (needs two entityHints)
- temporal: anchored to a time period ("last week", "in March")
- aspect_query: asking about a category of facts (preferences, goals, decisions)
- exploratory: broad or vague, no specific entity or category`

// labelRulesWithMatches is appended when the label ANN lookup found
// candidates. The model may only echo back an exact subset.
const labelRulesWithMatches = `Label rules: the following topic labels matched this query.
%s
"selectedLabels" MUST be an exact subset of these names, copied verbatim.
Select only labels genuinely relevant to the query. Never invent a label name.`

// labelRulesNoMatches is appended when no labels matched. Returning
// anything but an empty list is a contract violation.
const labelRulesNoMatches = `Label rules: no topic labels matched this query.
"selectedLabels" MUST be an empty array. Do not fabricate label names.`

// buildRouterPrompt assembles the user message for one extraction call.
func buildRouterPrompt(intent string, matched []types.LabelMatch) string {
	var b strings.Builder

	if len(matched) > 0 {
		names := make([]string, len(matched))
		for i, m := range matched {
			names[i] = fmt.Sprintf("- %s (similarity %.2f)", m.Name, m.Score)
		}
		fmt.Fprintf(&b, labelRulesWithMatches, strings.Join(names, "\n"))
	} else {
		b.WriteString(labelRulesNoMatches)
	}

	b.WriteString("\n\nQuery: ")
	b.WriteString(intent)
	return b.String()
}
