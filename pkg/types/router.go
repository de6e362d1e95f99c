package types

// RouterOutput is the per-request routing decision: which handler runs,
// with what filters. It is ephemeral; nothing here is persisted beyond an
// analytics log entry.
type RouterOutput struct {
	// MatchedLabels are the ANN matches against the label namespace,
	// ordered by score descending.
	MatchedLabels []LabelMatch `json:"matchedLabels,omitempty"`

	// SelectedLabels is the LLM-chosen subset of matched label names.
	// Always a subset of MatchedLabels by exact name; the extraction
	// prompt forbids inventing labels.
	SelectedLabels []string `json:"selectedLabels,omitempty"`

	Aspects   []Aspect        `json:"aspects,omitempty"`
	QueryType QueryType       `json:"queryType"`
	Temporal  *TemporalFilter `json:"temporal,omitempty"`

	// ShouldSearch is false for greetings and meta-questions that need no
	// memory lookup at all.
	ShouldSearch bool `json:"shouldSearch"`

	EntityHints   []string   `json:"entityHints,omitempty"`
	LookupMode    LookupMode `json:"lookupMode,omitempty"`
	AttributeHint string     `json:"attributeHint,omitempty"`

	// Confidence is the classifier's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// RoutingTimeMs is the wall-clock cost of routing this request.
	RoutingTimeMs int64 `json:"routingTimeMs"`
}
