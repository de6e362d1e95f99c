package types

import "encoding/json"

// Entity is a person/project/concept node in the knowledge graph. Entities
// are created and merged by the ingestion pipeline; the retrieval engine
// only ever reads them.
type Entity struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	UserID string `json:"userId"`

	// Attributes is a string-keyed map of scalar values. It sometimes
	// arrives from storage as a JSON-encoded string rather than an object;
	// use ParseAttributes to normalize.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Embedding is the stored name embedding, when present.
	Embedding []float32 `json:"embedding,omitempty"`
}

// ParseAttributes normalizes a raw attributes value into a string-keyed map.
// The ingestion pipeline is not consistent here: the value can be a map, a
// JSON-encoded string of a map, nil, or garbage. Anything unparseable
// yields an empty map, never an error.
func ParseAttributes(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		var attrs map[string]any
		if err := json.Unmarshal([]byte(v), &attrs); err != nil || attrs == nil {
			return map[string]any{}
		}
		return attrs
	case []byte:
		var attrs map[string]any
		if err := json.Unmarshal(v, &attrs); err != nil || attrs == nil {
			return map[string]any{}
		}
		return attrs
	default:
		return map[string]any{}
	}
}
