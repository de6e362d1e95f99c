// Package llm wraps the model providers the retrieval engine depends on:
// an embedding generator, a structured-output extraction model, and an
// external cross-encoder reranker. Every outbound call is protected by a
// circuit breaker so a failing provider degrades rather than cascades.
package llm

import "context"

// Embedder generates a vector embedding for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// StructuredGenerator runs a structured-output extraction: the model is
// asked for JSON matching the shape of out, and the response is decoded
// into it. May fail; callers are expected to substitute a safe default.
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, system, user string, out any) error
	GetModel() string
}

// RankedDocument is one cross-encoder result: the index of the document in
// the request slice and its relevance score.
type RankedDocument struct {
	Index int
	Score float64
}

// CrossEncoder reranks documents against a query. May fail; callers fall
// back to vector similarity or original order.
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error)
}
