package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRerankerUnavailable is returned when no reranker credentials are
// configured. Callers treat it like any other rerank failure and fall back.
var ErrRerankerUnavailable = errors.New("reranker is not configured")

// RerankConfig holds configuration for the cross-encoder rerank client.
// The endpoint follows the Cohere-compatible /v1/rerank shape.
type RerankConfig struct {
	APIKey  string
	Model   string        // default: rerank-v3.5
	BaseURL string        // default: https://api.cohere.com
	Timeout time.Duration // default: 15s
}

// RerankClient implements CrossEncoder over HTTP.
type RerankClient struct {
	cfg            RerankConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// NewRerankClient creates the cross-encoder client. An empty API key is
// legal; Rerank then returns ErrRerankerUnavailable so callers take the
// vector-similarity fallback without a network round trip.
func NewRerankClient(cfg RerankConfig) *RerankClient {
	if cfg.Model == "" {
		cfg.Model = "rerank-v3.5"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &RerankClient{
		cfg:            cfg,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: NewCircuitBreaker("rerank"),
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against the query, returning (index, score)
// pairs sorted by relevance descending.
func (c *RerankClient) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrRerankerUnavailable
	}
	if len(documents) == 0 {
		return nil, nil
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (any, error) {
		return c.rerank(ctx, query, documents, topN)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("rerank circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]RankedDocument), nil
}

func (c *RerankClient) rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     c.cfg.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var data rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	ranked := make([]RankedDocument, 0, len(data.Results))
	for _, r := range data.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			continue
		}
		ranked = append(ranked, RankedDocument{Index: r.Index, Score: r.RelevanceScore})
	}
	return ranked, nil
}

// Compile-time assertion.
var _ CrossEncoder = (*RerankClient)(nil)
