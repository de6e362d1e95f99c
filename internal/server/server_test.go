// Package server_test provides unit tests for the HTTP API using a stub
// engine, so no database or model provider is needed.
package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/server"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// stubEngine records calls and returns canned responses.
type stubEngine struct {
	searchResp    *engine.SearchResponse
	searchErr     error
	analyzeResp   *types.RouterOutput
	analyzeErr    error
	analyticsResp *types.PersonaAnalytics
	analyticsErr  error

	lastQuery  string
	lastUserID string
	lastSince  time.Time
	lastOpts   engine.SearchOptions
}

func (s *stubEngine) Search(ctx context.Context, query, userID string, opts engine.SearchOptions) (*engine.SearchResponse, error) {
	s.lastQuery = query
	s.lastUserID = userID
	s.lastOpts = opts
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchResp, nil
}

func (s *stubEngine) AnalyzeQuery(ctx context.Context, query, userID string) (*types.RouterOutput, error) {
	s.lastQuery = query
	s.lastUserID = userID
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return s.analyzeResp, nil
}

func (s *stubEngine) AnalyzeEpisodes(ctx context.Context, userID string, since time.Time) (*types.PersonaAnalytics, error) {
	s.lastUserID = userID
	s.lastSince = since
	if s.analyticsErr != nil {
		return nil, s.analyticsErr
	}
	return s.analyticsResp, nil
}

// startTestServer starts the server on a random port with the given stub
// engine and registers cleanup with t.Cleanup.
func startTestServer(t *testing.T, eng server.RetrievalEngine) string {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.RequestTimeout = 10
	cfg.Server.RateLimit = 1000
	cfg.Server.RateBurst = 1000

	ctx, cancel := context.WithCancel(context.Background())
	addr, err := server.Start(ctx, cfg, eng, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
	})
	return "http://" + addr
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	resp, err := http.Get(base + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSearchEndpoint_ReturnsMarkdown(t *testing.T) {
	eng := &stubEngine{
		searchResp: &engine.SearchResponse{Markdown: "## Recalled Relevant Context\n"},
	}
	base := startTestServer(t, eng)

	resp := postJSON(t, base+"/api/search", map[string]any{
		"query":  "what did we decide about the gateway?",
		"userId": "user-1",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Markdown string `json:"markdown"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Markdown, "Recalled Relevant Context")
	assert.Equal(t, "user-1", eng.lastUserID)
}

func TestSearchEndpoint_PassesOptions(t *testing.T) {
	eng := &stubEngine{searchResp: &engine.SearchResponse{Markdown: "x"}}
	base := startTestServer(t, eng)

	resp := postJSON(t, base+"/api/search", map[string]any{
		"query":  "recent work",
		"userId": "user-1",
		"options": map[string]any{
			"maxEpisodes": 5,
			"structured":  true,
			"sortBy":      "createdAt",
		},
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, eng.lastOpts.MaxEpisodes)
	assert.True(t, eng.lastOpts.Structured)
	assert.Equal(t, "createdAt", eng.lastOpts.SortBy)
}

func TestSearchEndpoint_RejectsMissingFields(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	cases := []map[string]any{
		{"userId": "user-1"},         // no query
		{"query": "what do I like?"}, // no userId
	}
	for _, payload := range cases {
		resp := postJSON(t, base+"/api/search", payload)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestSearchEndpoint_MapsOwnerErrorTo400(t *testing.T) {
	eng := &stubEngine{
		searchErr: fmt.Errorf("engine: search: %w", storage.ErrMissingOwner),
	}
	base := startTestServer(t, eng)

	resp := postJSON(t, base+"/api/search", map[string]any{
		"query":  "anything",
		"userId": "user-1",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpoint_InternalErrorIsOpaque(t *testing.T) {
	eng := &stubEngine{searchErr: fmt.Errorf("postgres: connection refused")}
	base := startTestServer(t, eng)

	resp := postJSON(t, base+"/api/search", map[string]any{
		"query":  "anything",
		"userId": "user-1",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "postgres",
		"store details must not leak to clients")
}

func TestSearchEndpoint_MethodNotAllowed(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	resp, err := http.Get(base + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAnalyzeEndpoint_ReturnsRoute(t *testing.T) {
	eng := &stubEngine{
		analyzeResp: &types.RouterOutput{
			QueryType:    types.QueryTypeTemporal,
			ShouldSearch: true,
			Confidence:   0.9,
		},
	}
	base := startTestServer(t, eng)

	resp := postJSON(t, base+"/api/analyze", map[string]any{
		"query":  "what did I do last week?",
		"userId": "user-1",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var route types.RouterOutput
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&route))
	assert.Equal(t, types.QueryTypeTemporal, route.QueryType)
	assert.True(t, route.ShouldSearch)
}

func TestAnalyticsEndpoint_ReturnsMetrics(t *testing.T) {
	eng := &stubEngine{
		analyticsResp: &types.PersonaAnalytics{
			TotalEpisodes: 12,
			Sources:       map[string]int{"slack": 75, "email": 25},
			Temporal:      types.TemporalMetrics{TimeSpanDays: 30, EpisodesPerMonth: 12},
		},
	}
	base := startTestServer(t, eng)

	resp, err := http.Get(base + "/api/analytics?userId=user-1&since=2026-01-01T00:00:00Z")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body types.PersonaAnalytics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 12, body.TotalEpisodes)
	assert.Equal(t, 75, body.Sources["slack"])
	assert.Equal(t, "user-1", eng.lastUserID)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), eng.lastSince)
}

func TestAnalyticsEndpoint_RequiresUserID(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	resp, err := http.Get(base + "/api/analytics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsEndpoint_RejectsBadSince(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	resp, err := http.Get(base + "/api/analytics?userId=user-1&since=yesterday")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsEndpoint_MethodNotAllowed(t *testing.T) {
	base := startTestServer(t, &stubEngine{})

	resp := postJSON(t, base+"/api/analytics", map[string]any{"userId": "user-1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimiting(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.RequestTimeout = 10
	cfg.Server.RateLimit = 1
	cfg.Server.RateBurst = 2

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr, err := server.Start(ctx, cfg, &stubEngine{}, nil)
	require.NoError(t, err)

	limited := false
	for i := 0; i < 10; i++ {
		resp, err := http.Get("http://" + addr + "/api/health")
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst past the limit must return 429")
}
