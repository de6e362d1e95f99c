package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// RetrievalEngine is the engine surface the HTTP layer needs.
type RetrievalEngine interface {
	Search(ctx context.Context, query, userID string, opts engine.SearchOptions) (*engine.SearchResponse, error)
	AnalyzeQuery(ctx context.Context, query, userID string) (*types.RouterOutput, error)
	AnalyzeEpisodes(ctx context.Context, userID string, since time.Time) (*types.PersonaAnalytics, error)
}

// Handlers holds the HTTP handlers for the retrieval API.
type Handlers struct {
	engine RetrievalEngine
	logger *slog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(eng RetrievalEngine, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{engine: eng, logger: logger}
}

type searchRequest struct {
	Query   string               `json:"query"`
	UserID  string               `json:"userId"`
	Options engine.SearchOptions `json:"options"`
}

type analyzeRequest struct {
	Query  string `json:"query"`
	UserID string `json:"userId"`
}

type searchResponse struct {
	Markdown   string                   `json:"markdown,omitempty"`
	Structured *engine.StructuredResult `json:"structured,omitempty"`
}

// Search handles POST /api/search: full retrieval.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	resp, err := h.engine.Search(r.Context(), req.Query, req.UserID, req.Options)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Markdown:   resp.Markdown,
		Structured: resp.Structured,
	})
}

// Analyze handles POST /api/analyze: routing decision only, no retrieval.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	route, err := h.engine.AnalyzeQuery(r.Context(), req.Query, req.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// Analytics handles GET /api/analytics: quantitative writing patterns over
// a user's episodes. Query params: userId (required), since (optional,
// RFC 3339).
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	analytics, err := h.engine.AnalyzeEpisodes(r.Context(), userID, since)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// Health handles GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrMissingOwner), errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
