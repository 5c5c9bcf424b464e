// Package chi implements the HTTP API: search, health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/query"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/recall/internal/usecase/health"
)

// Error codes returned in JSON error responses.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeRateLimited      = "rate_limited"
	codeProviderError    = "embedding_provider_error"
	codeStoreUnavailable = "store_unavailable"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// searchService is the retrieval contract the transport depends on.
type searchService interface {
	Search(ctx context.Context, p query.Params) ([]result.Result, error)
}

// Server exposes the retrieval API over HTTP.
type Server struct {
	search        searchService
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search searchService, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidParams, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUnauthorized, http.StatusForbidden, codeUnauthorized),
		sentinelHandler(domain.ErrThrottleTimeout, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeStoreUnavailable),
	}
	return s
}

// Routes mounts the API endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/search", s.SearchHandler)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// searchRequest is the POST /search payload.
type searchRequest struct {
	Slug           string `json:"slug"`
	Scope          string `json:"scope"`
	Query          string `json:"query"`
	K              int    `json:"k"`
	CandidateLimit *int   `json:"candidate_limit,omitempty"`
	DBPath         string `json:"db_path,omitempty"`
}

// searchResultItem is a single ranked hit in the response.
type searchResultItem struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// searchResponse is the POST /search response body.
type searchResponse struct {
	Results []searchResultItem `json:"results"`
	Count   int                `json:"count"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchHandler handles POST /search.
func (s *Server) SearchHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	p, err := query.New(req.Slug, req.Scope, req.Query, req.K)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	if req.CandidateLimit != nil {
		p = p.WithCandidateLimit(*req.CandidateLimit)
	}
	if req.DBPath != "" {
		p = p.WithDBPath(req.DBPath)
	}

	results, err := s.search.Search(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = searchResultItem{
			ID:       results[i].ID(),
			Score:    results[i].Score(),
			Content:  results[i].Content(),
			Metadata: results[i].Metadata(),
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results: items,
		Count:   len(items),
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidParams,
		domain.ErrUnauthorized,
		domain.ErrThrottleTimeout,
		domain.ErrEmbeddingProviderError,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
