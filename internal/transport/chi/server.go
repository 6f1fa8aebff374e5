// Package chi is the HTTP API: tag prediction, top-tag reports, health,
// and Prometheus metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/metrics"
	healthuc "github.com/lumina-cloud/taxotag/internal/usecase/health"
	reportuc "github.com/lumina-cloud/taxotag/internal/usecase/report"
	tagginguc "github.com/lumina-cloud/taxotag/internal/usecase/tagging"
)

const maxReportRows = 10000

// ErrorCode identifies an API error category for clients.
type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeEmbeddingQuota       ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProvider    ErrorCode = "embedding_provider_error"
	CodeEmbeddingUnavailable ErrorCode = "embedding_unavailable"
	CodeTaxonomyNotFound     ErrorCode = "taxonomy_not_found"
	CodeInternalError        ErrorCode = "internal_error"
)

// errorResponse is the uniform API error body.
type errorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Server is the HTTP API server.
type Server struct {
	tagging *tagginguc.Service
	report  *reportuc.Service
	health  *healthuc.Service
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	tagging *tagginguc.Service,
	report *reportuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		tagging: tagging,
		report:  report,
		health:  health,
		logger:  logger,
	}
}

// Routes builds the chi router with metrics and auth middleware attached.
// Outer middleware (recovery, request IDs, canonical logging) is wired by main.
func (s *Server) Routes(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Post("/api/v1/items:predict", s.PredictItem)
	r.Post("/api/v1/reports/top-tags", s.TopTags)
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	return r
}

// --- Predict ---

type predictRequest struct {
	Fields   map[string]string `json:"fields"`
	ImageURL string            `json:"image_url"`
	PageURL  string            `json:"page_url"`
}

type tagDTO struct {
	Value      string  `json:"value"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

type predictResponse struct {
	Categories []string            `json:"categories"`
	Attributes map[string]string   `json:"attributes"`
	Tags       map[string][]tagDTO `json:"tags"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// PredictItem handles POST /api/v1/items:predict.
func (s *Server) PredictItem(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Fields) == 0 && req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"at least one text field or an image_url is required")
		return
	}

	pred, err := s.tagging.Predict(r.Context(), tagginguc.Item{
		Fields:   req.Fields,
		ImageURL: req.ImageURL,
		PageURL:  req.PageURL,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := predictResponse{
		Categories: pred.Categories,
		Attributes: pred.Attributes,
		Tags:       make(map[string][]tagDTO, len(pred.Tags)),
		Warnings:   pred.Warnings,
	}
	if resp.Categories == nil {
		resp.Categories = []string{}
	}
	for group, tags := range pred.Tags {
		dtos := make([]tagDTO, len(tags))
		for i, tag := range tags {
			dtos[i] = tagDTO{Value: tag.Value, Similarity: tag.Similarity, Score: tag.Score}
		}
		resp.Tags[group] = dtos
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Top tags report ---

type reportRowDTO struct {
	Tag        string  `json:"tag"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

type topTagsRequest struct {
	Rows []reportRowDTO `json:"rows"`
}

type rankedTagDTO struct {
	Tag        string  `json:"tag"`
	Similarity float64 `json:"similarity"`
	Percentile float64 `json:"percentile"`
	Score      float64 `json:"score"`
}

type topTagsResponse struct {
	Categories map[string][]rankedTagDTO `json:"categories"`
}

// TopTags handles POST /api/v1/reports/top-tags.
func (s *Server) TopTags(w http.ResponseWriter, r *http.Request) {
	var req topTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Rows) > maxReportRows {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"too many rows in one report request")
		return
	}

	rows := make([]reportuc.Row, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = reportuc.Row{Tag: row.Tag, Category: row.Category, Similarity: row.Similarity}
	}

	ranked := s.report.TopTags(rows)

	resp := topTagsResponse{Categories: make(map[string][]rankedTagDTO, len(ranked))}
	for category, tags := range ranked {
		dtos := make([]rankedTagDTO, len(tags))
		for i, tag := range tags {
			dtos[i] = rankedTagDTO{
				Tag:        tag.Tag,
				Similarity: tag.Similarity,
				Percentile: tag.Percentile,
				Score:      tag.Score,
			}
		}
		resp.Categories[category] = dtos
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Health and metrics ---

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())

	checks := make(map[string]string, len(rep.Checks))
	for k, v := range rep.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if rep.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(rep.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// --- Error mapping ---

type sentinelMapping struct {
	sentinel error
	status   int
	code     ErrorCode
}

var sentinelMappings = []sentinelMapping{
	{domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuota},
	{domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider},
	{domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingUnavailable},
	{domain.ErrTreeNotFound, http.StatusNotFound, CodeTaxonomyNotFound},
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, m := range sentinelMappings {
		if errors.Is(err, m.sentinel) {
			writeError(w, m.status, m.code, m.sentinel.Error())
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
