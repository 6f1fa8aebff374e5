// Package clipserver provides an image embedding provider over an
// OpenAI-compatible embeddings endpoint that accepts data-URL images as
// input (CLIP-family vision towers served by e.g. infinity or Triton).
package clipserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/metrics"
)

// Embedder is an image embedding provider. The serving side exposes the
// same /embeddings contract as the text API but takes image references
// (data URLs or fetchable URLs) as input items.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	provider   string
	logger     *zap.Logger
}

// Config holds the image embedding provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// NewEmbedder creates an image embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Embedder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		provider:   cfg.Provider,
		logger:     cfg.Logger,
	}
}

// EmbedImage implements domain.ImageEmbedder.
func (e *Embedder) EmbedImage(ctx context.Context, imageRef string) (domain.EmbeddingResult, error) {
	body, err := json.Marshal(embeddingRequest{
		Model: e.model,
		Input: []string{imageRef},
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()

	resp, err := e.httpClient.Do(req)

	duration := time.Since(start)

	if err != nil {
		e.countError("request_failed")
		return domain.EmbeddingResult{}, fmt.Errorf("image embedding request: %v: %w",
			err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		e.countError("read_failed")
		return domain.EmbeddingResult{}, fmt.Errorf("read response: %v: %w",
			err, domain.ErrEmbeddingProviderError)
	}

	if resp.StatusCode != http.StatusOK {
		e.countError("api_error")
		return domain.EmbeddingResult{}, fmt.Errorf("image embedding API error %d: %s: %w",
			resp.StatusCode, extractDetail(raw), domain.ErrEmbeddingProviderError)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		e.countError("bad_response")
		return domain.EmbeddingResult{}, fmt.Errorf("decode response: %v: %w",
			err, domain.ErrEmbeddingProviderError)
	}
	if len(parsed.Data) == 0 {
		e.countError("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty image embedding response: %w",
			domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "image", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model, "image").Observe(duration.Seconds())

	if parsed.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "prompt").Add(float64(parsed.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, e.model, "total").Add(float64(parsed.Usage.TotalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    parsed.Data[0].Embedding,
		PromptTokens: parsed.Usage.PromptTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}, nil
}

// HealthCheck probes the serving side with a HEAD request to the base URL.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.baseURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}

func (e *Embedder) countError(reason string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "image", "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, reason).Inc()
}

// extractDetail extracts the "detail" field from a JSON error body,
// falling back to the raw body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(body)
}
