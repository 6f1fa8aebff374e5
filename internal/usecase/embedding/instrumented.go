package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps a text embedder with budget enforcement and
// logging. Transport metrics (requests, duration, tokens) are recorded in
// the transports; this layer owns budget tracking only.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Embed checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := checkBudget(ctx, p.budget, p.provider, p.model, p.logger); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	recordUsage(p.budget, p.provider, result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// InstrumentedImageEmbedder is the image-side counterpart of
// InstrumentedEmbedder, sharing the same budget tracker as its text peer
// when both run against one provider account.
type InstrumentedImageEmbedder struct {
	inner    domain.ImageEmbedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedImageEmbedder wraps an image embedder with budget and observability.
func NewInstrumentedImageEmbedder(
	inner domain.ImageEmbedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedImageEmbedder {
	return &InstrumentedImageEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// EmbedImage checks budget, delegates to the inner embedder, and records usage.
func (p *InstrumentedImageEmbedder) EmbedImage(
	ctx context.Context, imageRef string,
) (domain.EmbeddingResult, error) {
	if err := checkBudget(ctx, p.budget, p.provider, p.model, p.logger); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()

	result, err := p.inner.EmbedImage(ctx, imageRef)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Image embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}

	recordUsage(p.budget, p.provider, result.TotalTokens)

	p.logger.Debug("Image embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func checkBudget(
	ctx context.Context, budget BudgetChecker,
	provider, model string, logger *zap.Logger,
) error {
	if budget == nil {
		return nil
	}
	if err := budget.Check(ctx); err != nil {
		logger.Error("Budget exceeded",
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func recordUsage(budget BudgetChecker, provider string, tokens int) {
	if budget == nil || tokens <= 0 {
		return
	}
	budget.Record(int64(tokens))
	gauge := metrics.EmbeddingBudgetTokensRemaining
	gauge.WithLabelValues(provider, "daily").Set(float64(budget.RemainingDaily()))
	gauge.WithLabelValues(provider, "monthly").Set(float64(budget.RemainingMonthly()))
}
