// Package embedding decorates the transport embedder with retry, batch
// splitting, and logging.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
)

// DefaultMaxAPIBatchSize caps the number of texts sent in one API request.
const DefaultMaxAPIBatchSize = 256

// defaultRetryBackoff is the pause before the single retry of a failed call.
const defaultRetryBackoff = 500 * time.Millisecond

// InstrumentedEmbedder wraps an Embedder with one retry on transient provider
// failure, sub-batch splitting, and logging. Transport metrics (requests,
// duration, tokens) are recorded in transport/openai; this layer owns retries.
type InstrumentedEmbedder struct {
	inner   inner
	model   string
	backoff time.Duration
	logger  *zap.Logger
}

type inner interface {
	domain.Embedder
	domain.BatchEmbedder
}

// NewInstrumentedEmbedder wraps an embedder with retry and observability.
func NewInstrumentedEmbedder(in inner, model string, logger *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:   in,
		model:   model,
		backoff: defaultRetryBackoff,
		logger:  logger,
	}
}

// Embed delegates to the inner embedder, retrying once on provider failure.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)
	if err != nil && p.shouldRetry(ctx, err) {
		p.logger.Warn("Embedding request failed, retrying",
			zap.String("model", p.model),
			zap.Error(err),
		)
		result, err = p.inner.Embed(ctx, text)
	}

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits texts into sub-batches and delegates each to the inner
// embedder with one retry per sub-batch.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	var allEmbeddings [][]float32
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		end := offset + DefaultMaxAPIBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[offset:end]

		res, err := p.inner.BatchEmbed(ctx, sub)
		if err != nil && p.shouldRetry(ctx, err) {
			p.logger.Warn("Batch embedding failed, retrying",
				zap.String("model", p.model),
				zap.Int("batch_offset", offset),
				zap.Int("batch_size", len(sub)),
				zap.Error(err),
			)
			res, err = p.inner.BatchEmbed(ctx, sub)
		}
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("model", p.model),
				zap.Int("batch_offset", offset),
				zap.Int("batch_size", len(sub)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}

		allEmbeddings = append(allEmbeddings, res.Embeddings...)
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", totalPrompt),
		zap.Int("total_tokens", totalTokens),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// shouldRetry sleeps the backoff and reports whether the failed call is worth
// one more attempt. Only transient provider failures qualify.
func (p *InstrumentedEmbedder) shouldRetry(ctx context.Context, err error) bool {
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(p.backoff):
		return true
	}
}
