// Package retrieval finds the knowledge-base context for a user question and
// decides whether the corpus supports answering at all.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain/retrieval"
	"github.com/nexa-labs/ragd/internal/metrics"
)

// Defaults mirror the original service tuning.
const (
	DefaultTopK                = 4
	DefaultSimilarityThreshold = 0.35
	DefaultMaxContextChars     = 6000
)

// chunkSeparator joins selected chunks in the assembled context.
const chunkSeparator = "\n---\n"

// Service is the retrieval pipeline.
type Service struct {
	embedder  Embedder
	searcher  Searcher
	topK      int
	threshold float64
	maxChars  int
	logger    *zap.Logger
}

// Config holds the retrieval settings.
type Config struct {
	Embedder            Embedder
	Searcher            Searcher
	TopK                int
	SimilarityThreshold float64
	MaxContextChars     int
	Logger              *zap.Logger
}

// New creates a retrieval service.
func New(cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		embedder:  cfg.Embedder,
		searcher:  cfg.Searcher,
		topK:      cfg.TopK,
		threshold: cfg.SimilarityThreshold,
		maxChars:  cfg.MaxContextChars,
		logger:    cfg.Logger,
	}
}

// Retrieve embeds the question, searches the index, and assembles the context.
// When no hit clears the similarity threshold the result is a refusal, which
// is a normal outcome, not an error.
func (s *Service) Retrieve(ctx context.Context, question string) (retrieval.Context, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		metrics.RetrievalRequestsTotal.WithLabelValues("refused").Inc()
		return retrieval.Refusal(), nil
	}

	embedded, err := s.embedder.Embed(ctx, question)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return retrieval.Context{}, fmt.Errorf("embed question: %w", err)
	}

	matches, err := s.searcher.Search(ctx, embedded.Embedding, s.topK)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return retrieval.Context{}, fmt.Errorf("search index: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.threshold {
			continue
		}
		hits = append(hits, retrieval.NewHit(
			m.Entry.ChunkID, m.Entry.DocumentID, m.Entry.DocumentName, m.Entry.Text, m.Score,
		))
	}
	metrics.RetrievalHitsPerQuery.Observe(float64(len(hits)))

	if len(hits) == 0 {
		metrics.RetrievalRequestsTotal.WithLabelValues("refused").Inc()
		s.logger.Debug("No relevant context found",
			zap.Int("candidates", len(matches)),
			zap.Float64("threshold", s.threshold),
		)
		return retrieval.Refusal(), nil
	}

	kept, text := s.assemble(hits)
	if len(kept) == 0 {
		// Every relevant chunk overflows the budget. An empty context must
		// refuse, never reach generation uncited.
		metrics.RetrievalRequestsTotal.WithLabelValues("refused").Inc()
		s.logger.Debug("All relevant chunks overflow the context budget",
			zap.Int("hits", len(hits)),
			zap.Int("max_chars", s.maxChars),
		)
		return retrieval.Refusal(), nil
	}

	metrics.RetrievalRequestsTotal.WithLabelValues("answered").Inc()
	s.logger.Debug("Context assembled",
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(kept)),
		zap.Int("chars", len(text)),
		zap.Float64("top_score", hits[0].Score()),
	)

	return retrieval.Context{Hits: kept, Text: text}, nil
}

// assemble joins hit texts best-score-first under the character budget.
// A chunk that would overflow the budget is dropped whole, never truncated.
func (s *Service) assemble(hits []retrieval.Hit) ([]retrieval.Hit, string) {
	var b strings.Builder
	kept := make([]retrieval.Hit, 0, len(hits))

	for _, h := range hits {
		add := len(h.Text())
		if b.Len() > 0 {
			add += len(chunkSeparator)
		}
		if b.Len()+add > s.maxChars {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(h.Text())
		kept = append(kept, h)
	}

	return kept, b.String()
}
