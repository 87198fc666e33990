// Package ragd embeds the retrieval-augmented answering engine in process:
// chunking, embedding, vector search, and provider-routed generation behind
// one handle.
package ragd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/db"
	dbRedis "github.com/nexa-labs/ragd/internal/db/redis"
	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/chunk"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
	"github.com/nexa-labs/ragd/internal/index"
	"github.com/nexa-labs/ragd/internal/index/flat"
	"github.com/nexa-labs/ragd/internal/index/redisvec"
	"github.com/nexa-labs/ragd/internal/repository/catalog"
	"github.com/nexa-labs/ragd/internal/repository/embcache"
	"github.com/nexa-labs/ragd/internal/repository/session"
	ollamaTransport "github.com/nexa-labs/ragd/internal/transport/ollama"
	openaiTransport "github.com/nexa-labs/ragd/internal/transport/openai"
	ingestuc "github.com/nexa-labs/ragd/internal/usecase/ingest"
	provideruc "github.com/nexa-labs/ragd/internal/usecase/provider"
	raguc "github.com/nexa-labs/ragd/internal/usecase/rag"
	retrievaluc "github.com/nexa-labs/ragd/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Answer is the outcome of one question.
type Answer struct {
	SessionID string
	Text      string
	Refused   bool
	Sources   []string
}

// IngestSummary reports a directory ingestion run.
type IngestSummary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Errors    map[string]string
}

// Stats describes the live index.
type Stats struct {
	Entries    int
	Dimension  int
	Generation int64
}

// Engine is the embedded entry point.
type Engine struct {
	store     db.Store
	ingestSvc *ingestuc.Service
	ragSvc    *raguc.Service
}

// Open wires an in-process engine. An embedding provider is required; Redis
// is optional and defaults to process memory.
func Open(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		provider: domprov.Defaults(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.dimensions <= 0 {
		return nil, errors.New("ragd: embedding dimensions required (use WithCloudEmbedding or WithDimensions)")
	}
	if cfg.embedder == nil && cfg.embAPIKey == "" {
		return nil, errors.New("ragd: embedding provider required (use WithCloudEmbedding or WithEmbedder)")
	}

	ctx := context.Background()

	var store db.Store
	if cfg.redisAddr != "" {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    []string{cfg.redisAddr},
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("ragd: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("ragd: redis not ready: %w", err)
		}
		store = s
	}

	embedder, err := buildEmbedder(cfg, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	idx, cat, sessions, err := buildStorage(ctx, cfg, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	router, err := provideruc.New(ctx, provideruc.Config{
		Factory: backendFactory{logger: cfg.logger},
		Initial: cfg.provider,
		Logger:  cfg.logger,
	})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("ragd: configure provider: %w", err)
	}

	splitter := chunk.Splitter{}
	if cfg.chunkSize > 0 {
		splitter, err = chunk.NewSplitter(cfg.chunkSize, cfg.chunkOverlap)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, fmt.Errorf("ragd: %w", err)
		}
	}

	ingestSvc := ingestuc.New(ingestuc.Config{
		Catalog:  cat,
		Index:    idx,
		Embedder: embedder,
		Splitter: splitter,
		Logger:   cfg.logger,
	})

	retrievalSvc := retrievaluc.New(retrievaluc.Config{
		Embedder:            embedder,
		Searcher:            idx,
		TopK:                cfg.topK,
		SimilarityThreshold: cfg.threshold,
		MaxContextChars:     cfg.maxContextChars,
		Logger:              cfg.logger,
	})

	ragSvc := raguc.New(raguc.Config{
		Retriever:    retrievalSvc,
		Generator:    router,
		Sessions:     sessions,
		SystemPrompt: cfg.systemPrompt,
		RAGAddon:     cfg.ragAddon,
		Logger:       cfg.logger,
	})

	return &Engine{
		store:     store,
		ingestSvc: ingestSvc,
		ragSvc:    ragSvc,
	}, nil
}

// Ingest loads, chunks, embeds, and indexes a file or directory.
func (e *Engine) Ingest(ctx context.Context, path string) (IngestSummary, error) {
	sum, err := e.ingestSvc.IngestDir(ctx, path, "")
	if err != nil {
		return IngestSummary{}, fmt.Errorf("ingest: %w", err)
	}
	return IngestSummary{
		Succeeded: sum.Succeeded,
		Skipped:   sum.Skipped,
		Failed:    sum.Failed,
		Errors:    sum.Errors,
	}, nil
}

// Ask answers a question against the ingested knowledge base. An empty
// sessionID starts a new session.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	ans, err := e.ragSvc.Ask(ctx, sessionID, question)
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return Answer{
		SessionID: ans.SessionID,
		Text:      ans.Text,
		Refused:   ans.Refused,
		Sources:   ans.Sources,
	}, nil
}

// Stats reports the live index state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	s, err := e.ingestSvc.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return Stats{Entries: s.Entries, Dimension: s.Dimension, Generation: s.Generation}, nil
}

// Rebuild reconstructs the index from the catalog.
func (e *Engine) Rebuild(ctx context.Context) error {
	if _, err := e.ingestSvc.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	return nil
}

// Clear drops all indexed entries and marks catalog documents deleted.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.ingestSvc.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Close releases all resources.
func (e *Engine) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

type embedderChain interface {
	domain.Embedder
	domain.BatchEmbedder
}

func buildEmbedder(cfg *engineConfig, store db.Store) (embedderChain, error) {
	var base embedderChain
	if cfg.embedder != nil {
		base = &embedderAdapter{inner: cfg.embedder}
	} else {
		base = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.embAPIKey,
			BaseURL:    cfg.embBaseURL,
			Model:      cfg.embModel,
			Dimensions: cfg.dimensions,
			Logger:     cfg.logger,
		})
	}
	if store != nil {
		return embcache.New(base, store, cfg.embModel, nil, cfg.logger), nil
	}
	return base, nil
}

func buildStorage(
	ctx context.Context, cfg *engineConfig, store db.Store,
) (index.Index, ingestuc.Catalog, session.Store, error) {
	if store != nil {
		idx, err := redisvec.New(ctx, redisvec.Config{
			Store:     store,
			Dimension: cfg.dimensions,
			Logger:    cfg.logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("ragd: create redis index: %w", err)
		}
		return idx, catalog.New(store), session.New(store, 0), nil
	}

	idx, err := flat.New(cfg.dimensions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ragd: create index: %w", err)
	}
	return idx, catalog.NewMemory(), session.NewMemory(), nil
}

// backendFactory builds generation backends from provider settings.
type backendFactory struct {
	logger *zap.Logger
}

func (f backendFactory) Ollama(s domprov.OllamaSettings, p domprov.GenParams) provideruc.Backend {
	return ollamaTransport.New(s, p, f.logger)
}

func (f backendFactory) Cloud(s domprov.CloudSettings, p domprov.GenParams) provideruc.Backend {
	return openaiTransport.NewGenerator(s, p, f.logger)
}

// embedderAdapter wraps the public Embedder to satisfy the internal contracts.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vec, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	vecs, err := a.inner.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}
