package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/config"
	"github.com/nexa-labs/ragd/internal/db"
	dbRedis "github.com/nexa-labs/ragd/internal/db/redis"
	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/chunk"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
	"github.com/nexa-labs/ragd/internal/index"
	"github.com/nexa-labs/ragd/internal/index/flat"
	"github.com/nexa-labs/ragd/internal/index/redisvec"
	logpkg "github.com/nexa-labs/ragd/internal/logger"
	"github.com/nexa-labs/ragd/internal/metrics"
	"github.com/nexa-labs/ragd/internal/repository/catalog"
	"github.com/nexa-labs/ragd/internal/repository/embcache"
	"github.com/nexa-labs/ragd/internal/repository/session"
	chiTransport "github.com/nexa-labs/ragd/internal/transport/chi"
	ollamaTransport "github.com/nexa-labs/ragd/internal/transport/ollama"
	openaiTransport "github.com/nexa-labs/ragd/internal/transport/openai"
	embeddinguc "github.com/nexa-labs/ragd/internal/usecase/embedding"
	healthuc "github.com/nexa-labs/ragd/internal/usecase/health"
	ingestuc "github.com/nexa-labs/ragd/internal/usecase/ingest"
	provideruc "github.com/nexa-labs/ragd/internal/usecase/provider"
	raguc "github.com/nexa-labs/ragd/internal/usecase/rag"
	retrievaluc "github.com/nexa-labs/ragd/internal/usecase/retrieval"
	"github.com/nexa-labs/ragd/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("llm_provider", cfg.Provider.Active),
	)

	ctx := context.Background()

	// Redis is optional: flat index without cache or sessions runs without it.
	var store db.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database")
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRAGMetrics()

	embedder, baseEmbedder := buildEmbedder(cfg, store, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	idx := buildIndex(ctx, cfg, store, logger)

	var cat ingestuc.Catalog
	if store != nil {
		cat = catalog.New(store)
	} else {
		cat = catalog.NewMemory()
	}

	var sessions session.Store
	if store != nil {
		sessions = session.New(store, time.Duration(cfg.Sessions.TTLSec)*time.Second)
	} else {
		sessions = session.NewMemory()
	}

	// Provider router over both generation transports
	router, err := provideruc.New(ctx, provideruc.Config{
		Factory: backendFactory{logger: logger},
		Store:   store,
		Initial: cfg.ProviderSettings(),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create provider router", zap.Error(err))
	}

	ingestSvc := ingestuc.New(ingestuc.Config{
		Catalog:     cat,
		Index:       idx,
		Embedder:    embedder,
		Splitter:    buildSplitter(cfg, logger),
		Concurrency: cfg.Ingest.Concurrency,
		Logger:      logger,
	})

	retrievalSvc := retrievaluc.New(retrievaluc.Config{
		Embedder:            embedder,
		Searcher:            idx,
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		MaxContextChars:     cfg.Retrieval.MaxContextChars,
		Logger:              logger,
	})

	ragSvc := raguc.New(raguc.Config{
		Retriever: retrievalSvc,
		Generator: router,
		Sessions:  sessions,
		Logger:    logger,
	})

	var pinger healthuc.StorePinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, baseEmbedder, routerChecker{router})

	// Startup ingestion of the configured knowledge base
	if cfg.Ingest.DocsDir != "" {
		sum, err := ingestSvc.IngestDir(ctx, cfg.Ingest.DocsDir, "")
		if err != nil {
			logger.Error("Startup ingestion failed", zap.Error(err))
		} else {
			logger.Info("Startup ingestion finished",
				zap.String("dir", cfg.Ingest.DocsDir),
				zap.Int("succeeded", sum.Succeeded),
				zap.Int("skipped", sum.Skipped),
				zap.Int("failed", sum.Failed),
			)
		}
	}

	server := chiTransport.NewServer(ragSvc, ingestSvc, router, sessions, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
// The base transport embedder is returned as well for health probing.
func buildEmbedder(
	cfg config.Config, store db.Store, logger *zap.Logger,
) (*embeddinguc.InstrumentedEmbedder, *openaiTransport.Embedder) {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	var inner interface {
		domain.Embedder
		domain.BatchEmbedder
	} = base
	if cfg.Embedding.Cache && store != nil {
		inner = embcache.New(base, store, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(inner, cfg.Embedding.Model, logger), base
}

func buildIndex(ctx context.Context, cfg config.Config, store db.Store, logger *zap.Logger) index.Index {
	switch cfg.Index.Backend {
	case "redis":
		idx, err := redisvec.New(ctx, redisvec.Config{
			Store:     store,
			Dimension: cfg.Embedding.Dimensions,
			KeyPrefix: cfg.Index.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			logger.Fatal("Failed to create redis vector index", zap.Error(err))
		}
		return idx
	default:
		idx, err := flat.New(cfg.Embedding.Dimensions)
		if err != nil {
			logger.Fatal("Failed to create flat vector index", zap.Error(err))
		}
		return idx
	}
}

// buildSplitter returns the configured splitter, or the zero value so the
// ingest service falls back to its defaults.
func buildSplitter(cfg config.Config, logger *zap.Logger) chunk.Splitter {
	if cfg.Ingest.ChunkSize <= 0 {
		return chunk.Splitter{}
	}
	s, err := chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		logger.Fatal("Invalid chunking configuration", zap.Error(err))
	}
	return s
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

// routerChecker adapts the provider router to the health contract.
type routerChecker struct {
	router *provideruc.Router
}

func (c routerChecker) HealthCheck(ctx context.Context) error {
	return c.router.Status(ctx)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
