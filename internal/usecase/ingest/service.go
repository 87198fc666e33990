// Package ingest turns knowledge-base files into indexed, searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/chunk"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
	"github.com/nexa-labs/ragd/internal/metrics"
)

// DefaultConcurrency bounds parallel document ingestion.
const DefaultConcurrency = 4

// Summary is the outcome of a directory ingestion run.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Errors    map[string]string // source path -> error text
}

// Service orchestrates load, chunk, embed, and index for documents.
type Service struct {
	catalog     Catalog
	idx         Index
	embedder    Embedder
	loader      Loader
	splitter    chunk.Splitter
	concurrency int
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per source path
}

// Config holds the ingestion settings.
type Config struct {
	Catalog     Catalog
	Index       Index
	Embedder    Embedder
	Loader      Loader
	Splitter    chunk.Splitter
	Concurrency int
	Logger      *zap.Logger
}

// New creates an ingestion service.
func New(cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Loader == nil {
		cfg.Loader = DiskLoader{}
	}
	if cfg.Splitter.Size() <= 0 {
		cfg.Splitter, _ = chunk.NewSplitter(chunk.DefaultSize, chunk.DefaultOverlap)
	}
	return &Service{
		catalog:     cfg.Catalog,
		idx:         cfg.Index,
		embedder:    cfg.Embedder,
		loader:      cfg.Loader,
		splitter:    cfg.Splitter,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// IngestFile processes a single file. Re-ingesting unchanged content is a
// no-op; changed content supersedes the previous document version. An empty
// version tag defaults to a prefix of the content checksum.
func (s *Service) IngestFile(ctx context.Context, path, version string) (document.Document, bool, error) {
	unlock := s.lockPath(path)
	defer unlock()

	file, err := s.loader.Load(path)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, err
	}

	checksum := document.Checksum(file.Content)

	existing, err := s.catalog.FindByPath(ctx, path)
	if err == nil && existing.Checksum() == checksum {
		metrics.IngestDocumentsTotal.WithLabelValues("skipped").Inc()
		s.logger.Debug("Document unchanged, skipping", zap.String("path", path))
		return existing, false, nil
	}
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, fmt.Errorf("lookup %s: %w", path, err)
	}
	hadPrevious := err == nil

	if version == "" {
		version = checksum[:12]
	}
	doc, err := document.New(uuid.NewString(), path, version, file.Content, time.Now())
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, fmt.Errorf("build document for %s: %w", path, err)
	}

	entries, err := s.embedChunks(ctx, &doc, file.Content)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, err
	}

	if hadPrevious {
		if err := s.idx.RemoveDocument(ctx, existing.ID()); err != nil {
			metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
			return document.Document{}, false, fmt.Errorf("remove previous version of %s: %w", path, err)
		}
	}
	if err := s.idx.Add(ctx, entries); err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, fmt.Errorf("index %s: %w", path, err)
	}
	if err := s.catalog.Put(ctx, doc, entries); err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("failed").Inc()
		return document.Document{}, false, fmt.Errorf("catalog %s: %w", path, err)
	}

	metrics.IngestDocumentsTotal.WithLabelValues("succeeded").Inc()
	s.updateIndexGauge(ctx)

	s.logger.Info("Document ingested",
		zap.String("path", path),
		zap.String("document_id", doc.ID()),
		zap.Int("chunks", len(entries)),
		zap.Bool("replaced", hadPrevious),
	)
	return doc, true, nil
}

// IngestDir processes every loadable file under root with bounded
// concurrency. One failed document never aborts the run.
func (s *Service) IngestDir(ctx context.Context, root, version string) (Summary, error) {
	paths, err := s.loader.Gather(root)
	if err != nil {
		return Summary{}, fmt.Errorf("gather %s: %w", root, err)
	}

	type outcome struct {
		path     string
		ingested bool
		err      error
	}

	sem := make(chan struct{}, s.concurrency)
	results := make(chan outcome, len(paths))
	var wg sync.WaitGroup

	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, ingested, err := s.IngestFile(ctx, path, version)
			results <- outcome{path: path, ingested: ingested, err: err}
		}(path)
	}
	wg.Wait()
	close(results)

	summary := Summary{Errors: make(map[string]string)}
	for res := range results {
		switch {
		case res.err != nil:
			summary.Failed++
			summary.Errors[res.path] = res.err.Error()
			s.logger.Warn("Document ingestion failed",
				zap.String("path", res.path), zap.Error(res.err))
		case res.ingested:
			summary.Succeeded++
		default:
			summary.Skipped++
		}
	}

	s.logger.Info("Directory ingestion finished",
		zap.String("root", root),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Remove deletes a document from the index and flags it in the catalog.
func (s *Service) Remove(ctx context.Context, documentID string) error {
	if err := s.idx.RemoveDocument(ctx, documentID); err != nil {
		return fmt.Errorf("remove from index: %w", err)
	}
	if err := s.catalog.MarkDeleted(ctx, documentID); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	s.updateIndexGauge(ctx)
	return nil
}

// Rebuild replays the catalog into a fresh index generation.
func (s *Service) Rebuild(ctx context.Context) (index.Stats, error) {
	if err := s.idx.Rebuild(ctx, s.catalog); err != nil {
		return index.Stats{}, fmt.Errorf("rebuild index: %w", err)
	}
	stats, err := s.idx.Stats(ctx)
	if err != nil {
		return index.Stats{}, fmt.Errorf("index stats: %w", err)
	}
	metrics.IndexEntries.Set(float64(stats.Entries))
	s.logger.Info("Index rebuilt",
		zap.Int("entries", stats.Entries),
		zap.Int64("generation", stats.Generation),
	)
	return stats, nil
}

// Clear empties the index. Catalog records survive so a later Rebuild can
// restore them.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.idx.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	metrics.IndexEntries.Set(0)
	return nil
}

// Stats reports the live index stats.
func (s *Service) Stats(ctx context.Context) (index.Stats, error) {
	stats, err := s.idx.Stats(ctx)
	if err != nil {
		return index.Stats{}, fmt.Errorf("index stats: %w", err)
	}
	return stats, nil
}

// Documents lists the catalog's live records.
func (s *Service) Documents(ctx context.Context) ([]document.Document, error) {
	docs, err := s.catalog.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) embedChunks(ctx context.Context, doc *document.Document, content string) ([]index.Entry, error) {
	chunks := s.splitter.Split(doc.ID(), content)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text()
	}

	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", doc.SourcePath(), err)
	}
	if len(res.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks of %s",
			len(res.Embeddings), len(chunks), doc.SourcePath())
	}

	entries := make([]index.Entry, len(chunks))
	for i := range chunks {
		entries[i] = index.Entry{
			ChunkID:      chunks[i].ID(),
			DocumentID:   doc.ID(),
			DocumentName: doc.Name(),
			Ordinal:      chunks[i].Ordinal(),
			Text:         chunks[i].Text(),
			Vector:       res.Embeddings[i],
			Norm:         index.Norm(res.Embeddings[i]),
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Ordinal < entries[b].Ordinal })
	return entries, nil
}

func (s *Service) lockPath(path string) func() {
	s.mu.Lock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) updateIndexGauge(ctx context.Context) {
	if stats, err := s.idx.Stats(ctx); err == nil {
		metrics.IndexEntries.Set(float64(stats.Entries))
	}
}
