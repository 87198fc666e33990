package ingest

import (
	"context"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
	"github.com/nexa-labs/ragd/internal/loader"
)

// Catalog is the canonical document store contract.
type Catalog interface {
	FindByPath(ctx context.Context, path string) (document.Document, error)
	Put(ctx context.Context, doc document.Document, entries []index.Entry) error
	MarkDeleted(ctx context.Context, documentID string) error
	Documents(ctx context.Context) ([]document.Document, error)
	Entries(ctx context.Context) ([]index.Entry, error)
}

// Index is the vector index write contract.
type Index interface {
	Add(ctx context.Context, entries []index.Entry) error
	RemoveDocument(ctx context.Context, documentID string) error
	Rebuild(ctx context.Context, source index.EntrySource) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (index.Stats, error)
}

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Loader reads knowledge-base files from disk.
type Loader interface {
	Load(path string) (loader.File, error)
	Gather(root string) ([]string, error)
}

// DiskLoader adapts the loader package to the Loader contract.
type DiskLoader struct{}

func (DiskLoader) Load(path string) (loader.File, error) { return loader.Load(path) }

func (DiskLoader) Gather(root string) ([]string, error) { return loader.Gather(root) }
