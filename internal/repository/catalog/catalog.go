// Package catalog is the canonical record of ingested documents and their
// chunk payloads. Rebuilding a vector index replays the catalog, so it keeps
// the embedded vectors alongside the chunk text.
package catalog

import (
	"context"

	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
)

// Catalog implements usecase/ingest.Catalog and index.EntrySource.
type Catalog interface {
	// FindByPath returns the live document record for a source path.
	// Returns domain.ErrDocumentNotFound when no record exists.
	FindByPath(ctx context.Context, path string) (document.Document, error)
	// Put stores a document record and its chunk entries, replacing any
	// previous version for the same source path.
	Put(ctx context.Context, doc document.Document, entries []index.Entry) error
	// MarkDeleted flags a document as deleted and drops its chunk entries.
	MarkDeleted(ctx context.Context, documentID string) error
	// Documents lists all live document records.
	Documents(ctx context.Context) ([]document.Document, error)
	// Entries returns the chunk entries of all live documents.
	Entries(ctx context.Context) ([]index.Entry, error)
}
