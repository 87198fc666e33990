package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nexa-labs/ragd/internal/db"
	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
)

func makeDoc(t *testing.T, id, path string) document.Document {
	t.Helper()
	doc, err := document.New(id, path, "v1", "some content for "+id, time.Now())
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	return doc
}

func makeEntries(docID string, n int) []index.Entry {
	entries := make([]index.Entry, n)
	for i := range entries {
		vec := []float32{float32(i), 1}
		entries[i] = index.Entry{
			ChunkID:    fmt.Sprintf("%s:%d", docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Text:       "chunk text",
			Vector:     vec,
			Norm:       index.Norm(vec),
		}
	}
	return entries
}

// catalogs returns both implementations so every test runs against each.
func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()
	return map[string]Catalog{
		"redis":  New(newFakeStore()),
		"memory": NewMemory(),
	}
}

func TestPutAndFindByPath(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := makeDoc(t, "d1", "/kb/guide.md")

			if err := c.Put(ctx, doc, makeEntries("d1", 2)); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, err := c.FindByPath(ctx, "/kb/guide.md")
			if err != nil {
				t.Fatalf("FindByPath: %v", err)
			}
			if got.ID() != "d1" || got.Checksum() != doc.Checksum() {
				t.Errorf("unexpected document: id=%q checksum=%q", got.ID(), got.Checksum())
			}

			if _, err := c.FindByPath(ctx, "/kb/other.md"); !errors.Is(err, domain.ErrDocumentNotFound) {
				t.Errorf("expected ErrDocumentNotFound, got %v", err)
			}
		})
	}
}

func TestPutSupersedesPreviousVersion(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := c.Put(ctx, makeDoc(t, "d1", "/kb/guide.md"), makeEntries("d1", 3)); err != nil {
				t.Fatalf("Put v1: %v", err)
			}
			if err := c.Put(ctx, makeDoc(t, "d2", "/kb/guide.md"), makeEntries("d2", 2)); err != nil {
				t.Fatalf("Put v2: %v", err)
			}

			got, err := c.FindByPath(ctx, "/kb/guide.md")
			if err != nil {
				t.Fatalf("FindByPath: %v", err)
			}
			if got.ID() != "d2" {
				t.Errorf("expected superseding document d2, got %q", got.ID())
			}

			entries, err := c.Entries(ctx)
			if err != nil {
				t.Fatalf("Entries: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 entries after supersede, got %d", len(entries))
			}
			for _, e := range entries {
				if e.DocumentID != "d2" {
					t.Errorf("stale entry survived: %q", e.ChunkID)
				}
			}
		})
	}
}

func TestMarkDeleted(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := c.Put(ctx, makeDoc(t, "d1", "/kb/a.md"), makeEntries("d1", 2)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := c.MarkDeleted(ctx, "d1"); err != nil {
				t.Fatalf("MarkDeleted: %v", err)
			}

			if _, err := c.FindByPath(ctx, "/kb/a.md"); !errors.Is(err, domain.ErrDocumentNotFound) {
				t.Errorf("deleted document still resolvable: %v", err)
			}
			docs, err := c.Documents(ctx)
			if err != nil {
				t.Fatalf("Documents: %v", err)
			}
			if len(docs) != 0 {
				t.Errorf("deleted document still listed: %v", docs)
			}
			entries, err := c.Entries(ctx)
			if err != nil {
				t.Fatalf("Entries: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("deleted document entries survived: %d", len(entries))
			}

			if err := c.MarkDeleted(ctx, "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
				t.Errorf("expected ErrDocumentNotFound for unknown id, got %v", err)
			}
		})
	}
}

func TestEntriesOrderedByPathThenOrdinal(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := c.Put(ctx, makeDoc(t, "zz", "/kb/b.md"), makeEntries("zz", 2)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := c.Put(ctx, makeDoc(t, "aa", "/kb/a.md"), makeEntries("aa", 2)); err != nil {
				t.Fatalf("Put: %v", err)
			}

			entries, err := c.Entries(ctx)
			if err != nil {
				t.Fatalf("Entries: %v", err)
			}
			if len(entries) != 4 {
				t.Fatalf("expected 4 entries, got %d", len(entries))
			}
			wantDocs := []string{"aa", "aa", "zz", "zz"}
			for i, e := range entries {
				if e.DocumentID != wantDocs[i] {
					t.Errorf("entries[%d].DocumentID = %q, want %q", i, e.DocumentID, wantDocs[i])
				}
				if e.Ordinal != i%2 {
					t.Errorf("entries[%d].Ordinal = %d, want %d", i, e.Ordinal, i%2)
				}
			}
		})
	}
}

func TestEntriesRoundTripVectors(t *testing.T) {
	c := New(newFakeStore())
	ctx := context.Background()

	want := makeEntries("d1", 1)
	if err := c.Put(ctx, makeDoc(t, "d1", "/kb/a.md"), want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := c.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if len(got.Vector) != len(want[0].Vector) {
		t.Fatalf("vector length mismatch: %d vs %d", len(got.Vector), len(want[0].Vector))
	}
	for i := range got.Vector {
		if got.Vector[i] != want[0].Vector[i] {
			t.Errorf("vector[%d] = %v, want %v", i, got.Vector[i], want[0].Vector[i])
		}
	}
	if got.Norm != want[0].Norm {
		t.Errorf("norm = %v, want %v", got.Norm, want[0].Norm)
	}
}

func TestPutPropagatesStoreError(t *testing.T) {
	fs := newFakeStore()
	storeErr := errors.New("redis down")
	fs.hsetMultiFn = func(context.Context, []db.HashSetItem) error { return storeErr }

	c := New(fs)
	err := c.Put(context.Background(), makeDoc(t, "d1", "/kb/a.md"), makeEntries("d1", 1))
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}
