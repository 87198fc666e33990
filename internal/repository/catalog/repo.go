package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/nexa-labs/ragd/internal/db"
	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
)

const (
	docKeyPrefix   = "ragd:doc:"
	chunkKeyPrefix = "ragd:docchunk:"
	pathKeyPrefix  = "ragd:docpath:"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

var _ Catalog = (*Repo)(nil)

// Repo is the Redis-backed catalog.
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func docKey(id string) string        { return docKeyPrefix + id }
func chunkKey(chunkID string) string { return chunkKeyPrefix + chunkID }
func pathKey(path string) string     { return pathKeyPrefix + path }

// FindByPath resolves a source path to its live document record.
func (r *Repo) FindByPath(ctx context.Context, path string) (document.Document, error) {
	idRaw, err := r.store.Get(ctx, pathKey(path))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return document.Document{}, domain.ErrDocumentNotFound
		}
		return document.Document{}, fmt.Errorf("resolve path %s: %w", path, err)
	}

	fields, err := r.store.HGetAll(ctx, docKey(string(idRaw)))
	if err != nil {
		return document.Document{}, fmt.Errorf("load document %s: %w", idRaw, err)
	}
	if len(fields) == 0 || fields["deleted"] == "1" {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	return parseDocFields(fields), nil
}

// Put stores the record and chunk entries, superseding any earlier document
// at the same path. The path pointer is written last so a reader never
// resolves a path to a half-written record.
func (r *Repo) Put(ctx context.Context, doc document.Document, entries []index.Entry) error {
	prevID, err := r.store.Get(ctx, pathKey(doc.SourcePath()))
	if err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("resolve previous version: %w", err)
	}

	items := make([]db.HashSetItem, 0, len(entries)+1)
	items = append(items, db.HashSetItem{Key: docKey(doc.ID()), Fields: buildDocFields(&doc)})
	for i := range entries {
		items = append(items, db.HashSetItem{
			Key:    chunkKey(entries[i].ChunkID),
			Fields: buildEntryFields(&entries[i]),
		})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write document %s: %w", doc.ID(), err)
	}

	if err := r.store.Set(ctx, pathKey(doc.SourcePath()), []byte(doc.ID())); err != nil {
		return fmt.Errorf("write path pointer: %w", err)
	}

	if prev := string(prevID); prev != "" && prev != doc.ID() {
		if err := r.dropDocument(ctx, prev); err != nil {
			return fmt.Errorf("drop superseded document %s: %w", prev, err)
		}
	}
	return nil
}

// MarkDeleted flags the record and drops its chunk entries.
func (r *Repo) MarkDeleted(ctx context.Context, documentID string) error {
	fields, err := r.store.HGetAll(ctx, docKey(documentID))
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}
	if len(fields) == 0 {
		return domain.ErrDocumentNotFound
	}

	doc := parseDocFields(fields)
	doc = doc.WithDeleted()
	if err := r.store.HSet(ctx, docKey(documentID), buildDocFields(&doc)); err != nil {
		return fmt.Errorf("mark deleted %s: %w", documentID, err)
	}

	keys, err := r.store.Scan(ctx, chunkKeyPrefix+documentID+":*")
	if err != nil {
		return fmt.Errorf("scan chunks of %s: %w", documentID, err)
	}
	if err := r.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", documentID, err)
	}
	return nil
}

// Documents lists all live records sorted by source path.
func (r *Repo) Documents(ctx context.Context) ([]document.Document, error) {
	keys, err := r.store.Scan(ctx, docKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	docs := make([]document.Document, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 || m["deleted"] == "1" {
			continue
		}
		docs = append(docs, parseDocFields(m))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourcePath() < docs[j].SourcePath() })
	return docs, nil
}

// Entries returns the chunk entries of all live documents ordered by
// (document path, ordinal) so rebuilds are deterministic.
func (r *Repo) Entries(ctx context.Context) ([]index.Entry, error) {
	docs, err := r.Documents(ctx)
	if err != nil {
		return nil, err
	}

	var out []index.Entry
	for i := range docs {
		keys, err := r.store.Scan(ctx, chunkKeyPrefix+docs[i].ID()+":*")
		if err != nil {
			return nil, fmt.Errorf("scan chunks of %s: %w", docs[i].ID(), err)
		}
		maps, err := r.store.HGetAllMulti(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load chunks of %s: %w", docs[i].ID(), err)
		}

		entries := make([]index.Entry, 0, len(maps))
		for _, m := range maps {
			if len(m) == 0 {
				continue
			}
			e, err := parseEntryFields(m)
			if err != nil {
				return nil, fmt.Errorf("parse chunk entry: %w", err)
			}
			entries = append(entries, e)
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].Ordinal < entries[b].Ordinal })
		out = append(out, entries...)
	}
	return out, nil
}

func (r *Repo) dropDocument(ctx context.Context, documentID string) error {
	keys, err := r.store.Scan(ctx, chunkKeyPrefix+documentID+":*")
	if err != nil {
		return err
	}
	keys = append(keys, docKey(documentID))
	return r.store.DelMulti(ctx, keys)
}
