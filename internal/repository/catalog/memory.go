package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/document"
	"github.com/nexa-labs/ragd/internal/index"
)

var _ Catalog = (*Memory)(nil)

// Memory is the in-process catalog used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string]document.Document // by id
	byPath  map[string]string            // source path -> id
	entries map[string][]index.Entry     // by document id
}

// NewMemory creates an empty in-process catalog.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string]document.Document),
		byPath:  make(map[string]string),
		entries: make(map[string][]index.Entry),
	}
}

func (m *Memory) FindByPath(_ context.Context, path string) (document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPath[path]
	if !ok {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	doc, ok := m.docs[id]
	if !ok || doc.Deleted() {
		return document.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *Memory) Put(_ context.Context, doc document.Document, entries []index.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byPath[doc.SourcePath()]; ok && prev != doc.ID() {
		delete(m.docs, prev)
		delete(m.entries, prev)
	}
	m.docs[doc.ID()] = doc
	m.byPath[doc.SourcePath()] = doc.ID()
	m.entries[doc.ID()] = append([]index.Entry(nil), entries...)
	return nil
}

func (m *Memory) MarkDeleted(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	m.docs[documentID] = doc.WithDeleted()
	delete(m.entries, documentID)
	return nil
}

func (m *Memory) Documents(_ context.Context) ([]document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]document.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if d.Deleted() {
			continue
		}
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourcePath() < docs[j].SourcePath() })
	return docs, nil
}

func (m *Memory) Entries(_ context.Context) ([]index.Entry, error) {
	docs, err := m.Documents(context.Background())
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []index.Entry
	for i := range docs {
		out = append(out, m.entries[docs[i].ID()]...)
	}
	return out, nil
}
