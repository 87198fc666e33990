package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexa-labs/ragd/internal/domain"
)

var _ Store = (*Memory)(nil)

// Memory is the in-process session store used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]Record
	now  func() time.Time
}

// NewMemory creates an empty in-process session store.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string]Record), now: time.Now}
}

func (m *Memory) AppendTurns(_ context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[sessionID]
	if !ok {
		rec = Record{ID: sessionID, CreatedAt: m.now().UTC()}
	}
	rec.Turns = append(rec.Turns, turns...)
	rec.UpdatedAt = m.now().UTC()
	m.recs[sessionID] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recs[sessionID]
	if !ok {
		return Record{}, domain.ErrSessionNotFound
	}
	out := rec
	out.Turns = append([]Turn(nil), rec.Turns...)
	return out, nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.recs))
	for id := range m.recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Records(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]Record, 0, len(m.recs))
	for _, rec := range m.recs {
		out := rec
		out.Turns = append([]Turn(nil), rec.Turns...)
		recs = append(recs, out)
	}
	sort.Slice(recs, func(a, b int) bool { return recs[a].ID < recs[b].ID })
	return recs, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, sessionID)
	return nil
}

func (m *Memory) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = make(map[string]Record)
	return nil
}
