// Package flat is the in-process brute-force vector index.
//
// The index is organized as immutable generations published through an atomic
// pointer. Searches read the generation current at call time and are never
// blocked by writers. Add and RemoveDocument copy-on-write the entry slice
// under a write mutex; Rebuild and Clear compute a whole new generation off to
// the side and swap it in, so readers observe either the old or the new
// generation entirely, never a mix.
package flat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/index"
)

var _ index.Index = (*Index)(nil)

// generation is one immutable build of the index.
type generation struct {
	entries []index.Entry // insertion order preserved for tie-breaking
	deleted map[string]bool
	number  int64
	builtAt time.Time
}

// live returns the count of non-deleted entries.
func (g *generation) live() int {
	n := 0
	for i := range g.entries {
		if !g.deleted[g.entries[i].DocumentID] {
			n++
		}
	}
	return n
}

// Index is a flat cosine-similarity index over a fixed dimension.
type Index struct {
	dim int

	mu  sync.Mutex // serializes writers; readers go through gen only
	gen atomic.Pointer[generation]
}

// New creates an empty flat index with the given vector dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrInvalidConfig, dim)
	}
	idx := &Index{dim: dim}
	idx.gen.Store(&generation{
		deleted: map[string]bool{},
		number:  1,
		builtAt: time.Now().UTC(),
	})
	return idx, nil
}

// Add appends entries. Dimension mismatches are rejected before anything is
// written, so a bad batch never partially lands.
func (x *Index) Add(ctx context.Context, entries []index.Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	for i := range entries {
		if len(entries[i].Vector) != x.dim {
			return domain.NewDimensionMismatch(x.dim, len(entries[i].Vector))
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	next := &generation{
		entries: append(append([]index.Entry(nil), cur.entries...), entries...),
		deleted: cloneSet(cur.deleted),
		number:  cur.number,
		builtAt: cur.builtAt,
	}
	x.gen.Store(next)
	return nil
}

// Search returns up to k live entries by descending similarity, ties broken
// by insertion order. Search never takes the write lock.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]index.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(vector) != x.dim {
		return nil, domain.NewDimensionMismatch(x.dim, len(vector))
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidConfig, k)
	}

	g := x.gen.Load()
	queryNorm := index.Norm(vector)

	type scored struct {
		pos   int
		score float64
	}
	matches := make([]scored, 0, len(g.entries))
	for i := range g.entries {
		if g.deleted[g.entries[i].DocumentID] {
			continue
		}
		matches = append(matches, scored{pos: i, score: index.Cosine(vector, queryNorm, &g.entries[i])})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		return matches[a].pos < matches[b].pos
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	out := make([]index.Match, len(matches))
	for i, m := range matches {
		out[i] = index.Match{Entry: g.entries[m.pos], Score: m.score}
	}
	return out, nil
}

// RemoveDocument logically removes all entries of a document. Compaction of
// the underlying slice is deferred to Rebuild.
func (x *Index) RemoveDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	if cur.deleted[documentID] {
		return nil
	}
	deleted := cloneSet(cur.deleted)
	deleted[documentID] = true
	x.gen.Store(&generation{
		entries: cur.entries,
		deleted: deleted,
		number:  cur.number,
		builtAt: cur.builtAt,
	})
	return nil
}

// Rebuild reconstructs the index from the canonical source into a fresh
// generation, then publishes it with a single pointer swap. The potentially
// long source read happens outside any lock held by readers.
func (x *Index) Rebuild(ctx context.Context, source index.EntrySource) error {
	entries, err := source.Entries(ctx)
	if err != nil {
		return fmt.Errorf("load rebuild source: %w", err)
	}
	for i := range entries {
		if len(entries[i].Vector) != x.dim {
			return domain.NewDimensionMismatch(x.dim, len(entries[i].Vector))
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	x.gen.Store(&generation{
		entries: entries,
		deleted: map[string]bool{},
		number:  cur.number + 1,
		builtAt: time.Now().UTC(),
	})
	return nil
}

// Clear removes all entries. Idempotent.
func (x *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	x.gen.Store(&generation{
		deleted: map[string]bool{},
		number:  cur.number + 1,
		builtAt: time.Now().UTC(),
	})
	return nil
}

// Stats reports live entry count, dimension, and generation build info.
func (x *Index) Stats(_ context.Context) (index.Stats, error) {
	g := x.gen.Load()
	return index.Stats{
		Entries:    g.live(),
		Dimension:  x.dim,
		Generation: g.number,
		BuiltAt:    g.builtAt,
	}, nil
}

func cloneSet(m map[string]bool) map[string]bool {
	c := make(map[string]bool, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
