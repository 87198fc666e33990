// Package redisvec is the external vector index backed by a Redis FT index.
//
// Entries live as hashes keyed <prefix><generation>:<chunkID> with a FLOAT32
// blob vector field. Each generation gets its own FT index over its own key
// prefix; Rebuild populates the next generation fully before an atomic swap of
// the active-generation pointer. A retired generation is not deleted until the
// following swap, so searches in flight across a swap still finish against the
// generation they started with.
package redisvec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/db"
	dbredis "github.com/nexa-labs/ragd/internal/db/redis"
	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/index"
)

var _ index.Index = (*Index)(nil)

// generation identifies one FT index build.
type generation struct {
	number  int64
	builtAt time.Time
}

// Index is the Redis-backed vector index.
type Index struct {
	store     db.Store
	dim       int
	keyPrefix string
	logger    *zap.Logger

	mu  sync.Mutex // serializes writers and generation swaps
	gen atomic.Pointer[generation]
	seq atomic.Int64 // insertion sequence for deterministic tie-breaking
}

// Config holds the index settings.
type Config struct {
	Store     db.Store
	Dimension int
	KeyPrefix string // defaults to "ragd:vec:"
	Logger    *zap.Logger
}

// New creates the index and ensures the FT index for the initial generation exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d",
			domain.ErrInvalidConfig, cfg.Dimension)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ragd:vec:"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	x := &Index{
		store:     cfg.Store,
		dim:       cfg.Dimension,
		keyPrefix: cfg.KeyPrefix,
		logger:    cfg.Logger,
	}
	x.gen.Store(&generation{number: 1, builtAt: time.Now().UTC()})

	if err := x.ensureIndex(ctx, 1); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *Index) indexName(gen int64) string {
	return fmt.Sprintf("%sidx:%d", x.keyPrefix, gen)
}

func (x *Index) genPrefix(gen int64) string {
	return fmt.Sprintf("%s%d:", x.keyPrefix, gen)
}

func (x *Index) entryKey(gen int64, chunkID string) string {
	return x.genPrefix(gen) + chunkID
}

func (x *Index) ensureIndex(ctx context.Context, gen int64) error {
	def := &db.IndexDefinition{
		Name:     x.indexName(gen),
		Prefixes: []string{x.genPrefix(gen)},
		Fields: []db.IndexField{
			{Name: "doc_id", Type: db.IndexFieldTag},
			{Name: "seq", Type: db.IndexFieldNumeric},
			{Name: "vector", Type: db.IndexFieldVector, VectorDim: x.dim, VectorDistance: db.DistanceCosine},
		},
	}
	if err := x.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create ft index: %w", err)
	}
	return nil
}

// Add writes entries to the active generation. Dimension mismatches are
// rejected before any hash is written.
func (x *Index) Add(ctx context.Context, entries []index.Entry) error {
	for i := range entries {
		if len(entries[i].Vector) != x.dim {
			return domain.NewDimensionMismatch(x.dim, len(entries[i].Vector))
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	gen := x.gen.Load().number
	items := make([]db.HashSetItem, len(entries))
	for i := range entries {
		items[i] = db.HashSetItem{
			Key:    x.entryKey(gen, entries[i].ChunkID),
			Fields: x.entryFields(&entries[i]),
		}
	}
	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	return nil
}

func (x *Index) entryFields(e *index.Entry) map[string]string {
	return map[string]string{
		"chunk_id": e.ChunkID,
		"doc_id":   e.DocumentID,
		"doc_name": e.DocumentName,
		"ordinal":  strconv.Itoa(e.Ordinal),
		"text":     e.Text,
		"norm":     strconv.FormatFloat(e.Norm, 'g', -1, 64),
		"seq":      strconv.FormatInt(x.seq.Add(1), 10),
		"vector":   dbredis.VectorToBytes(e.Vector),
	}
}

// Search runs a KNN query against the generation active at call time and
// re-sorts client-side by (score desc, insertion seq asc) for determinism.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]index.Match, error) {
	if len(vector) != x.dim {
		return nil, domain.NewDimensionMismatch(x.dim, len(vector))
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidConfig, k)
	}

	gen := x.gen.Load().number
	res, err := x.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    x.indexName(gen),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"chunk_id", "doc_id", "doc_name", "ordinal", "text", "norm", "seq", "__vector_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}

	type seqMatch struct {
		m   index.Match
		seq int64
	}
	matches := make([]seqMatch, 0, len(res.Entries))
	for i := range res.Entries {
		e := &res.Entries[i]
		ordinal, _ := strconv.Atoi(e.Fields["ordinal"])
		norm, _ := strconv.ParseFloat(e.Fields["norm"], 64)
		seq, _ := strconv.ParseInt(e.Fields["seq"], 10, 64)
		matches = append(matches, seqMatch{
			m: index.Match{
				Entry: index.Entry{
					ChunkID:      e.Fields["chunk_id"],
					DocumentID:   e.Fields["doc_id"],
					DocumentName: e.Fields["doc_name"],
					Ordinal:      ordinal,
					Text:         e.Fields["text"],
					Norm:         norm,
				},
				Score: e.Score,
			},
			seq: seq,
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].m.Score != matches[b].m.Score {
			return matches[a].m.Score > matches[b].m.Score
		}
		return matches[a].seq < matches[b].seq
	})

	out := make([]index.Match, len(matches))
	for i := range matches {
		out[i] = matches[i].m
	}
	return out, nil
}

// RemoveDocument deletes all entry hashes of a document. Chunk IDs embed the
// document ID, so the keys are discoverable by pattern scan.
func (x *Index) RemoveDocument(ctx context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	gen := x.gen.Load().number
	keys, err := x.store.Scan(ctx, x.genPrefix(gen)+documentID+":*")
	if err != nil {
		return fmt.Errorf("scan document entries: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := x.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("delete document entries: %w", err)
	}
	return nil
}

// Rebuild populates the next generation from the canonical source, swaps the
// active generation, then best-effort cleans up the previous one.
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
	next := cur.number + 1

	if err := x.ensureIndex(ctx, next); err != nil {
		return err
	}

	items := make([]db.HashSetItem, len(entries))
	for i := range entries {
		items[i] = db.HashSetItem{
			Key:    x.entryKey(next, entries[i].ChunkID),
			Fields: x.entryFields(&entries[i]),
		}
	}
	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("write rebuild entries: %w", err)
	}

	// Publish: swap is the only step readers can observe.
	x.gen.Store(&generation{number: next, builtAt: time.Now().UTC()})

	// The retired generation stays queryable for searches that loaded its
	// number before the swap. Only the generation before it is deleted.
	x.cleanupGeneration(ctx, cur.number-1)
	return nil
}

// Clear swaps in an empty generation. Idempotent.
func (x *Index) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.gen.Load()
	next := cur.number + 1
	if err := x.ensureIndex(ctx, next); err != nil {
		return err
	}

	x.gen.Store(&generation{number: next, builtAt: time.Now().UTC()})

	x.cleanupGeneration(ctx, cur.number-1)
	return nil
}

// cleanupGeneration drops a retired FT index and its keys. Failures are
// logged, not surfaced: the swap already happened and the keys are
// unreachable through the active generation.
func (x *Index) cleanupGeneration(ctx context.Context, gen int64) {
	if gen < 1 {
		return
	}
	if err := x.store.DropIndex(ctx, x.indexName(gen)); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		x.logger.Warn("failed to drop old index generation",
			zap.Int64("generation", gen), zap.Error(err))
	}
	keys, err := x.store.Scan(ctx, x.genPrefix(gen)+"*")
	if err != nil {
		x.logger.Warn("failed to scan old generation keys",
			zap.Int64("generation", gen), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := x.store.DelMulti(ctx, keys); err != nil {
		x.logger.Warn("failed to delete old generation keys",
			zap.Int64("generation", gen), zap.Error(err))
	}
}

// Stats counts live entries in the active generation.
func (x *Index) Stats(ctx context.Context) (index.Stats, error) {
	g := x.gen.Load()
	count, err := x.store.SearchCount(ctx, x.indexName(g.number), "*")
	if err != nil {
		return index.Stats{}, fmt.Errorf("count entries: %w", err)
	}
	return index.Stats{
		Entries:    count,
		Dimension:  x.dim,
		Generation: g.number,
		BuiltAt:    g.builtAt,
	}, nil
}
