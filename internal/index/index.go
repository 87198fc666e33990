// Package index defines the vector index contract shared by the in-process
// flat implementation and the external Redis-backed one. Callers never depend
// on which backend is active.
package index

import (
	"context"
	"math"
	"time"
)

// Entry is a single indexed vector with its chunk provenance.
// Norm is cached so cosine similarity reduces to a dot product.
type Entry struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Ordinal      int
	Text         string
	Vector       []float32
	Norm         float64
}

// Match is a search hit: the entry plus its similarity score.
type Match struct {
	Entry Entry
	Score float64
}

// Stats describes the live state of an index generation.
type Stats struct {
	Entries    int
	Dimension  int
	Generation int64
	BuiltAt    time.Time
}

// EntrySource streams canonical entries for a rebuild, ordered by original
// insertion so tie-breaking survives the rebuild.
type EntrySource interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// Index is the vector index contract.
//
// Search returns at most k entries ordered by descending cosine similarity,
// ties broken by earliest insertion. Add rejects vectors whose dimension does
// not match the index dimension. RemoveDocument logically removes all entries
// of a document; physical compaction may wait until Rebuild. Rebuild and Clear
// replace the index wholesale: concurrent searches complete against whichever
// generation they started with.
type Index interface {
	Add(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
	RemoveDocument(ctx context.Context, documentID string) error
	Rebuild(ctx context.Context, source EntrySource) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Dot returns the dot product of a and b (equal length assumed).
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a query vector against an entry
// using the entry's cached norm. Zero-norm vectors score zero.
func Cosine(query []float32, queryNorm float64, e *Entry) float64 {
	if queryNorm == 0 || e.Norm == 0 {
		return 0
	}
	return Dot(query, e.Vector) / (queryNorm * e.Norm)
}
