package retrieval

import (
	"context"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/index"
)

// Embedder vectorizes the user query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Searcher is the vector index read contract.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]index.Match, error)
}
