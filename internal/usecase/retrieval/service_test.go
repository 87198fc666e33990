package retrieval

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/index"
	"github.com/nexa-labs/ragd/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterRAGMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockEmbedder struct {
	vector []float32
	err    error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector}, nil
}

type mockSearcher struct {
	matches []index.Match
	err     error
	gotK    int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, k int) ([]index.Match, error) {
	m.gotK = k
	return m.matches, m.err
}

func match(chunkID, text string, score float64) index.Match {
	return index.Match{
		Entry: index.Entry{ChunkID: chunkID, DocumentID: "d1", DocumentName: "doc.md", Text: text},
		Score: score,
	}
}

func newTestService(e *mockEmbedder, s *mockSearcher, maxChars int) *Service {
	return New(Config{
		Embedder:        e,
		Searcher:        s,
		MaxContextChars: maxChars,
		Logger:          zap.NewNop(),
	})
}

// --- Tests ---

func TestRetrieve_AssemblesContext(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1, 0}}
	srch := &mockSearcher{matches: []index.Match{
		match("d1:0", "first chunk", 0.9),
		match("d1:1", "second chunk", 0.5),
	}}
	svc := newTestService(emb, srch, 0)

	res, err := svc.Retrieve(context.Background(), "how do I reset?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Refused {
		t.Fatal("unexpected refusal")
	}
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(res.Hits))
	}
	if res.Text != "first chunk\n---\nsecond chunk" {
		t.Errorf("unexpected assembled text: %q", res.Text)
	}
	if srch.gotK != DefaultTopK {
		t.Errorf("expected k=%d, got %d", DefaultTopK, srch.gotK)
	}
}

func TestRetrieve_RefusesBelowThreshold(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1, 0}}
	srch := &mockSearcher{matches: []index.Match{
		match("d1:0", "weak match", 0.2),
		match("d1:1", "weaker match", 0.1),
	}}
	svc := newTestService(emb, srch, 0)

	res, err := svc.Retrieve(context.Background(), "unrelated question")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Refused {
		t.Fatal("expected refusal for below-threshold matches")
	}
	if len(res.Hits) != 0 || res.Text != "" {
		t.Errorf("refusal must carry no context: %+v", res)
	}
}

func TestRetrieve_ThresholdIsInclusive(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1, 0}}
	srch := &mockSearcher{matches: []index.Match{
		match("d1:0", "edge", DefaultSimilarityThreshold),
	}}
	svc := newTestService(emb, srch, 0)

	res, err := svc.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Refused {
		t.Error("a hit exactly at the threshold must be kept")
	}
}

func TestRetrieve_EmptyQuestionRefusesWithoutEmbedding(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("must not be called")}
	svc := newTestService(emb, &mockSearcher{}, 0)

	res, err := svc.Retrieve(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Refused {
		t.Fatal("expected refusal for blank question")
	}
}

func TestRetrieve_EmbedErrorSurfaces(t *testing.T) {
	embErr := errors.New("provider down")
	svc := newTestService(&mockEmbedder{err: embErr}, &mockSearcher{}, 0)

	if _, err := svc.Retrieve(context.Background(), "q"); !errors.Is(err, embErr) {
		t.Fatalf("expected embed error, got %v", err)
	}
}

func TestRetrieve_SearchErrorSurfaces(t *testing.T) {
	srchErr := errors.New("index offline")
	svc := newTestService(&mockEmbedder{vector: []float32{1}}, &mockSearcher{err: srchErr}, 0)

	if _, err := svc.Retrieve(context.Background(), "q"); !errors.Is(err, srchErr) {
		t.Fatalf("expected search error, got %v", err)
	}
}

func TestAssemble_DropsOverflowingChunksWhole(t *testing.T) {
	long := strings.Repeat("x", 50)
	emb := &mockEmbedder{vector: []float32{1, 0}}
	srch := &mockSearcher{matches: []index.Match{
		match("d1:0", "short one", 0.9),
		match("d1:1", long, 0.8), // would overflow, dropped whole
		match("d1:2", "tail", 0.7),
	}}
	svc := newTestService(emb, srch, 30)

	res, err := svc.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if strings.Contains(res.Text, "xxx") {
		t.Error("overflowing chunk must be dropped, not truncated")
	}
	if !strings.Contains(res.Text, "short one") || !strings.Contains(res.Text, "tail") {
		t.Errorf("unexpected assembly: %q", res.Text)
	}
	if len(res.Hits) != 2 {
		t.Errorf("kept hits = %d, want 2", len(res.Hits))
	}
}

func TestRetrieve_RefusesWhenEveryChunkOverflows(t *testing.T) {
	emb := &mockEmbedder{vector: []float32{1, 0}}
	srch := &mockSearcher{matches: []index.Match{
		match("d1:0", strings.Repeat("a", 200), 0.9),
	}}
	svc := newTestService(emb, srch, 100)

	res, err := svc.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Refused {
		t.Fatal("expected refusal when no chunk fits the context budget")
	}
	if len(res.Hits) != 0 || res.Text != "" {
		t.Errorf("refusal carried context: hits=%d text=%q", len(res.Hits), res.Text)
	}
}
