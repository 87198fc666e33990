package chi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
	"github.com/nexa-labs/ragd/internal/domain/retrieval"
	"github.com/nexa-labs/ragd/internal/index/flat"
	"github.com/nexa-labs/ragd/internal/loader"
	"github.com/nexa-labs/ragd/internal/repository/catalog"
	"github.com/nexa-labs/ragd/internal/repository/session"
	healthuc "github.com/nexa-labs/ragd/internal/usecase/health"
	ingestuc "github.com/nexa-labs/ragd/internal/usecase/ingest"
	provideruc "github.com/nexa-labs/ragd/internal/usecase/provider"
	raguc "github.com/nexa-labs/ragd/internal/usecase/rag"
)

// --- Mocks ---

type mockRetriever struct {
	ctx retrieval.Context
	err error
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string) (retrieval.Context, error) {
	return m.ctx, m.err
}

type mockBackend struct {
	out    string
	genErr error
	models []string
}

func (m *mockBackend) Generate(_ context.Context, _, _ string) (string, error) {
	return m.out, m.genErr
}

func (m *mockBackend) HealthCheck(_ context.Context) error { return nil }

func (m *mockBackend) ListModels(_ context.Context) ([]string, error) {
	return m.models, nil
}

type mockFactory struct {
	backend *mockBackend
}

func (f *mockFactory) Ollama(_ domprov.OllamaSettings, _ domprov.GenParams) provideruc.Backend {
	return f.backend
}

func (f *mockFactory) Cloud(_ domprov.CloudSettings, _ domprov.GenParams) provideruc.Backend {
	return f.backend
}

type mockLoader struct {
	files map[string]string
}

func (m *mockLoader) Load(path string) (loader.File, error) {
	content, ok := m.files[path]
	if !ok {
		return loader.File{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, path)
	}
	return loader.File{Path: path, Content: content}, nil
}

func (m *mockLoader) Gather(root string) ([]string, error) {
	var out []string
	for p := range m.files {
		out = append(out, p)
	}
	return out, nil
}

type mockEmbedder struct {
	dim int
	err error
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, m.dim)
		vecs[i][0] = 1
	}
	return domain.BatchEmbeddingResult{Embeddings: vecs}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// --- Fixture ---

type fixture struct {
	server   *httptest.Server
	sessions *session.Memory
	backend  *mockBackend
	files    map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	files := map[string]string{
		"kb/reset.md": "hold the reset button for ten seconds until the light blinks",
	}

	idx, err := flat.New(4)
	if err != nil {
		t.Fatalf("flat.New: %v", err)
	}
	ingestSvc := ingestuc.New(ingestuc.Config{
		Catalog:  catalog.NewMemory(),
		Index:    idx,
		Embedder: &mockEmbedder{dim: 4},
		Loader:   &mockLoader{files: files},
		Logger:   logger,
	})

	backend := &mockBackend{out: "Hold the reset button.", models: []string{"mistral"}}
	router, err := provideruc.New(context.Background(), provideruc.Config{
		Factory: &mockFactory{backend: backend},
		Initial: domprov.Defaults(),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("provider.New: %v", err)
	}

	sessions := session.NewMemory()
	ragSvc := raguc.New(raguc.Config{
		Retriever: &mockRetriever{ctx: retrieval.Context{
			Hits: []retrieval.Hit{
				retrieval.NewHit("d1:0", "d1", "reset.md", "hold the reset button", 0.9),
			},
			Text: "hold the reset button",
		}},
		Generator: router,
		Sessions:  sessions,
		Logger:    logger,
	})

	healthSvc := healthuc.New(&mockPinger{}, nil, nil)

	srv := NewServer(ragSvc, ingestSvc, router, sessions, healthSvc, logger)
	r := chirouter.NewRouter()
	srv.Register(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return &fixture{server: ts, sessions: sessions, backend: backend, files: files}
}
