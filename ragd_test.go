package ragd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Mocks ---

type staticEmbedder struct {
	vec []float32
}

func (e *staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, nil
}

func (e *staticEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vec
	}
	return out, nil
}

func fakeOllama(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": answer},
			"done":    true,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func writeKB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := "To reset the device hold the reset button for ten seconds until the light blinks."
	if err := os.WriteFile(filepath.Join(dir, "reset.md"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

// --- Tests ---

func TestOpen_RequiresDimensions(t *testing.T) {
	_, err := Open(WithEmbedder(&staticEmbedder{}))
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("expected dimensions error, got %v", err)
	}
}

func TestOpen_RequiresEmbeddingProvider(t *testing.T) {
	_, err := Open(WithDimensions(4))
	if err == nil || !strings.Contains(err.Error(), "embedding provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEngine_IngestAskClear(t *testing.T) {
	ollama := fakeOllama(t, "Hold the reset button for ten seconds.")

	eng, err := Open(
		WithEmbedder(&staticEmbedder{vec: []float32{1, 0, 0, 0}}),
		WithDimensions(4),
		WithOllama(ollama.URL, "mistral"),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()

	sum, err := eng.Ingest(ctx, writeKB(t))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 || stats.Dimension != 4 {
		t.Errorf("stats = %+v", stats)
	}

	ans, err := eng.Ask(ctx, "", "how do I reset the device?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refused {
		t.Fatal("unexpected refusal")
	}
	if ans.Text != "Hold the reset button for ten seconds." {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "reset.md" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if ans.SessionID == "" {
		t.Error("expected a session id")
	}

	if err := eng.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after clear: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("entries after clear = %d", stats.Entries)
	}
}

// termEmbedder scores texts by keyword so related questions land near the
// document vector and unrelated ones stay orthogonal.
type termEmbedder struct{}

func (termEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(strings.ToLower(text), "deploy") {
		return []float32{1, 0, 0, 0}, nil
	}
	return []float32{0, 1, 0, 0}, nil
}

func (e termEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		vec, err := e.Embed(ctx, txt)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestEngine_DeployDocEndToEnd(t *testing.T) {
	ollama := fakeOllama(t, "Run ./deploy.sh to deploy.")

	dir := t.TempDir()
	doc := []byte("Deploy by running `./deploy.sh`.")
	if err := os.WriteFile(filepath.Join(dir, "deploy.md"), doc, 0o600); err != nil {
		t.Fatal(err)
	}

	eng, err := Open(
		WithEmbedder(termEmbedder{}),
		WithDimensions(4),
		WithOllama(ollama.URL, "mistral"),
		WithChunking(400, 80),
		WithRetrieval(4, 0.3),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	ctx := context.Background()
	if _, err := eng.Ingest(ctx, dir); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	ans, err := eng.Ask(ctx, "", "How do I deploy?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refused {
		t.Fatal("expected an answer for the deploy question")
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "deploy.md" {
		t.Errorf("sources = %v", ans.Sources)
	}

	ans, err = eng.Ask(ctx, "", "What is the weather?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refused {
		t.Fatal("expected refusal for the off-topic question")
	}
	if len(ans.Sources) != 0 {
		t.Errorf("refusal carried sources: %v", ans.Sources)
	}
}

func TestEngine_RefusesOffTopic(t *testing.T) {
	// Orthogonal query vector keeps every score at zero, below the threshold.
	eng, err := Open(
		WithEmbedder(&staticEmbedder{vec: []float32{0, 0, 0, 1}}),
		WithDimensions(4),
		WithRetrieval(4, 0.35),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	ans, err := eng.Ask(context.Background(), "", "what is the weather?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refused {
		t.Fatal("expected refusal on an empty index")
	}
}
