package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/retrieval"
	"github.com/nexa-labs/ragd/internal/repository/session"
)

// --- Mocks ---

type mockRetriever struct {
	ctx   retrieval.Context
	err   error
	calls int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string) (retrieval.Context, error) {
	m.calls++
	return m.ctx, m.err
}

type mockGenerator struct {
	out       string
	err       error
	calls     int
	gotPrompt string
	gotSystem string
}

func (m *mockGenerator) Generate(_ context.Context, prompt, system string) (string, error) {
	m.calls++
	m.gotPrompt = prompt
	m.gotSystem = system
	return m.out, m.err
}

type mockSessions struct {
	appended map[string][]session.Turn
	err      error
}

func (m *mockSessions) AppendTurns(_ context.Context, sessionID string, turns ...session.Turn) error {
	if m.err != nil {
		return m.err
	}
	if m.appended == nil {
		m.appended = map[string][]session.Turn{}
	}
	m.appended[sessionID] = append(m.appended[sessionID], turns...)
	return nil
}

func answeredContext() retrieval.Context {
	return retrieval.Context{
		Hits: []retrieval.Hit{
			retrieval.NewHit("d1:0", "d1", "setup.md", "hold the button", 0.9),
			retrieval.NewHit("d1:1", "d1", "setup.md", "wait for the light", 0.7),
			retrieval.NewHit("d2:0", "d2", "faq.md", "contact support", 0.5),
		},
		Text: "hold the button\n---\nwait for the light\n---\ncontact support",
	}
}

func newTestService(r *mockRetriever, g *mockGenerator, s Sessions) *Service {
	return New(Config{Retriever: r, Generator: g, Sessions: s, Logger: zap.NewNop()})
}

// --- Tests ---

func TestAsk_GeneratesFromContext(t *testing.T) {
	gen := &mockGenerator{out: "Hold the reset button for ten seconds."}
	sess := &mockSessions{}
	svc := newTestService(&mockRetriever{ctx: answeredContext()}, gen, sess)

	ans, err := svc.Ask(context.Background(), "s1", "how do I reset?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Refused {
		t.Fatal("unexpected refusal")
	}
	if ans.Text != "Hold the reset button for ten seconds." {
		t.Errorf("answer = %q", ans.Text)
	}
	if ans.SessionID != "s1" {
		t.Errorf("session id = %q", ans.SessionID)
	}

	if !strings.Contains(gen.gotPrompt, "Context:\nhold the button") {
		t.Errorf("prompt missing context block: %q", gen.gotPrompt)
	}
	if !strings.Contains(gen.gotPrompt, "User question: how do I reset?") {
		t.Errorf("prompt missing question: %q", gen.gotPrompt)
	}
	if gen.gotSystem != DefaultSystemPrompt {
		t.Errorf("system prompt = %q", gen.gotSystem)
	}
}

func TestAsk_RefusalSkipsGeneration(t *testing.T) {
	gen := &mockGenerator{out: "should not run"}
	svc := newTestService(&mockRetriever{ctx: retrieval.Refusal()}, gen, &mockSessions{})

	ans, err := svc.Ask(context.Background(), "s1", "what is the weather?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Refused {
		t.Fatal("expected refusal")
	}
	if ans.Text != Refusal {
		t.Errorf("refusal text = %q", ans.Text)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on refusal", gen.calls)
	}
	if len(ans.Sources) != 0 {
		t.Errorf("refusal must carry no sources: %v", ans.Sources)
	}
}

func TestAsk_DedupesSources(t *testing.T) {
	svc := newTestService(&mockRetriever{ctx: answeredContext()}, &mockGenerator{out: "ok"}, nil)

	ans, err := svc.Ask(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(ans.Sources) != 2 || ans.Sources[0] != "setup.md" || ans.Sources[1] != "faq.md" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if len(ans.Contexts) != 3 {
		t.Errorf("contexts = %d, want one per hit", len(ans.Contexts))
	}
	if ans.Contexts[0].ChunkID != "d1:0" || ans.Contexts[0].Score != 0.9 {
		t.Errorf("unexpected first context: %+v", ans.Contexts[0])
	}
}

func TestAsk_MintsSessionID(t *testing.T) {
	sess := &mockSessions{}
	svc := newTestService(&mockRetriever{ctx: answeredContext()}, &mockGenerator{out: "ok"}, sess)

	ans, err := svc.Ask(context.Background(), "", "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.SessionID == "" {
		t.Fatal("expected a minted session id")
	}
	turns := sess.appended[ans.SessionID]
	if len(turns) != 2 {
		t.Fatalf("expected 2 recorded turns, got %d", len(turns))
	}
	if turns[0].Role != session.RoleUser || turns[1].Role != session.RoleAssistant {
		t.Errorf("unexpected roles: %+v", turns)
	}
	if turns[1].Content != "ok" {
		t.Errorf("assistant turn = %q", turns[1].Content)
	}
}

func TestAsk_SessionFailureDoesNotFailAnswer(t *testing.T) {
	sess := &mockSessions{err: errors.New("redis down")}
	svc := newTestService(&mockRetriever{ctx: answeredContext()}, &mockGenerator{out: "ok"}, sess)

	ans, err := svc.Ask(context.Background(), "s1", "q")
	if err != nil {
		t.Fatalf("Ask must not fail on session errors: %v", err)
	}
	if ans.Text != "ok" {
		t.Errorf("answer = %q", ans.Text)
	}
}

func TestAsk_PreviewTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", previewChars-1) + "é" + strings.Repeat("z", 50)
	rctx := retrieval.Context{
		Hits: []retrieval.Hit{retrieval.NewHit("d1:0", "d1", "kb.md", long, 0.9)},
		Text: long,
	}
	svc := newTestService(&mockRetriever{ctx: rctx}, &mockGenerator{out: "ok"}, nil)

	ans, err := svc.Ask(context.Background(), "s1", "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	got := ans.Contexts[0].Text
	if !utf8.ValidString(got) {
		t.Fatalf("preview is not valid UTF-8: %q", got[len(got)-8:])
	}
	if !strings.HasSuffix(got, "é") {
		t.Errorf("preview should end on the last whole rune, got %q", got[len(got)-8:])
	}
	if utf8.RuneCountInString(got) != previewChars {
		t.Errorf("preview rune count = %d, want %d", utf8.RuneCountInString(got), previewChars)
	}
}

func TestAsk_EmptyQuestionRejected(t *testing.T) {
	ret := &mockRetriever{ctx: answeredContext()}
	svc := newTestService(ret, &mockGenerator{}, nil)

	_, err := svc.Ask(context.Background(), "s1", "   ")
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ret.calls != 0 {
		t.Errorf("retriever called %d times for an empty question", ret.calls)
	}
}

func TestAsk_RetrieveErrorSurfaces(t *testing.T) {
	rerr := errors.New("index offline")
	svc := newTestService(&mockRetriever{err: rerr}, &mockGenerator{}, nil)

	if _, err := svc.Ask(context.Background(), "s1", "q"); !errors.Is(err, rerr) {
		t.Fatalf("expected retrieve error, got %v", err)
	}
}

func TestAsk_GenerateErrorSurfaces(t *testing.T) {
	gerr := errors.New("backend down")
	svc := newTestService(&mockRetriever{ctx: answeredContext()}, &mockGenerator{err: gerr}, nil)

	if _, err := svc.Ask(context.Background(), "s1", "q"); !errors.Is(err, gerr) {
		t.Fatalf("expected generate error, got %v", err)
	}
}

func TestAsk_RefusalRecordedInSession(t *testing.T) {
	sess := &mockSessions{}
	svc := newTestService(&mockRetriever{ctx: retrieval.Refusal()}, &mockGenerator{}, sess)

	ans, err := svc.Ask(context.Background(), "s1", "off topic")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	turns := sess.appended[ans.SessionID]
	if len(turns) != 2 || turns[1].Content != Refusal {
		t.Errorf("refusal not recorded: %+v", turns)
	}
}
