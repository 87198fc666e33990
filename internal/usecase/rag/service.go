// Package rag wires retrieval and generation into the question answering flow.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/retrieval"
	"github.com/nexa-labs/ragd/internal/repository/session"
)

// SourceContext is one supporting chunk exposed to the caller for previews.
type SourceContext struct {
	Document string  `json:"document"`
	ChunkID  string  `json:"chunk_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// previewChars caps the context snippet shown in source previews.
const previewChars = 500

// Answer is the outcome of one chat turn.
type Answer struct {
	SessionID string
	Text      string
	Sources   []string
	Contexts  []SourceContext
	Refused   bool
}

// Service orchestrates retrieve-then-generate.
type Service struct {
	retriever Retriever
	generator Generator
	sessions  Sessions
	system    string
	ragAddon  string
	logger    *zap.Logger
	now       func() time.Time
}

// Config holds the orchestrator settings. Empty prompts fall back to the
// package defaults.
type Config struct {
	Retriever    Retriever
	Generator    Generator
	Sessions     Sessions
	SystemPrompt string
	RAGAddon     string
	Logger       *zap.Logger
}

// New creates the orchestrator.
func New(cfg Config) *Service {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.RAGAddon == "" {
		cfg.RAGAddon = DefaultRAGAddon
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		sessions:  cfg.Sessions,
		system:    cfg.SystemPrompt,
		ragAddon:  cfg.RAGAddon,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Ask answers one user question. An empty sessionID starts a new session.
// A refusal consumes no generation tokens.
func (s *Service) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidConfig)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	rctx, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	if rctx.Refused {
		s.recordTurns(ctx, sessionID, question, Refusal)
		return Answer{SessionID: sessionID, Text: Refusal, Refused: true}, nil
	}

	prompt := s.buildUserPrompt(question, rctx.Text)
	text, err := s.generator.Generate(ctx, prompt, s.system)
	if err != nil {
		return Answer{}, fmt.Errorf("generate: %w", err)
	}

	s.recordTurns(ctx, sessionID, question, text)

	return Answer{
		SessionID: sessionID,
		Text:      text,
		Sources:   sourceNames(rctx.Hits),
		Contexts:  sourceContexts(rctx.Hits),
	}, nil
}

// buildUserPrompt assembles the augmented prompt sent to the backend.
func (s *Service) buildUserPrompt(question, contextBlock string) string {
	return fmt.Sprintf(
		"%s\nContext:\n%s\n\nUser question: %s\nAnswer concisely using only the context.",
		s.ragAddon, contextBlock, question,
	)
}

// recordTurns appends the exchange to the session. Failures are logged only.
func (s *Service) recordTurns(ctx context.Context, sessionID, question, answer string) {
	if s.sessions == nil {
		return
	}
	now := s.now().UTC()
	err := s.sessions.AppendTurns(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Content: question, CreatedAt: now},
		session.Turn{Role: session.RoleAssistant, Content: answer, CreatedAt: now},
	)
	if err != nil {
		s.logger.Warn("Failed to record session turns",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// sourceNames dedupes document names preserving best-score-first order.
func sourceNames(hits []retrieval.Hit) []string {
	seen := make(map[string]bool, len(hits))
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		if seen[h.DocumentName()] {
			continue
		}
		seen[h.DocumentName()] = true
		names = append(names, h.DocumentName())
	}
	return names
}

func sourceContexts(hits []retrieval.Hit) []SourceContext {
	out := make([]SourceContext, 0, len(hits))
	for _, h := range hits {
		text := truncateRunes(h.Text(), previewChars)
		out = append(out, SourceContext{
			Document: h.DocumentName(),
			ChunkID:  h.ChunkID(),
			Text:     text,
			Score:    h.Score(),
		})
	}
	return out
}

// truncateRunes caps s at max runes, never splitting a multi-byte rune.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
