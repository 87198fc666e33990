package rag

import (
	"context"

	"github.com/nexa-labs/ragd/internal/domain/retrieval"
	"github.com/nexa-labs/ragd/internal/repository/session"
)

// Retriever finds supporting context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (retrieval.Context, error)
}

// Generator produces the answer text from the augmented prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Sessions records conversation history. Persistence failures are logged,
// never surfaced: history is best-effort.
type Sessions interface {
	AppendTurns(ctx context.Context, sessionID string, turns ...session.Turn) error
}
