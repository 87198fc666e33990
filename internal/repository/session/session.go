// Package session persists per-conversation chat history.
package session

import (
	"context"
	"time"
)

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is the stored state of one session.
type Record struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store implements usecase/rag.Sessions.
type Store interface {
	// AppendTurns adds turns to a session, creating it on first use.
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error
	// Get returns a session. Returns domain.ErrSessionNotFound when absent.
	Get(ctx context.Context, sessionID string) (Record, error)
	// List returns the IDs of all known sessions.
	List(ctx context.Context) ([]string, error)
	// Records returns every session record in one batched read.
	Records(ctx context.Context) ([]Record, error)
	// Delete removes a session. Deleting an absent session is a no-op.
	Delete(ctx context.Context, sessionID string) error
	// DeleteAll removes every session.
	DeleteAll(ctx context.Context) error
}
