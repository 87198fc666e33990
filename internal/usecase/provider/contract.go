package provider

import (
	"context"

	"github.com/nexa-labs/ragd/internal/domain"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
)

// Backend is one configured generation endpoint.
type Backend interface {
	domain.Generator
	domain.HealthChecker
	ListModels(ctx context.Context) ([]string, error)
}

// Factory builds backends from settings. Implemented over transport/ollama
// and transport/openai in the composition root.
type Factory interface {
	Ollama(s domprov.OllamaSettings, p domprov.GenParams) Backend
	Cloud(s domprov.CloudSettings, p domprov.GenParams) Backend
}

// store persists settings across restarts (optional).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
