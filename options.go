package ragd

import (
	"context"

	"go.uber.org/zap"

	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
)

// Option configures the Engine.
type Option interface {
	apply(*engineConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineConfig)

func (f optionFunc) apply(c *engineConfig) { f(c) }

// Embedder is the public embedding contract for custom providers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

type engineConfig struct {
	embedder Embedder

	embAPIKey  string
	embBaseURL string
	embModel   string
	dimensions int

	redisAddr     string
	redisPassword string

	provider domprov.Settings

	chunkSize    int
	chunkOverlap int

	topK            int
	threshold       float64
	maxContextChars int

	systemPrompt string
	ragAddon     string

	logger *zap.Logger
}

// WithCloudEmbedding configures the OpenAI-compatible embedding provider.
func WithCloudEmbedding(apiKey, baseURL, model string, dimensions int) Option {
	return optionFunc(func(c *engineConfig) {
		c.embAPIKey = apiKey
		c.embBaseURL = baseURL
		c.embModel = model
		c.dimensions = dimensions
	})
}

// WithEmbedder sets a custom embedding provider. Takes precedence over
// WithCloudEmbedding. Dimensions must still be set via WithDimensions.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *engineConfig) {
		c.embedder = e
	})
}

// WithDimensions sets the vector dimension for custom embedders.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *engineConfig) {
		c.dimensions = dim
	})
}

// WithRedis backs the index, catalog, sessions, and embedding cache with
// Redis instead of process memory.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *engineConfig) {
		c.redisAddr = addr
		c.redisPassword = password
	})
}

// WithOllama routes generation to a local Ollama server.
func WithOllama(baseURL, model string) Option {
	return optionFunc(func(c *engineConfig) {
		c.provider.Active = domprov.KindOllama
		if baseURL != "" {
			c.provider.Ollama.BaseURL = baseURL
		}
		if model != "" {
			c.provider.Ollama.Model = model
		}
	})
}

// WithCloudLLM routes generation to an OpenAI-compatible endpoint.
func WithCloudLLM(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *engineConfig) {
		c.provider.Active = domprov.KindCloud
		c.provider.Cloud.APIKey = apiKey
		if baseURL != "" {
			c.provider.Cloud.BaseURL = baseURL
		}
		if model != "" {
			c.provider.Cloud.Model = model
		}
	})
}

// WithGenParams overrides the sampling parameters.
func WithGenParams(temperature, topP float64, maxTokens int) Option {
	return optionFunc(func(c *engineConfig) {
		c.provider.Params = domprov.GenParams{
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		}
	})
}

// WithChunking overrides the word-window chunking parameters.
// Defaults: 400 words with 80 words of overlap.
func WithChunking(size, overlap int) Option {
	return optionFunc(func(c *engineConfig) {
		c.chunkSize = size
		c.chunkOverlap = overlap
	})
}

// WithRetrieval overrides the retrieval tuning.
// Defaults: top_k 4, similarity threshold 0.35.
func WithRetrieval(topK int, threshold float64) Option {
	return optionFunc(func(c *engineConfig) {
		c.topK = topK
		c.threshold = threshold
	})
}

// WithMaxContextChars caps the assembled context length in characters.
func WithMaxContextChars(n int) Option {
	return optionFunc(func(c *engineConfig) {
		c.maxContextChars = n
	})
}

// WithPrompts overrides the system prompt and the grounding preamble.
// Empty strings keep the ship defaults.
func WithPrompts(system, ragAddon string) Option {
	return optionFunc(func(c *engineConfig) {
		c.systemPrompt = system
		c.ragAddon = ragAddon
	})
}

// WithLogger enables structured logging for engine operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *engineConfig) {
		c.logger = l
	})
}
