// Package provider holds the generation backend configuration snapshot.
package provider

import (
	"fmt"

	"github.com/nexa-labs/ragd/internal/domain"
)

// Kind identifies the active generation backend.
type Kind string

// Supported backend kinds.
const (
	KindOllama Kind = "ollama"
	KindCloud  Kind = "cloud"
)

// Valid reports whether the kind names a known backend.
func (k Kind) Valid() bool { return k == KindOllama || k == KindCloud }

// OllamaSettings are the local backend connection parameters.
type OllamaSettings struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Model      string `json:"model" yaml:"model"`
	UseChatAPI bool   `json:"use_chat_api" yaml:"use_chat_api"`
}

// CloudSettings are the OpenAI-compatible backend connection parameters.
type CloudSettings struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
}

// GenParams are sampling parameters forwarded to either backend.
type GenParams struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Settings is an immutable provider configuration snapshot. Every in-flight
// generation call captures its snapshot at dispatch time; updates produce a
// new snapshot with a higher version and never touch a published one.
type Settings struct {
	Active  Kind           `json:"active" yaml:"active"`
	Ollama  OllamaSettings `json:"ollama" yaml:"ollama"`
	Cloud   CloudSettings  `json:"cloud" yaml:"cloud"`
	Params  GenParams      `json:"params" yaml:"params"`
	Version int64          `json:"version" yaml:"-"`
}

// Defaults mirrors the original service defaults.
func Defaults() Settings {
	return Settings{
		Active: KindOllama,
		Ollama: OllamaSettings{
			BaseURL:    "http://localhost:11434",
			Model:      "mistral",
			UseChatAPI: true,
		},
		Cloud: CloudSettings{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4",
		},
		Params: GenParams{
			Temperature: 0.2,
			TopP:        0.9,
			MaxTokens:   512,
		},
		Version: 1,
	}
}

// Validate checks the snapshot for correctness.
func (s Settings) Validate() error {
	if !s.Active.Valid() {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidConfig, s.Active)
	}
	if s.Active == KindOllama && s.Ollama.BaseURL == "" {
		return fmt.Errorf("%w: ollama base_url is required", domain.ErrInvalidConfig)
	}
	if s.Active == KindCloud && s.Cloud.APIKey == "" {
		return fmt.Errorf("%w: cloud api_key is required", domain.ErrInvalidConfig)
	}
	if s.Params.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

// Patch is a partial configuration update. Nil fields are retained from the
// current snapshot.
type Patch struct {
	Active      *Kind    `json:"active,omitempty"`
	OllamaURL   *string  `json:"ollama_base_url,omitempty"`
	OllamaModel *string  `json:"ollama_model,omitempty"`
	CloudKey    *string  `json:"cloud_api_key,omitempty"`
	CloudURL    *string  `json:"cloud_base_url,omitempty"`
	CloudModel  *string  `json:"cloud_model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Merge applies the patch to a copy of s, bumping the version.
// Changes take effect for calls issued after the swap completes.
func (s Settings) Merge(p Patch) (Settings, error) {
	next := s
	next.Version = s.Version + 1

	if p.Active != nil {
		next.Active = *p.Active
	}
	if p.OllamaURL != nil {
		next.Ollama.BaseURL = *p.OllamaURL
	}
	if p.OllamaModel != nil {
		next.Ollama.Model = *p.OllamaModel
	}
	if p.CloudKey != nil {
		next.Cloud.APIKey = *p.CloudKey
	}
	if p.CloudURL != nil {
		next.Cloud.BaseURL = *p.CloudURL
	}
	if p.CloudModel != nil {
		next.Cloud.Model = *p.CloudModel
	}
	if p.Temperature != nil {
		next.Params.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		next.Params.TopP = *p.TopP
	}
	if p.MaxTokens != nil {
		next.Params.MaxTokens = *p.MaxTokens
	}

	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	return next, nil
}
