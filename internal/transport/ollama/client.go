// Package ollama is a minimal client for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	"github.com/nexa-labs/ragd/internal/domain/provider"
	"github.com/nexa-labs/ragd/internal/metrics"
)

// Client talks to one Ollama server.
type Client struct {
	baseURL    string
	model      string
	useChatAPI bool
	params     provider.GenParams
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an Ollama client from provider settings.
func New(s provider.OllamaSettings, params provider.GenParams, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(s.BaseURL, "/"),
		model:      s.Model,
		useChatAPI: s.UseChatAPI,
		params:     params,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options options `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements domain.Generator over /api/chat or /api/generate
// depending on the configured mode.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	start := time.Now()
	out, err := c.generate(ctx, prompt, system)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues("ollama", c.model, "error").Inc()
		return "", err
	}
	metrics.GenerationRequestsTotal.WithLabelValues("ollama", c.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues("ollama", c.model).Observe(duration.Seconds())
	return out, nil
}

func (c *Client) generate(ctx context.Context, prompt, system string) (string, error) {
	opts := options{
		Temperature: c.params.Temperature,
		TopP:        c.params.TopP,
		NumPredict:  c.params.MaxTokens,
	}

	if c.useChatAPI {
		messages := make([]chatMessage, 0, 2)
		if system != "" {
			messages = append(messages, chatMessage{Role: "system", Content: system})
		}
		messages = append(messages, chatMessage{Role: "user", Content: prompt})

		var resp chatResponse
		err := c.post(ctx, "/api/chat", chatRequest{
			Model: c.model, Messages: messages, Stream: false, Options: opts,
		}, &resp)
		if err != nil {
			return "", err
		}
		return resp.Message.Content, nil
	}

	var resp generateResponse
	err := c.post(ctx, "/api/generate", generateRequest{
		Model: c.model, Prompt: prompt, System: system, Stream: false, Options: opts,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// HealthCheck probes /api/tags.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags returned %d", resp.StatusCode)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama unreachable: %w", domain.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama tags returned %d", domain.ErrGenerationFailed, resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ModelInfo returns the raw /api/show payload for a model.
func (c *Client) ModelInfo(ctx context.Context, name string) (map[string]any, error) {
	var info map[string]any
	if err := c.post(ctx, "/api/show", map[string]string{"name": name}, &info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable: %w", domain.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: ollama %s returned %d: %s",
			domain.ErrGenerationFailed, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", domain.ErrGenerationFailed, path, err)
	}
	return nil
}
