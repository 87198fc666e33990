// Package provider routes generation requests to the active backend and
// manages runtime-switchable provider settings.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
)

const settingsKey = "ragd:provider:settings"

const (
	defaultCallTimeout  = 2 * time.Minute
	defaultRetryBackoff = time.Second
)

// snapshot pairs one immutable settings version with the backend built for it.
// Swapped atomically so in-flight requests finish against the version they
// started with.
type snapshot struct {
	settings domprov.Settings
	backend  Backend
}

// Router is the generation entrypoint over switchable backends.
type Router struct {
	factory Factory
	store   store // nil when persistence is disabled
	logger  *zap.Logger

	timeout time.Duration
	backoff time.Duration

	mu   sync.Mutex // serializes updates
	snap atomic.Pointer[snapshot]
}

// Config holds the router settings.
type Config struct {
	Factory Factory
	Store   store
	Initial domprov.Settings
	Timeout time.Duration
	Logger  *zap.Logger
}

// New creates a router. Persisted settings, when present, override cfg.Initial.
func New(ctx context.Context, cfg Config) (*Router, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &Router{
		factory: cfg.Factory,
		store:   cfg.Store,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		backoff: defaultRetryBackoff,
	}

	settings := cfg.Initial
	if loaded, ok := r.loadPersisted(ctx); ok {
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("initial provider settings: %w", err)
	}

	r.snap.Store(r.buildSnapshot(settings))
	return r, nil
}

// Current returns the active settings version.
func (r *Router) Current() domprov.Settings {
	return r.snap.Load().settings
}

// Update merges a patch into the current settings, validates, persists, and
// atomically publishes the new version.
func (r *Router) Update(ctx context.Context, p domprov.Patch) (domprov.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load().settings
	next, err := cur.Merge(p)
	if err != nil {
		return domprov.Settings{}, fmt.Errorf("merge settings: %w", err)
	}

	if err := r.persist(ctx, next); err != nil {
		return domprov.Settings{}, err
	}

	r.snap.Store(r.buildSnapshot(next))
	r.logger.Info("Provider settings updated",
		zap.String("active", string(next.Active)),
		zap.Int64("version", next.Version),
	)
	return next, nil
}

// Generate calls the active backend with the configured timeout, retrying
// once after a backoff on transient failure.
func (r *Router) Generate(ctx context.Context, prompt, system string) (string, error) {
	snap := r.snap.Load()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := snap.backend.Generate(callCtx, prompt, system)
	if err == nil {
		return out, nil
	}
	if !r.shouldRetry(ctx, err) {
		return "", fmt.Errorf("generate via %s: %w", snap.settings.Active, err)
	}

	r.logger.Warn("Generation failed, retrying",
		zap.String("provider", string(snap.settings.Active)),
		zap.Error(err),
	)

	retryCtx, cancelRetry := context.WithTimeout(ctx, r.timeout)
	defer cancelRetry()

	out, err = snap.backend.Generate(retryCtx, prompt, system)
	if err != nil {
		return "", fmt.Errorf("generate via %s: %w", snap.settings.Active, err)
	}
	return out, nil
}

// Status reports reachability of the active backend.
func (r *Router) Status(ctx context.Context) error {
	snap := r.snap.Load()
	if err := snap.backend.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s backend: %w", snap.settings.Active, err)
	}
	return nil
}

// ListModels lists the models the active backend serves.
func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	models, err := r.snap.Load().backend.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

// ModelInfo returns backend-specific model metadata when the active backend
// exposes it (Ollama only).
func (r *Router) ModelInfo(ctx context.Context, name string) (map[string]any, error) {
	type infoer interface {
		ModelInfo(ctx context.Context, name string) (map[string]any, error)
	}
	b, ok := r.snap.Load().backend.(infoer)
	if !ok {
		return nil, fmt.Errorf("%w: active provider does not expose model info", domain.ErrInvalidConfig)
	}
	info, err := b.ModelInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("model info: %w", err)
	}
	return info, nil
}

func (r *Router) buildSnapshot(s domprov.Settings) *snapshot {
	var b Backend
	switch s.Active {
	case domprov.KindCloud:
		b = r.factory.Cloud(s.Cloud, s.Params)
	default:
		b = r.factory.Ollama(s.Ollama, s.Params)
	}
	return &snapshot{settings: s, backend: b}
}

func (r *Router) shouldRetry(ctx context.Context, err error) bool {
	if !errors.Is(err, domain.ErrGenerationFailed) {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.backoff):
		return true
	}
}

func (r *Router) loadPersisted(ctx context.Context) (domprov.Settings, bool) {
	if r.store == nil {
		return domprov.Settings{}, false
	}
	raw, err := r.store.Get(ctx, settingsKey)
	if err != nil {
		return domprov.Settings{}, false
	}
	var s domprov.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		r.logger.Warn("Failed to parse persisted provider settings", zap.Error(err))
		return domprov.Settings{}, false
	}
	if err := s.Validate(); err != nil {
		r.logger.Warn("Persisted provider settings invalid, using defaults", zap.Error(err))
		return domprov.Settings{}, false
	}
	return s, true
}

func (r *Router) persist(ctx context.Context, s domprov.Settings) error {
	if r.store == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := r.store.Set(ctx, settingsKey, data); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
