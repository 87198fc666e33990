// Package chi exposes the engine over HTTP using the chi router.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nexa-labs/ragd/internal/domain"
	domprov "github.com/nexa-labs/ragd/internal/domain/provider"
	"github.com/nexa-labs/ragd/internal/repository/session"
	healthuc "github.com/nexa-labs/ragd/internal/usecase/health"
	ingestuc "github.com/nexa-labs/ragd/internal/usecase/ingest"
	provideruc "github.com/nexa-labs/ragd/internal/usecase/provider"
	raguc "github.com/nexa-labs/ragd/internal/usecase/rag"
)

const maxIngestPaths = 100

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	rag           *raguc.Service
	ingest        *ingestuc.Service
	provider      *provideruc.Router
	sessions      session.Store
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	rag *raguc.Service,
	ingest *ingestuc.Service,
	provider *provideruc.Router,
	sessions session.Store,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		rag:      rag,
		ingest:   ingest,
		provider: provider,
		sessions: sessions,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrInvalidConfig, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrIndexIncompatible, http.StatusConflict, CodeIndexIncompatible),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedFormat),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingUnavailable),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, CodeGenerationUnavailable),
	}
	return s
}

// Register mounts all API routes on the router. Middleware is applied by the
// caller before registration.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Post("/ingest", s.Ingest)

		r.Get("/documents", s.ListDocuments)
		r.Delete("/documents/{id}", s.DeleteDocument)

		r.Get("/index/stats", s.IndexStats)
		r.Post("/index/rebuild", s.RebuildIndex)
		r.Post("/index/clear", s.ClearIndex)

		r.Get("/config/provider", s.GetProvider)
		r.Put("/config/provider", s.UpdateProvider)

		r.Get("/models", s.ListModels)
		r.Get("/models/{name}", s.ModelInfo)

		r.Get("/sessions", s.ListSessions)
		r.Delete("/sessions", s.DeleteAllSessions)
		r.Get("/sessions/{id}", s.GetSession)
		r.Delete("/sessions/{id}", s.DeleteSession)
	})
}

// Chat handles POST /api/v1/chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "message is required")
		return
	}

	ans, err := s.rag.Ask(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := ChatResponse{
		SessionID: ans.SessionID,
		Answer:    ans.Text,
		Refused:   ans.Refused,
		Sources:   ans.Sources,
		Citations: make([]Citation, 0, len(ans.Contexts)),
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	for _, c := range ans.Contexts {
		resp.Citations = append(resp.Citations, Citation{
			Document: c.Document,
			ChunkID:  c.ChunkID,
			Text:     c.Text,
			Score:    c.Score,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ingest handles POST /api/v1/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Paths) == 0 || len(req.Paths) > maxIngestPaths {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"paths count must be between 1 and 100")
		return
	}

	total := IngestResponse{Errors: map[string]string{}}
	for _, path := range req.Paths {
		sum, err := s.ingest.IngestDir(r.Context(), path, req.Version)
		if err != nil {
			total.Failed++
			total.Errors[path] = err.Error()
			continue
		}
		total.Succeeded += sum.Succeeded
		total.Skipped += sum.Skipped
		total.Failed += sum.Failed
		for p, msg := range sum.Errors {
			total.Errors[p] = msg
		}
	}
	if len(total.Errors) == 0 {
		total.Errors = nil
	}

	writeJSON(w, http.StatusOK, total)
}

// ListDocuments handles GET /api/v1/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingest.Documents(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		d := &docs[i]
		items[i] = DocumentResponse{
			ID:         d.ID(),
			Name:       d.Name(),
			SourcePath: d.SourcePath(),
			Version:    d.Version(),
			Checksum:   d.Checksum(),
			IngestedAt: d.IngestedAt().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DeleteDocument handles DELETE /api/v1/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IndexStats handles GET /api/v1/index/stats.
func (s *Server) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ingest.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(stats.Entries, stats.Dimension, stats.Generation, stats.BuiltAt))
}

// RebuildIndex handles POST /api/v1/index/rebuild.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ingest.Rebuild(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsToResponse(stats.Entries, stats.Dimension, stats.Generation, stats.BuiltAt))
}

// ClearIndex handles POST /api/v1/index/clear.
func (s *Server) ClearIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.ingest.Clear(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProvider handles GET /api/v1/config/provider.
func (s *Server) GetProvider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providerToResponse(s.provider.Current()))
}

// UpdateProvider handles PUT /api/v1/config/provider.
func (s *Server) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var p domprov.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	settings, err := s.provider.Update(r.Context(), p)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, providerToResponse(settings))
}

// ListModels handles GET /api/v1/models.
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.ListModels(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{
		Provider: string(s.provider.Current().Active),
		Models:   models,
	})
}

// ModelInfo handles GET /api/v1/models/{name}.
func (s *Server) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.provider.ModelInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ListSessions handles GET /api/v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sessions.Records(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SessionSummary, 0, len(recs))
	for _, rec := range recs {
		items = append(items, SessionSummary{
			ID:        rec.ID,
			Turns:     len(rec.Turns),
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	turns := make([]TurnResponse, len(rec.Turns))
	for i, t := range rec.Turns {
		turns[i] = TurnResponse{
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: t.CreatedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		ID:        rec.ID,
		Turns:     turns,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
	})
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllSessions handles DELETE /api/v1/sessions.
func (s *Server) DeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteAll(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func statsToResponse(entries, dimension int, generation int64, builtAt time.Time) StatsResponse {
	resp := StatsResponse{
		Entries:    entries,
		Dimension:  dimension,
		Generation: generation,
	}
	if !builtAt.IsZero() {
		resp.BuiltAt = builtAt.Format(time.RFC3339)
	}
	return resp
}

func providerToResponse(s domprov.Settings) ProviderResponse {
	return ProviderResponse{
		Active: string(s.Active),
		Ollama: Ollama{
			BaseURL:    s.Ollama.BaseURL,
			Model:      s.Ollama.Model,
			UseChatAPI: s.Ollama.UseChatAPI,
		},
		Cloud: Cloud{
			BaseURL:   s.Cloud.BaseURL,
			Model:     s.Cloud.Model,
			APIKeySet: s.Cloud.APIKey != "",
		},
		Params: Params{
			Temperature: s.Params.Temperature,
			TopP:        s.Params.TopP,
			MaxTokens:   s.Params.MaxTokens,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrSessionNotFound,
		domain.ErrInvalidConfig,
		domain.ErrIndexIncompatible,
		domain.ErrUnsupportedFormat,
		domain.ErrEmbeddingUnavailable,
		domain.ErrGenerationFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
