package chi

// ErrorCode identifies a machine-readable error category.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest            ErrorCode = "bad_request"
	CodeValidationFailed      ErrorCode = "validation_failed"
	CodeDocumentNotFound      ErrorCode = "document_not_found"
	CodeSessionNotFound       ErrorCode = "session_not_found"
	CodeUnsupportedFormat     ErrorCode = "unsupported_format"
	CodeIndexIncompatible     ErrorCode = "index_incompatible"
	CodeEmbeddingUnavailable  ErrorCode = "embedding_unavailable"
	CodeGenerationUnavailable ErrorCode = "generation_unavailable"
	CodeInternalError         ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Citation is one supporting chunk preview.
type Citation struct {
	Document string  `json:"document"`
	ChunkID  string  `json:"chunk_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// ChatResponse is the body of a successful chat turn.
type ChatResponse struct {
	SessionID string     `json:"session_id"`
	Answer    string     `json:"answer"`
	Refused   bool       `json:"refused"`
	Sources   []string   `json:"sources"`
	Citations []Citation `json:"citations,omitempty"`
}

// IngestRequest is the body of POST /api/v1/ingest. Each path may be a
// single file or a directory that is walked recursively.
type IngestRequest struct {
	Paths []string `json:"paths"`
	// Version tags the ingested documents; empty means content-derived.
	Version string `json:"version,omitempty"`
}

// IngestResponse summarizes an ingestion run.
type IngestResponse struct {
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// StatsResponse is the body of GET /api/v1/index/stats.
type StatsResponse struct {
	Entries    int    `json:"entries"`
	Dimension  int    `json:"dimension"`
	Generation int64  `json:"generation"`
	BuiltAt    string `json:"built_at,omitempty"`
}

// DocumentResponse describes one ingested document.
type DocumentResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	Version    string `json:"version,omitempty"`
	Checksum   string `json:"checksum"`
	IngestedAt string `json:"ingested_at"`
}

// ProviderResponse is the redacted provider configuration. The cloud API key
// never leaves the server; only its presence is reported.
type ProviderResponse struct {
	Active string `json:"active"`
	Ollama Ollama `json:"ollama"`
	Cloud  Cloud  `json:"cloud"`
	Params Params `json:"params"`
}

// Ollama is the local backend section of ProviderResponse.
type Ollama struct {
	BaseURL    string `json:"base_url"`
	Model      string `json:"model"`
	UseChatAPI bool   `json:"use_chat_api"`
}

// Cloud is the cloud backend section of ProviderResponse.
type Cloud struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKeySet bool   `json:"api_key_set"`
}

// Params is the sampling section of ProviderResponse.
type Params struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// ModelsResponse is the body of GET /api/v1/models.
type ModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// SessionSummary is one item of GET /api/v1/sessions.
type SessionSummary struct {
	ID        string `json:"id"`
	Turns     int    `json:"turns"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TurnResponse is one conversation turn of GET /api/v1/sessions/{id}.
type TurnResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// SessionResponse is the body of GET /api/v1/sessions/{id}.
type SessionResponse struct {
	ID        string         `json:"id"`
	Turns     []TurnResponse `json:"turns"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
