// Package config loads the ragd YAML configuration by environment name.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nexa-labs/ragd/internal/domain/provider"
)

// Config holds the ragd API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Redis connection settings. Unused when the index
// backend is flat and no session persistence is configured.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig selects and tunes the vector index backend.
type IndexConfig struct {
	Backend   string `yaml:"backend"` // flat, redis (default: flat)
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Cache      bool   `yaml:"cache"` // requires database.addrs
}

// ProviderConfig holds the initial generation backend settings. Runtime
// updates via the config API supersede these and are persisted separately.
type ProviderConfig struct {
	Active string          `yaml:"active"` // ollama, cloud
	Ollama OllamaConfig    `yaml:"ollama"`
	Cloud  CloudConfig     `yaml:"cloud"`
	Params GenParamsConfig `yaml:"params"`
}

// OllamaConfig holds local backend settings.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	UseChatAPI *bool  `yaml:"use_chat_api"`
}

// CloudConfig holds the OpenAI-compatible backend settings.
type CloudConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GenParamsConfig holds sampling parameters.
type GenParamsConfig struct {
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RetrievalConfig tunes the retrieval pipeline.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxContextChars     int     `yaml:"max_context_chars"`
}

// IngestConfig tunes chunking and directory ingestion.
type IngestConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`    // words
	ChunkOverlap int    `yaml:"chunk_overlap"` // words
	Concurrency  int    `yaml:"concurrency"`
	DocsDir      string `yaml:"docs_dir"` // ingested at startup when set
}

// SessionsConfig holds conversation history settings.
type SessionsConfig struct {
	TTLSec int `yaml:"ttl_sec"` // 0 = no expiry
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first so ${VAR} substitution
// sees it.
func Load(env string) (Config, error) {
	_ = godotenv.Load()

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "flat"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "ragd:vec:"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}

	defaults := provider.Defaults()
	if c.Provider.Active == "" {
		c.Provider.Active = string(defaults.Active)
	}
	if c.Provider.Ollama.BaseURL == "" {
		c.Provider.Ollama.BaseURL = defaults.Ollama.BaseURL
	}
	if c.Provider.Ollama.Model == "" {
		c.Provider.Ollama.Model = defaults.Ollama.Model
	}
	if c.Provider.Cloud.BaseURL == "" {
		c.Provider.Cloud.BaseURL = defaults.Cloud.BaseURL
	}
	if c.Provider.Cloud.Model == "" {
		c.Provider.Cloud.Model = defaults.Cloud.Model
	}
	if c.Provider.Params.Temperature <= 0 {
		c.Provider.Params.Temperature = defaults.Params.Temperature
	}
	if c.Provider.Params.TopP <= 0 {
		c.Provider.Params.TopP = defaults.Params.TopP
	}
	if c.Provider.Params.MaxTokens <= 0 {
		c.Provider.Params.MaxTokens = defaults.Params.MaxTokens
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Index.Backend {
	case "flat", "redis":
	default:
		return fmt.Errorf("index.backend must be \"flat\" or \"redis\", got %q", c.Index.Backend)
	}
	if c.Index.Backend == "redis" && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required for the redis index backend")
	}
	if c.Embedding.Cache && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when embedding.cache is enabled")
	}
	switch c.Provider.Active {
	case string(provider.KindOllama), string(provider.KindCloud):
	default:
		return fmt.Errorf("provider.active must be \"ollama\" or \"cloud\", got %q", c.Provider.Active)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k must not be negative, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0, 1], got %v",
			c.Retrieval.SimilarityThreshold)
	}
	if c.Ingest.ChunkSize > 0 && c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// ProviderSettings converts the static config into an initial runtime snapshot.
func (c *Config) ProviderSettings() provider.Settings {
	s := provider.Defaults()
	s.Active = provider.Kind(c.Provider.Active)
	s.Ollama.BaseURL = c.Provider.Ollama.BaseURL
	s.Ollama.Model = c.Provider.Ollama.Model
	if c.Provider.Ollama.UseChatAPI != nil {
		s.Ollama.UseChatAPI = *c.Provider.Ollama.UseChatAPI
	}
	s.Cloud.APIKey = c.Provider.Cloud.APIKey
	s.Cloud.BaseURL = c.Provider.Cloud.BaseURL
	s.Cloud.Model = c.Provider.Cloud.Model
	s.Params.Temperature = c.Provider.Params.Temperature
	s.Params.TopP = c.Provider.Params.TopP
	s.Params.MaxTokens = c.Provider.Params.MaxTokens
	return s
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
