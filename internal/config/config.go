// Package config loads the application configuration from environment
// variables. A local .env file is honoured for development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Data backends accepted by DATA_BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`

	// Data backend: supabase (PostgREST) or postgres (direct connection)
	DataBackend string `envconfig:"DATA_BACKEND" default:"supabase"`

	// Supabase
	SupabaseURL        string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey    string `envconfig:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`

	// Postgres
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// LLM (Gemini)
	Gemini GeminiConfig

	// Orchestrator
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.6"`

	// Memória semântica (embeddings + chromem)
	SemanticMemory bool   `envconfig:"SEMANTIC_MEMORY" default:"false"`
	VectorDir      string `envconfig:"VECTOR_DIR" default:""`

	// Cache: in-memory when REDIS_URL is empty
	RedisURL string        `envconfig:"REDIS_URL"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	// HTTP client
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// Resilience
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" default:"100ms"`
	MaxConcurrency int           `envconfig:"MAX_CONCURRENCY" default:"50"`

	// Observability
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`

	// JWT (optional): when set, chat routes bind the session to the token subject
	JWTSecret string `envconfig:"JWT_SECRET"`

	// CORS
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// GeminiConfig groups the model settings for intent extraction, response
// generation and embeddings.
type GeminiConfig struct {
	APIKey            string  `envconfig:"GEMINI_API_KEY"`
	BaseURL           string  `envconfig:"GEMINI_BASE_URL"`
	ChatModel         string  `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`
	IntentModel       string  `envconfig:"INTENT_MODEL" default:"gemini-2.0-flash"`
	EmbeddingModel    string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	ChatTemperature   float32 `envconfig:"CHAT_TEMPERATURE" default:"0.4"`
	IntentTemperature float32 `envconfig:"INTENT_TEMPERATURE" default:"0"`
	MaxTokens         int     `envconfig:"MAX_TOKENS" default:"1024"`
}

// LoadDotEnv loads key=value pairs from path into the process environment.
// Variables already set take precedence. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.DataBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("config: SUPABASE_URL is required when DATA_BACKEND=%s", BackendSupabase)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required when DATA_BACKEND=%s", BackendPostgres)
		}
	default:
		return fmt.Errorf("config: unknown DATA_BACKEND %q", c.DataBackend)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive, got %v", c.CacheTTL)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	return nil
}
