// Package config loads memlink settings from environment variables with
// the MEMLINK_ prefix. Every option has a sensible default; an empty
// environment yields a working sqlite-backed engine without LLM clients.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Supported storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all settings for the memlink engine.
type Config struct {
	Storage StorageConfig
	LLM     LLMConfig
	Engine  EngineConfig
	Daemon  DaemonConfig
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend     string // Storage backend: sqlite, postgres (default: sqlite)
	SQLitePath  string // SQLite database path (default: ./memlink.db)
	PostgresDSN string // Postgres connection string
}

// LLMConfig contains the OpenAI client configuration. An empty API key
// disables both clients; the engine then runs on its lexical fallbacks.
type LLMConfig struct {
	OpenAIAPIKey   string        // OpenAI API key
	OpenAIBaseURL  string        // Override for the API base URL (tests, proxies)
	Model          string        // Completion model (default: gpt-4o-mini)
	EmbeddingModel string        // Embedding model (default: text-embedding-3-small)
	EmbeddingDims  int           // Embedding dimensions (default: 1536)
	RequestTimeout time.Duration // Per-request timeout (default: 60s)
	CacheCapacity  int           // Embedding cache entries (default: 1000)
}

// EngineConfig tunes resolution, retrieval and consolidation.
type EngineConfig struct {
	FuzzyFloor       float64 // Minimum trigram similarity for fuzzy matches (default: 0.3)
	WeightVector     float64 // Retrieval weight: vector similarity (default: 0.5)
	WeightLexical    float64 // Retrieval weight: lexical overlap (default: 0.2)
	WeightRecency    float64 // Retrieval weight: recency decay (default: 0.2)
	WeightImportance float64 // Retrieval weight: importance (default: 0.1)
	DefaultTTLDays   int     // Memory TTL when the caller sets none (default: 30)
	WindowSize       int     // Sessions per consolidation window (default: 3)
	TopK             int     // Retrieval result size (default: 10)
	VocabPath        string  // Optional YAML vocabulary override
}

// DaemonConfig drives the background maintenance loop.
type DaemonConfig struct {
	ConsolidateInterval time.Duration // How often to consolidate session windows (default: 1h)
	PurgeInterval       time.Duration // How often to purge expired memories (default: 24h)
}

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Backend:     getEnv("MEMLINK_STORAGE_BACKEND", BackendSQLite),
			SQLitePath:  getEnv("MEMLINK_SQLITE_PATH", "./memlink.db"),
			PostgresDSN: getEnv("MEMLINK_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:   getEnv("MEMLINK_OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("MEMLINK_OPENAI_BASE_URL", ""),
			Model:          getEnv("MEMLINK_OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("MEMLINK_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDims:  getEnvInt("MEMLINK_EMBEDDING_DIMS", 1536),
			RequestTimeout: getEnvDuration("MEMLINK_REQUEST_TIMEOUT", 60*time.Second),
			CacheCapacity:  getEnvInt("MEMLINK_EMBEDDING_CACHE_SIZE", 1000),
		},
		Engine: EngineConfig{
			FuzzyFloor:       getEnvFloat("MEMLINK_FUZZY_FLOOR", 0.3),
			WeightVector:     getEnvFloat("MEMLINK_WEIGHT_VECTOR", 0.5),
			WeightLexical:    getEnvFloat("MEMLINK_WEIGHT_LEXICAL", 0.2),
			WeightRecency:    getEnvFloat("MEMLINK_WEIGHT_RECENCY", 0.2),
			WeightImportance: getEnvFloat("MEMLINK_WEIGHT_IMPORTANCE", 0.1),
			DefaultTTLDays:   getEnvInt("MEMLINK_DEFAULT_TTL_DAYS", 30),
			WindowSize:       getEnvInt("MEMLINK_WINDOW_SIZE", 3),
			TopK:             getEnvInt("MEMLINK_TOP_K", 10),
			VocabPath:        getEnv("MEMLINK_VOCAB_PATH", ""),
		},
		Daemon: DaemonConfig{
			ConsolidateInterval: getEnvDuration("MEMLINK_CONSOLIDATE_INTERVAL", time.Hour),
			PurgeInterval:       getEnvDuration("MEMLINK_PURGE_INTERVAL", 24*time.Hour),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: MEMLINK_POSTGRES_DSN is required for the postgres backend")
	}
	if c.Engine.FuzzyFloor < 0 || c.Engine.FuzzyFloor > 1 {
		return fmt.Errorf("config: MEMLINK_FUZZY_FLOOR must be in [0,1]")
	}
	if c.Engine.DefaultTTLDays < 0 {
		return fmt.Errorf("config: MEMLINK_DEFAULT_TTL_DAYS must not be negative")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as a float,
// it returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "1h")
// or returns a default value. Unparseable values return the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
