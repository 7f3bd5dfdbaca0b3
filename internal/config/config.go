package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        string
	GinMode     string
	CORSOrigins []string

	// Gemini provider
	GeminiAPIKey          string
	GeminiModel           string
	GoogleEmbeddingsModel string
	GeminiTier            string

	// Ingestion pipeline
	MaxChunkSize    int
	ChunkOverlap    int
	MaxUploadSizeMB int
	EmbedBatchSize  int
	EmbedMaxRetries int

	// Retrieval and generation
	TopK                   int
	MemoryWindowSize       int
	PromptCharBudget       int
	ProviderTimeoutSeconds int

	// Persistence
	PersistDir string

	// Telemetry
	OTELExporterEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),

		MaxChunkSize:    getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 200),
		MaxUploadSizeMB: getEnvInt("MAX_UPLOAD_SIZE_MB", 200),
		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 100),
		EmbedMaxRetries: getEnvInt("EMBED_MAX_RETRIES", 3),

		TopK:                   getEnvInt("TOP_K", 4),
		MemoryWindowSize:       getEnvInt("MEMORY_WINDOW_SIZE", 3),
		PromptCharBudget:       getEnvInt("PROMPT_CHAR_BUDGET", 12000),
		ProviderTimeoutSeconds: getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60),

		PersistDir: getEnv("PERSIST_DIR", "./data/knowledge_bases"),

		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option ranges once at load time so components can trust
// the values instead of re-validating per call.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("MAX_CHUNK_SIZE must be positive, got %d", c.MaxChunkSize)
	}
	if c.ChunkOverlap <= 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in (0, MAX_CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.TopK < 1 {
		return fmt.Errorf("TOP_K must be at least 1, got %d", c.TopK)
	}
	if c.MemoryWindowSize < 1 {
		return fmt.Errorf("MEMORY_WINDOW_SIZE must be at least 1, got %d", c.MemoryWindowSize)
	}
	if c.MaxUploadSizeMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be at least 1, got %d", c.MaxUploadSizeMB)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be at least 1, got %d", c.EmbedBatchSize)
	}
	if c.PersistDir == "" {
		return fmt.Errorf("PERSIST_DIR is required")
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
