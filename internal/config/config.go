package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	ParserBaseURL      string
	ParserAPIKey       string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingAPIKey    string
	VectorSize         int
	QdrantURL          string
	ChunksCollection   string
	TablesCollection   string
	MarkersCollection  string
	DBPath             string
	CacheDir           string
	MaxChunkSize       int
	APIPort            string
	LogLevel           string
	LogFormat          string
}

// RelationalEnabled reports whether a SQLite database is configured. An
// empty DB_PATH runs the service vector-only.
func (c *Config) RelationalEnabled() bool {
	return c.DBPath != ""
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	// Try to find project root by looking for go.mod
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		ParserBaseURL:      getEnv("PARSER_BASE_URL", "http://localhost:8080"),
		ParserAPIKey:       getEnv("PARSER_API_KEY", ""),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-granite-278m"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		ChunksCollection:   getEnv("CHUNKS_COLLECTION", "document_chunks"),
		TablesCollection:   getEnv("TABLES_COLLECTION", "extracted_tables"),
		MarkersCollection:  getEnv("MARKERS_COLLECTION", "processed_files"),
		DBPath:             lookupEnv("DB_PATH", "./data/finsight.db"),
		CacheDir:           getEnv("PARSE_CACHE_DIR", "./data/parse_cache"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	// The vector size must match the embedding model's output dimension. If
	// the model changes, the Qdrant collections must be recreated, so there
	// is no safe default.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.VectorSize = vectorSize

	maxChunkStr := getEnv("MAX_CHUNK_SIZE", "4000")
	maxChunk, err := strconv.Atoi(maxChunkStr)
	if err != nil {
		return nil, fmt.Errorf("MAX_CHUNK_SIZE must be a valid integer: %w", err)
	}
	if maxChunk <= 0 {
		return nil, fmt.Errorf("MAX_CHUNK_SIZE must be greater than 0")
	}
	cfg.MaxChunkSize = maxChunk

	if cfg.RelationalEnabled() {
		dataDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is getEnv for variables where "set but empty" is meaningful:
// DB_PATH="" deliberately disables the relational store, whereas an unset
// variable takes the default.
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
