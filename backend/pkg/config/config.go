package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"mindcoach/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Env string

	// Profile storage
	DBPath string

	// Concept normalization
	AliasPath         string
	ProfileConfigPath string

	// Embeddings (OpenAI-compatible endpoint, e.g. LiteLLM)
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Env:               getEnv("ENV", "development"),
		DBPath:            getEnv("PROFILE_DB_PATH", "data/mindcoach.db"),
		AliasPath:         getEnv("PROFILE_ALIAS_PATH", "data/profile_aliases.json"),
		ProfileConfigPath: getEnv("PROFILE_CONFIG_PATH", "configs/profile_config.yaml"),
		EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", "http://localhost:4000"),
		EmbeddingAPIKey:   getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.NewBaseError(errors.ErrorTypeConfig, "PROFILE_DB_PATH is required", nil)
	}
	if c.AliasPath == "" {
		return errors.NewBaseError(errors.ErrorTypeConfig, "PROFILE_ALIAS_PATH is required", nil)
	}
	// Embedding model and API key are optional: without them the engine
	// degrades to lexical + alias resolution only.
	return nil
}

// EmbeddingConfigured reports whether similarity resolution can be attempted
func (c *Config) EmbeddingConfigured() bool {
	return c.EmbeddingModel != "" && c.EmbeddingBaseURL != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
