// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all service configuration.
type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// OpenAI
	OpenAIAPIKey  string
	LLMModel      string
	EmbedModel    string
	LLMMaxTokens  int
	LLMTimeoutSec int
	LLMMaxRetries int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Mail fetch
	MaxMessages int // recent-message cap per digest run

	// Pipeline
	BatchSize           int
	AdKeywords          []string
	SubjectLimit        int
	SenderLimit         int
	SnippetLimit        int
	BatchByteCeiling    int
	BodyTruncationLimit int
	ClusteringEnabled   bool
	SimilarityThreshold float64
	ClusterTopK         int
	PipelineWorkers     int

	// Cache
	DigestCacheTTLMin int

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from the environment with defaults.
func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-ada-002"),
		LLMMaxTokens:  getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMMaxRetries: getEnvInt("LLM_MAX_RETRIES", 3),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		MaxMessages: clampInt(getEnvInt("MAX_MESSAGES", 50), 1, 100),

		BatchSize: getEnvInt("PIPELINE_BATCH_SIZE", 10),
		AdKeywords: getEnvSlice("PIPELINE_AD_KEYWORDS", []string{
			"sale", "offer", "discount", "promotion", "newsletter", "digest",
		}),
		SubjectLimit:        getEnvInt("PIPELINE_SUBJECT_LIMIT", 100),
		SenderLimit:         getEnvInt("PIPELINE_SENDER_LIMIT", 100),
		SnippetLimit:        getEnvInt("PIPELINE_SNIPPET_LIMIT", 200),
		BatchByteCeiling:    getEnvInt("PIPELINE_BATCH_BYTE_CEILING", 8192),
		BodyTruncationLimit: getEnvInt("PIPELINE_BODY_LIMIT", 500),
		ClusteringEnabled:   getEnvBool("PIPELINE_CLUSTERING", true),
		SimilarityThreshold: getEnvFloat("PIPELINE_SIMILARITY_THRESHOLD", 0.75),
		ClusterTopK:         getEnvInt("PIPELINE_CLUSTER_TOP_K", 20),
		PipelineWorkers:     getEnvInt("PIPELINE_WORKERS", 5),

		DigestCacheTTLMin: getEnvInt("DIGEST_CACHE_TTL_MIN", 30),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
