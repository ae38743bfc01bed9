package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// AI
	LiteLLMURL        string
	ModelID           string
	OpenRouterAPIKey  string
	GenerationTimeout time.Duration

	// NER sidecar
	NERServiceURL     string
	NERTimeout        time.Duration
	NERSidecarCommand string // when set, the server launches and supervises the sidecar
	NERSidecarDir     string

	// Extraction
	TopicVocabularyPath string
	WatchVocabulary     bool // reload topic vocabulary when the file changes

	// Retrieval
	RetrievalLimit int // max past events injected into the prompt

	// Baseline memory
	BaselineBufferSize int // turns kept per user
	BaselineMaxUsers   int // user buffers kept before LRU eviction
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		Neo4jURI:            getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:           getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", "password"),
		LiteLLMURL:          getEnv("LITELLM_URL", "http://localhost:4000"),
		ModelID:             getEnv("MODEL_ID", "openrouter/anthropic/claude-3.5-sonnet"),
		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		GenerationTimeout:   time.Duration(getEnvInt("GENERATION_TIMEOUT_MS", 30000)) * time.Millisecond,
		NERServiceURL:       getEnv("NER_SERVICE_URL", "http://localhost:8001"),
		NERTimeout:          time.Duration(getEnvInt("NER_TIMEOUT_MS", 5000)) * time.Millisecond,
		NERSidecarCommand:   getEnv("NER_SIDECAR_COMMAND", ""),
		NERSidecarDir:       getEnv("NER_SIDECAR_DIR", ""),
		TopicVocabularyPath: getEnv("TOPIC_VOCABULARY_PATH", "topics.yaml"),
		WatchVocabulary:     getEnvBool("WATCH_VOCABULARY", true),
		RetrievalLimit:      getEnvInt("RETRIEVAL_LIMIT", 5),
		BaselineBufferSize:  getEnvInt("BASELINE_BUFFER_SIZE", 5),
		BaselineMaxUsers:    getEnvInt("BASELINE_MAX_USERS", 1024),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.LiteLLMURL == "" {
		return fmt.Errorf("LITELLM_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.NERServiceURL == "" {
		return fmt.Errorf("NER_SERVICE_URL is required")
	}
	if c.RetrievalLimit <= 0 {
		return fmt.Errorf("RETRIEVAL_LIMIT must be positive")
	}
	if c.BaselineBufferSize <= 0 {
		return fmt.Errorf("BASELINE_BUFFER_SIZE must be positive")
	}
	if c.BaselineMaxUsers <= 0 {
		return fmt.Errorf("BASELINE_MAX_USERS must be positive")
	}
	// OpenRouter API key is optional for development
	return nil
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
