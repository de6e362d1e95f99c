// Package config provides configuration management for Recall.
// Settings come from three layers, lowest precedence first: built-in
// defaults, an optional YAML file, and environment variables with the
// RECALL_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Recall service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     `yaml:"port"`           // Server port (default: 7373)
	Host           string  `yaml:"host"`           // Server host (default: 127.0.0.1)
	RequestTimeout int     `yaml:"requestTimeout"` // Per-request deadline in seconds (default: 30)
	RateLimit      float64 `yaml:"rateLimit"`      // Requests per second per client (default: 10)
	RateBurst      int     `yaml:"rateBurst"`      // Rate limiter burst size (default: 20)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	DSN          string `yaml:"dsn"`          // Postgres connection string
	EmbeddingDim int    `yaml:"embeddingDim"` // Vector column dimensionality (default: 1536)
}

// LLMConfig contains model provider configuration.
type LLMConfig struct {
	Provider             string `yaml:"provider"`             // LLM provider: openai, ollama (default: ollama)
	OllamaURL            string `yaml:"ollamaUrl"`            // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string `yaml:"ollamaModel"`          // Ollama model for routing extraction (default: qwen2.5:7b)
	OllamaEmbeddingModel string `yaml:"ollamaEmbeddingModel"` // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey         string `yaml:"openaiApiKey"`         // OpenAI API key
	OpenAIBaseURL        string `yaml:"openaiBaseUrl"`        // OpenAI-compatible endpoint; empty uses the SDK default
	OpenAIModel          string `yaml:"openaiModel"`          // OpenAI model name (default: gpt-4o-mini)
	OpenAIEmbeddingModel string `yaml:"openaiEmbeddingModel"` // OpenAI embedding model (default: text-embedding-3-small)
	RerankAPIKey         string `yaml:"rerankApiKey"`         // Cross-encoder API key; empty disables the service
	RerankModel          string `yaml:"rerankModel"`          // Cross-encoder model (default: rerank-v3.5)
	RerankBaseURL        string `yaml:"rerankBaseUrl"`        // Cross-encoder endpoint base URL
}

// RetrievalConfig contains the retrieval pipeline policy knobs.
type RetrievalConfig struct {
	LabelThreshold       float64 `yaml:"labelThreshold"`       // Label routing similarity floor (default: 0.7)
	RerankThreshold      float64 `yaml:"rerankThreshold"`      // Rerank score floor (default: 0.1)
	ExploratoryThreshold float64 `yaml:"exploratoryThreshold"` // Rerank floor for exploratory queries (default: 0.05)
	TokenBudget          int     `yaml:"tokenBudget"`          // Episode token ceiling (default: 4000)
	TokenDivisor         int     `yaml:"tokenDivisor"`         // Characters per estimated token (default: 4)
	CompactMinEpisodes   int     `yaml:"compactMinEpisodes"`   // Session size above which summaries substitute (default: 2)
	EnableReranking      bool    `yaml:"enableReranking"`      // Reranking on by default
}

// LoadConfig loads configuration from defaults, an optional YAML file, and
// environment variables, in increasing precedence. An empty path skips the
// file layer; a path that does not exist is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.DSN == "" {
		return errors.New("config: storage DSN is required (RECALL_DATABASE_URL)")
	}
	if c.Storage.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Storage.EmbeddingDim)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           7373,
			Host:           "127.0.0.1",
			RequestTimeout: 30,
			RateLimit:      10,
			RateBurst:      20,
		},
		Storage: StorageConfig{
			EmbeddingDim: 1536,
		},
		LLM: LLMConfig{
			Provider:             "ollama",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			OpenAIModel:          "gpt-4o-mini",
			OpenAIEmbeddingModel: "text-embedding-3-small",
			RerankModel:          "rerank-v3.5",
			RerankBaseURL:        "https://api.cohere.com",
		},
		Retrieval: RetrievalConfig{
			LabelThreshold:       0.7,
			RerankThreshold:      0.1,
			ExploratoryThreshold: 0.05,
			TokenBudget:          4000,
			TokenDivisor:         4,
			CompactMinEpisodes:   2,
			EnableReranking:      true,
		},
	}
}

// applyEnv overlays RECALL_-prefixed environment variables onto cfg. An
// unset variable leaves the current value in place.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("RECALL_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("RECALL_HOST", cfg.Server.Host)
	cfg.Server.RequestTimeout = getEnvInt("RECALL_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.RateLimit = getEnvFloat("RECALL_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateBurst = getEnvInt("RECALL_RATE_BURST", cfg.Server.RateBurst)

	cfg.Storage.DSN = getEnv("RECALL_DATABASE_URL", cfg.Storage.DSN)
	cfg.Storage.EmbeddingDim = getEnvInt("RECALL_EMBEDDING_DIM", cfg.Storage.EmbeddingDim)

	cfg.LLM.Provider = getEnv("RECALL_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("RECALL_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("RECALL_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OllamaEmbeddingModel = getEnv("RECALL_OLLAMA_EMBEDDING_MODEL", cfg.LLM.OllamaEmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("RECALL_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIBaseURL = getEnv("RECALL_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.OpenAIModel = getEnv("RECALL_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIEmbeddingModel = getEnv("RECALL_OPENAI_EMBEDDING_MODEL", cfg.LLM.OpenAIEmbeddingModel)
	cfg.LLM.RerankAPIKey = getEnv("RECALL_RERANK_API_KEY", cfg.LLM.RerankAPIKey)
	cfg.LLM.RerankModel = getEnv("RECALL_RERANK_MODEL", cfg.LLM.RerankModel)
	cfg.LLM.RerankBaseURL = getEnv("RECALL_RERANK_BASE_URL", cfg.LLM.RerankBaseURL)

	cfg.Retrieval.LabelThreshold = getEnvFloat("RECALL_LABEL_THRESHOLD", cfg.Retrieval.LabelThreshold)
	cfg.Retrieval.RerankThreshold = getEnvFloat("RECALL_RERANK_THRESHOLD", cfg.Retrieval.RerankThreshold)
	cfg.Retrieval.ExploratoryThreshold = getEnvFloat("RECALL_EXPLORATORY_THRESHOLD", cfg.Retrieval.ExploratoryThreshold)
	cfg.Retrieval.TokenBudget = getEnvInt("RECALL_TOKEN_BUDGET", cfg.Retrieval.TokenBudget)
	cfg.Retrieval.TokenDivisor = getEnvInt("RECALL_TOKEN_DIVISOR", cfg.Retrieval.TokenDivisor)
	cfg.Retrieval.CompactMinEpisodes = getEnvInt("RECALL_COMPACT_MIN_EPISODES", cfg.Retrieval.CompactMinEpisodes)
	cfg.Retrieval.EnableReranking = getEnvBool("RECALL_ENABLE_RERANKING", cfg.Retrieval.EnableReranking)
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
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
