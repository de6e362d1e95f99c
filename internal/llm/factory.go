package llm

import "fmt"

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Provider       string // openai, ollama (default: ollama)
	APIKey         string
	Model          string
	EmbeddingModel string
	BaseURL        string
}

// NewStructuredGenerator creates the extraction model client for the
// configured provider.
func NewStructuredGenerator(cfg ProviderConfig) (StructuredGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbedder creates the embedding client for the configured provider.
func NewEmbedder(cfg ProviderConfig) (Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			BaseURL:        cfg.BaseURL,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}
