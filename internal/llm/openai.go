package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI-backed clients.
type OpenAIConfig struct {
	APIKey         string
	Model          string // default: gpt-4o-mini
	EmbeddingModel string // default: text-embedding-3-small
	BaseURL        string // optional override for compatible endpoints
}

// OpenAIClient implements StructuredGenerator and Embedder using the OpenAI
// API. JSON-object response format keeps extraction output machine-parseable;
// decoding is still defensive because models occasionally wrap JSON in
// fences anyway.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	chatBreaker    *CircuitBreaker
	embedBreaker   *CircuitBreaker
}

// NewOpenAIClient creates a client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		chatBreaker:    NewCircuitBreaker("openai-chat"),
		embedBreaker:   NewCircuitBreaker("openai-embed"),
	}
}

// GenerateJSON asks the model for a JSON object and decodes it into out.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, user string, out any) error {
	result, err := c.chatBreaker.Execute(ctx, func() (any, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return fmt.Errorf("openai: generate json: %w", err)
	}
	return DecodeJSONResponse(result.(string), out)
}

// Embed generates one embedding for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.embedBreaker.Execute(ctx, func() (any, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("openai returned no embeddings")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embed: %w", err)
	}
	return result.([]float32), nil
}

// GetModel returns the configured chat model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// Compile-time assertions.
var (
	_ StructuredGenerator = (*OpenAIClient)(nil)
	_ Embedder            = (*OpenAIClient)(nil)
)

// DecodeJSONResponse decodes a model response into out, tolerating markdown
// code fences and leading prose around the JSON object.
func DecodeJSONResponse(raw string, out any) error {
	cleaned := strings.TrimSpace(raw)

	// Strip a ```json ... ``` fence when present.
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	// Last resort: decode the outermost brace-delimited object.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("llm: response is not valid JSON: %.120q", raw)
}
