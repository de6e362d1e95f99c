// Command recall-server runs the Recall HTTP retrieval service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/server"
	"github.com/scrypster/recall/internal/storage/postgres"
)

// providerConfig maps the LLM config block onto the selected provider. The
// base URL is provider-specific: the Ollama address must never leak into the
// OpenAI client, whose SDK treats a non-empty BaseURL as an endpoint
// override.
func providerConfig(cfg *config.Config) llm.ProviderConfig {
	providerCfg := llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.OpenAIAPIKey,
	}
	switch cfg.LLM.Provider {
	case "openai":
		providerCfg.BaseURL = cfg.LLM.OpenAIBaseURL
		providerCfg.Model = cfg.LLM.OpenAIModel
		providerCfg.EmbeddingModel = cfg.LLM.OpenAIEmbeddingModel
	default:
		providerCfg.BaseURL = cfg.LLM.OllamaURL
		providerCfg.Model = cfg.LLM.OllamaModel
		providerCfg.EmbeddingModel = cfg.LLM.OllamaEmbeddingModel
	}
	return providerCfg
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage.
	store, err := postgres.Open(ctx, cfg.Storage.DSN, cfg.Storage.EmbeddingDim, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	// HNSW index builds run CONCURRENTLY; failure degrades ANN queries to
	// sequential scans but the service still works.
	if err := store.EnsureVectorIndexes(ctx); err != nil {
		logger.Warn("vector index creation failed", "error", err)
	}

	// Model providers.
	providerCfg := providerConfig(cfg)

	generator, err := llm.NewStructuredGenerator(providerCfg)
	if err != nil {
		logger.Error("failed to build generator", "error", err)
		os.Exit(1)
	}
	embedder, err := llm.NewEmbedder(providerCfg)
	if err != nil {
		logger.Error("failed to build embedder", "error", err)
		os.Exit(1)
	}

	var crossEncoder llm.CrossEncoder
	if cfg.LLM.RerankAPIKey != "" {
		crossEncoder = llm.NewRerankClient(llm.RerankConfig{
			APIKey:  cfg.LLM.RerankAPIKey,
			Model:   cfg.LLM.RerankModel,
			BaseURL: cfg.LLM.RerankBaseURL,
		})
	}

	// Engine.
	retrieval := engine.DefaultRetrievalConfig()
	retrieval.LabelThreshold = cfg.Retrieval.LabelThreshold
	retrieval.RerankThreshold = cfg.Retrieval.RerankThreshold
	retrieval.ExploratoryThreshold = cfg.Retrieval.ExploratoryThreshold
	retrieval.TokenBudget = cfg.Retrieval.TokenBudget
	retrieval.TokenDivisor = cfg.Retrieval.TokenDivisor
	retrieval.CompactMinEpisodes = cfg.Retrieval.CompactMinEpisodes
	retrieval.EnableReranking = cfg.Retrieval.EnableReranking

	eng, err := engine.New(engine.Dependencies{
		Vectors:      store,
		Graph:        store,
		Relational:   store,
		Embedder:     embedder,
		Generator:    generator,
		CrossEncoder: crossEncoder,
		Config:       retrieval,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	addr, err := server.Start(ctx, cfg, eng, logger)
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("recall server running", "addr", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	time.Sleep(1 * time.Second)
}
