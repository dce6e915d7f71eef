// Package app assembles the routing pipeline from configuration. The server
// and the CLI share it so both run the same stages.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/embedding"
	"github.com/nulzo/omni-router/internal/gateway"
	"github.com/nulzo/omni-router/internal/modeldata"
	"github.com/nulzo/omni-router/internal/ranking"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/internal/store/cache"

	// provider adapters register themselves in init()
	_ "github.com/nulzo/omni-router/internal/llm/anthropic"
	_ "github.com/nulzo/omni-router/internal/llm/bfl"
	_ "github.com/nulzo/omni-router/internal/llm/google"
	_ "github.com/nulzo/omni-router/internal/llm/ollama"
	_ "github.com/nulzo/omni-router/internal/llm/openai"
)

const memoryCacheSize = 10_000

// Deps are the optional collaborators the server adds on top of the pipeline.
type Deps struct {
	Ingestor analytics.Ingestor
	// Cache stores model description embeddings across restarts.
	Cache cache.CacheService
}

// NewGateway builds every pipeline stage from cfg and registers the enabled
// providers. It returns the number of providers that passed their health check.
func NewGateway(ctx context.Context, cfg *config.Config, logger *zap.Logger, deps Deps) (gateway.Service, int, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding: %w", err)
	}

	catalogue, err := modeldata.Load(cfg.Routing.ModelsFile)
	if err != nil {
		return nil, 0, err
	}

	tasks, err := cfg.Routing.TaskSet()
	if err != nil {
		return nil, 0, fmt.Errorf("tasks: %w", err)
	}

	// description vectors may come from the store; query vectors never do
	var descriptions routing.Embedder = embedder
	if deps.Cache != nil {
		ns := embedding.Namespace(cfg.Embedding.Backend, cfg.Embedding.Model, embedder.Dimensions())
		descriptions = embedding.NewStoredEmbedder(embedder, deps.Cache, ns, logger)
	}

	registry, err := routing.LoadRegistry(ctx, catalogue.Models, routing.Ceilings(catalogue.Ceilings), descriptions)
	if err != nil {
		return nil, 0, fmt.Errorf("model registry: %w", err)
	}
	logger.Info("Model registry loaded", zap.Int("models", registry.Len()), zap.Int("tasks", len(tasks.Names())))

	scorer, err := ranking.NewScorer(cfg.Ranker, embedder, &http.Client{Timeout: cfg.Ranker.Timeout})
	if err != nil {
		return nil, 0, fmt.Errorf("ranker: %w", err)
	}
	if _, ok := scorer.(*ranking.SimilarityScorer); ok {
		logger.Warn("Candidate ranker is using embedding similarity, not a relevance classifier; set ranker.url for ensemble quality")
	}

	service := gateway.NewService(logger, gateway.Options{
		Router:   routing.NewRouter(registry, tasks, embedder, logger),
		Modes:    routing.NewBinaryRouter(cfg.Routing.ClassifierPath, cfg.Routing.LengthThreshold, logger),
		Ranker:   ranking.NewRanker(scorer, logger),
		Ingestor: deps.Ingestor,
		Images:   catalogue.Images(),
		Settings: gateway.SettingsFromConfig(cfg.Routing),
	})

	healthy := gateway.BootstrapProviders(ctx, service, cfg.Providers, logger)
	return service, healthy, nil
}

// NewCache returns Redis when enabled and reachable, the in-process cache otherwise.
// The returned close func is never nil.
func NewCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (cache.CacheService, func() error) {
	if cfg.Enabled {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   "omni:",
		})
		if err == nil {
			logger.Info("Using redis embedding store", zap.String("addr", cfg.Addr))
			return rc, rc.Close
		}
		logger.Warn("Redis unavailable, falling back to in-memory cache", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return cache.NewMemoryCache(memoryCacheSize), func() error { return nil }
}
