package main

import (
	"context"
	"fmt"
	"net/http"

	chatinfra "github.com/speedauto/speedauto-assistant-go/internal/chat/infra"
	chatservice "github.com/speedauto/speedauto-assistant-go/internal/chat/service"
	"github.com/speedauto/speedauto-assistant-go/internal/config"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/cache"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/observability"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/postgres"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/resilience"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/supabase"
	"github.com/speedauto/speedauto-assistant-go/internal/infra/vectorstore"
	"github.com/speedauto/speedauto-assistant-go/internal/port"

	"go.uber.org/zap"
)

// dataStore is what both backends provide.
type dataStore interface {
	port.DealershipStore
	port.MemoryStore
}

// app holds the wired pipeline plus everything that needs closing.
type app struct {
	chat    *chatservice.ChatService
	store   dataStore
	metrics *observability.Metrics
	closers []func() error
}

func (a *app) Close(logger *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown: close failed", zap.Error(err))
		}
	}
}

// buildApp wires stores, cache, model adapters and the chat pipeline.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{metrics: observability.NewMetrics()}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Data store ---
	switch cfg.DataBackend {
	case config.BackendPostgres:
		logger.Info("using Postgres as data backend")
		db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.MaxConcurrency)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		cb := resilience.NewCircuitBreaker("postgres", postgres.IsClientError, logger)
		a.store = postgres.NewStore(db, cb, resilienceCfg, logger)
	default:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		cb := resilience.NewCircuitBreaker("supabase", supabase.IsClientError, logger)
		a.store = supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
	}

	// --- Memory cache ---
	var memOpts []chatservice.SessionMemoryOption
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			a.Close(logger)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		memOpts = append(memOpts, chatservice.WithMemoryCache(cache.NewRedis(rdb, "speedauto:memory:", cfg.CacheTTL, logger)))
		logger.Info("memory cache: redis")
	} else {
		mc := cache.New[string](cfg.CacheTTL)
		a.closers = append(a.closers, mc.Close)
		memOpts = append(memOpts, chatservice.WithMemoryCache(mc))
		logger.Info("memory cache: in-memory")
	}

	// --- Gemini ---
	gcfg := chatinfra.GeminiConfig{
		APIKey:            cfg.Gemini.APIKey,
		BaseURL:           cfg.Gemini.BaseURL,
		IntentModel:       cfg.Gemini.IntentModel,
		IntentTemperature: cfg.Gemini.IntentTemperature,
		ChatModel:         cfg.Gemini.ChatModel,
		ChatTemperature:   cfg.Gemini.ChatTemperature,
		EmbeddingModel:    cfg.Gemini.EmbeddingModel,
		MaxTokens:         cfg.Gemini.MaxTokens,
	}
	client, err := chatinfra.NewGenAIClient(ctx, gcfg)
	if err != nil {
		a.Close(logger)
		return nil, err
	}
	intentModel, chatModel, err := chatinfra.NewChatModels(ctx, client, gcfg)
	if err != nil {
		a.Close(logger)
		return nil, err
	}
	oracle := chatinfra.NewGeminiOracle(
		intentModel,
		chatModel,
		resilience.NewCircuitBreaker("gemini", chatinfra.IgnoreForBreaker, logger),
		resilienceCfg,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		a.metrics,
		logger,
	)

	// --- Semantic memory (optional) ---
	if cfg.SemanticMemory {
		idx, err := vectorstore.New(cfg.VectorDir, logger)
		if err != nil {
			a.Close(logger)
			return nil, err
		}
		embedder := chatinfra.NewGeminiEmbedder(client, gcfg.EmbeddingModel, logger)
		memOpts = append(memOpts, chatservice.WithSemanticIndex(embedder, idx))
		logger.Info("semantic memory enabled", zap.String("vector_dir", cfg.VectorDir))
	}

	// --- Chat pipeline ---
	memory := chatservice.NewSessionMemory(a.store, a.metrics, logger, memOpts...)
	sales := chatservice.NewSaleExecutor(a.store, a.metrics, logger)
	a.chat = chatservice.NewChatService(chatservice.Deps{
		Shortcuts:  chatservice.NewShortcuts(a.store, memory, a.metrics, logger),
		Extractor:  chatservice.NewExtractor(oracle, logger),
		Dispatcher: chatservice.NewDefaultDispatcher(a.store, memory, sales, logger),
		Sales:      sales,
		Memory:     memory,
		Oracle:     oracle,
	}, cfg.ConfidenceThreshold, a.metrics, logger)

	return a, nil
}
