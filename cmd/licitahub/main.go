// Command licitahub runs the aggregation and matching engine: provider
// adapters, persistence, the matching engine and the RAG query API behind
// one HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	openai "github.com/sashabaranov/go-openai"

	"github.com/licitahub/licitahub/pkg/api"
	"github.com/licitahub/licitahub/pkg/cache"
	"github.com/licitahub/licitahub/pkg/config"
	"github.com/licitahub/licitahub/pkg/dedup"
	"github.com/licitahub/licitahub/pkg/embedding"
	"github.com/licitahub/licitahub/pkg/extraction"
	"github.com/licitahub/licitahub/pkg/mappers"
	"github.com/licitahub/licitahub/pkg/matching"
	"github.com/licitahub/licitahub/pkg/observability"
	"github.com/licitahub/licitahub/pkg/persistence"
	"github.com/licitahub/licitahub/pkg/providers"
	"github.com/licitahub/licitahub/pkg/providers/comprasnet"
	"github.com/licitahub/licitahub/pkg/providers/pncp"
	"github.com/licitahub/licitahub/pkg/rag"
	"github.com/licitahub/licitahub/pkg/storage"
	"github.com/licitahub/licitahub/pkg/unifiedsearch"
	"github.com/licitahub/licitahub/pkg/vectorstore"
)

// Embedding dimensionality per tier; the chunks table is sized for the
// primary model.
const (
	primaryDims   = 3072
	secondaryDims = 1024
	localDims     = 768
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := observability.NewStandardLoggerWithLevel("licitahub",
		observability.LogLevel(strings.ToUpper(cfg.LogLevel)))

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("database connection failed", map[string]interface{}{"error": err.Error()})
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	defer func() { _ = db.Close() }()

	appCache := buildCache(cfg, logger)
	defer func() { _ = appCache.Close() }()

	providerRegistry, err := buildProviders(cfg, appCache, logger)
	if err != nil {
		logger.Fatal("provider setup failed", map[string]interface{}{"error": err.Error()})
	}

	mapperRegistry := mappers.NewRegistry()
	if err := mapperRegistry.Register(mappers.NewPNCPMapper()); err != nil {
		logger.Fatal("mapper setup failed", map[string]interface{}{"error": err.Error()})
	}
	if err := mapperRegistry.Register(mappers.NewComprasNetMapper()); err != nil {
		logger.Fatal("mapper setup failed", map[string]interface{}{"error": err.Error()})
	}

	store := persistence.NewService(db, mapperRegistry, logger)

	llmClient := buildLLMClient(cfg)
	var synonyms unifiedsearch.SynonymExpander
	if llmClient != nil {
		if svc, err := unifiedsearch.NewLLMSynonymService(llmClient, cfg.LLM.Model, logger); err == nil {
			synonyms = svc
		}
	}
	search := unifiedsearch.NewService(providerRegistry, synonyms, logger)
	search.SetParallelSearch(cfg.Providers.EnableParallelSearch)

	embedder := buildEmbedder(cfg, db, logger)

	var matcher *matching.Engine
	if embedder != nil {
		var validator *matching.Validator
		if llmClient != nil && cfg.LLM.EnableValidation {
			validator = matching.NewValidator(llmClient, cfg.LLM.ValidatorModel, cfg.LLM.ValidatorTimeout, logger)
		}
		matcher = matching.NewEngine(store, embedder, validator, matching.Options{
			Threshold:             cfg.Matching.SimilarityThreshold,
			EnableLLMValidation:   cfg.LLM.EnableValidation,
			ClearBeforeReevaluate: cfg.Matching.ClearBeforeReevaluate,
			IncrementalDays:       cfg.Matching.IncrementalDays,
			PageSize:              cfg.Matching.PageSize,
		}, logger)
	}

	vectors := vectorstore.New(db, logger)
	ragEngine := buildRAG(cfg, db, store, vectors, embedder, appCache, llmClient, providerRegistry, logger)

	server := api.NewServer(api.Config{
		ListenAddress: cfg.API.ListenAddress,
		ReadTimeout:   cfg.API.ReadTimeout,
		WriteTimeout:  cfg.API.WriteTimeout,
	}, api.Deps{
		Search:   search,
		Store:    store,
		Registry: providerRegistry,
		Matcher:  matcher,
		RAG:      ragEngine,
		Vectors:  vectors,
		Cache:    appCache,
	}, logger)

	go func() {
		logger.Info("listening", map[string]interface{}{"address": cfg.API.ListenAddress})
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

// buildCache connects to Redis, degrading to the in-process cache when
// Redis is unreachable.
func buildCache(cfg *config.Config, logger observability.Logger) cache.Cache {
	redisCache, err := cache.NewRedisCache(cfg.Cache)
	if err == nil {
		return redisCache
	}
	logger.Warn("redis unavailable, using in-process cache", map[string]interface{}{
		"address": cfg.Cache.Address, "error": err.Error(),
	})
	memCache, err := cache.NewMemoryCache(1024)
	if err != nil {
		logger.Fatal("cache setup failed", map[string]interface{}{"error": err.Error()})
	}
	return memCache
}

func buildProviders(cfg *config.Config, appCache cache.Cache, logger observability.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	pncpAdapter := pncp.New(pncp.Config{
		BaseURL:      cfg.Providers.PNCPBaseURL,
		ModalityCode: cfg.Providers.PNCPModalityCode,
	}, appCache, logger)
	if err := registry.Register(pncpAdapter); err != nil {
		return nil, err
	}

	comprasnetAdapter, err := comprasnet.New(comprasnet.Config{
		SearchURL: cfg.Providers.ComprasNetSearchURL,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(comprasnetAdapter); err != nil {
		return nil, err
	}
	return registry, nil
}

func buildLLMClient(cfg *config.Config) *openai.Client {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.BaseURL != "" {
		clientCfg.BaseURL = cfg.LLM.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// buildEmbedder assembles the tier chain from whatever credentials are
// configured. No tiers at all disables matching and RAG.
func buildEmbedder(cfg *config.Config, db *sqlx.DB, logger observability.Logger) *embedding.Service {
	var tiers []*embedding.Tier

	if cfg.Embedding.PrimaryAPIKey != "" {
		client := openai.NewClient(cfg.Embedding.PrimaryAPIKey)
		tiers = append(tiers, &embedding.Tier{
			Provider:  embedding.NewOpenAIProvider("primary", client, cfg.Embedding.PrimaryModel, primaryDims),
			BatchSize: cfg.Embedding.BatchSize,
		})
	}
	if cfg.Embedding.SecondaryAPIKey != "" && cfg.Embedding.SecondaryBaseURL != "" {
		clientCfg := openai.DefaultConfig(cfg.Embedding.SecondaryAPIKey)
		clientCfg.BaseURL = cfg.Embedding.SecondaryBaseURL
		client := openai.NewClientWithConfig(clientCfg)
		tiers = append(tiers, &embedding.Tier{
			Provider:  embedding.NewOpenAIProvider("secondary", client, cfg.Embedding.SecondaryModel, secondaryDims),
			BatchSize: cfg.Embedding.BatchSize,
		})
	}
	if cfg.Embedding.LocalBaseURL != "" {
		clientCfg := openai.DefaultConfig("ollama")
		clientCfg.BaseURL = cfg.Embedding.LocalBaseURL
		client := openai.NewClientWithConfig(clientCfg)
		tiers = append(tiers, &embedding.Tier{
			Provider:  embedding.NewOpenAIProvider("local", client, cfg.Embedding.LocalModel, localDims),
			BatchSize: cfg.Embedding.LocalBatchSize,
		})
	}

	if len(tiers) == 0 {
		logger.Warn("no embedding tiers configured, matching and rag disabled", nil)
		return nil
	}

	// vectorizer_kind=local promotes the local tier to the front of the
	// chain, for air-gapped deployments.
	if cfg.Matching.VectorizerKind == "local" {
		for i, tier := range tiers {
			if tier.Provider.Name() == "local" {
				tiers = append([]*embedding.Tier{tier}, append(tiers[:i], tiers[i+1:]...)...)
				break
			}
		}
	}
	return embedding.NewService(tiers, embedding.NewVectorCache(db), logger)
}

func buildRAG(cfg *config.Config, db *sqlx.DB, store *persistence.Service, vectors *vectorstore.Store, embedder *embedding.Service, appCache cache.Cache, llmClient *openai.Client, registry *providers.Registry, logger observability.Logger) *rag.Engine {
	if embedder == nil || llmClient == nil {
		return nil
	}

	var objects extraction.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(context.Background(), storage.Config{
			Region:   cfg.Storage.Region,
			Bucket:   cfg.Storage.Bucket,
			Endpoint: cfg.Storage.Endpoint,
			Prefix:   cfg.Storage.Prefix,
		})
		if err != nil {
			logger.Warn("object storage unavailable, blobs will not be retained", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			objects = s3Store
		}
	}

	listers := map[string]extraction.Lister{}
	if adapter, err := registry.Get(pncp.ProviderName); err == nil {
		if lister, ok := adapter.(extraction.Lister); ok {
			listers[pncp.ProviderName] = lister
		}
	}

	extractor := extraction.NewService(store, objects, listers, logger)
	return rag.NewEngine(store, vectors, embedder, extractor, dedup.New(db), appCache, llmClient, cfg.LLM.Model, cfg.LLM.Temperature, logger)
}
