package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/config"
	dbRedis "github.com/wearly/searchd/internal/db/redis"
	"github.com/wearly/searchd/internal/domain"
	logpkg "github.com/wearly/searchd/internal/logger"
	"github.com/wearly/searchd/internal/metrics"
	catalogrepo "github.com/wearly/searchd/internal/repository/catalog"
	chiTransport "github.com/wearly/searchd/internal/transport/chi"
	openaiTransport "github.com/wearly/searchd/internal/transport/openai"
	"github.com/wearly/searchd/internal/usecase/blend"
	chatuc "github.com/wearly/searchd/internal/usecase/chat"
	expanduc "github.com/wearly/searchd/internal/usecase/expand"
	healthuc "github.com/wearly/searchd/internal/usecase/health"
	llmuc "github.com/wearly/searchd/internal/usecase/llm"
	"github.com/wearly/searchd/internal/usecase/pipeline"
	rerankuc "github.com/wearly/searchd/internal/usecase/rerank"
	retrieveuc "github.com/wearly/searchd/internal/usecase/retrieve"
	"github.com/wearly/searchd/internal/version"
)

const probeTimeout = 2 * time.Second

func main() {
	loadPath := flag.String("load", "", "ingest a JSONL product file into the catalog and exit")
	flag.Parse()

	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	embedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Timeout:  time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Provider: cfg.Embedding.Provider,
		Logger:   logger,
	})
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Catalog.VectorDim),
	)

	catalog := catalogrepo.New(store, cfg.Catalog.IndexName, cfg.Catalog.KeyPrefix, cfg.Catalog.VectorDim,
		catalogrepo.WithHNSW(cfg.Catalog.HNSWM, cfg.Catalog.HNSWEFConstruct))
	if err := catalog.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure catalog index", zap.Error(err))
	}

	if *loadPath != "" {
		if err := loadCatalog(ctx, *loadPath, embedder, catalog, logger); err != nil {
			logger.Fatal("Catalog load failed", zap.Error(err))
		}
		return
	}

	// Build the completion chain. Each configured provider is probed at
	// startup; unreachable ones are skipped so a dead local model does not
	// sink every request into its timeout.
	var completers []llmuc.Completer
	for _, p := range cfg.LLM.Providers {
		c := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:      p.APIKey,
			BaseURL:     p.BaseURL,
			Model:       p.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			Provider:    p.Name,
			Logger:      logger,
		})
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.HealthCheck(probeCtx)
		cancel()
		if err != nil {
			logger.Warn("LLM provider unavailable, skipping",
				zap.String("provider", p.Name), zap.Error(err))
			continue
		}
		completers = append(completers, c)
		logger.Info("LLM provider ready",
			zap.String("provider", p.Name), zap.String("model", p.Model))
	}
	chain := llmuc.NewChain(completers...)
	if !chain.Enabled() {
		logger.Warn("No LLM provider available, running in simple search mode")
	}

	expansionCache := cache.New[domain.Expansion](
		cfg.Cache.ExpansionSize, time.Duration(cfg.Cache.ExpansionTTLSec)*time.Second)
	resultsCache := cache.New[domain.SearchResponse](
		cfg.Cache.ResultsSize, time.Duration(cfg.Cache.ResultsTTLSec)*time.Second)

	expandSvc := expanduc.New(chain, expansionCache)
	retrieveSvc := retrieveuc.New(embedder, catalog)
	rerankSvc := rerankuc.New(chain)

	pipelineSvc := pipeline.New(pipeline.Config{
		Expander:       expandSvc,
		Retriever:      retrieveSvc,
		Reranker:       rerankSvc,
		ResultsCache:   resultsCache,
		ExpansionCache: expansionCache,
		LLMEnabled:     chain.Enabled(),
	})

	// Popularity ceilings for score blending, sampled once at startup.
	maxViews, maxVotes, err := catalog.SamplePopularity(ctx, cfg.Catalog.PopularitySample)
	if err != nil {
		logger.Warn("Popularity sampling failed, using neutral ceilings", zap.Error(err))
	} else {
		pipelineSvc.SetPopularity(blend.Popularity{MaxViews: maxViews, MaxVotes: maxVotes})
		logger.Info("Popularity ceilings sampled",
			zap.Float64("max_views", maxViews), zap.Float64("max_votes", maxVotes))
	}

	chatSvc := chatuc.New(pipelineSvc)
	healthSvc := healthuc.New(store, embedder, chain)

	llmProvider := "none"
	if len(completers) > 0 {
		llmProvider = completers[0].Provider()
	}

	server := chiTransport.NewServer(pipelineSvc, chatSvc, healthSvc, catalog, chiTransport.Info{
		Collection:  cfg.Catalog.IndexName,
		Model:       cfg.Embedding.Model,
		LLMProvider: llmProvider,
		LLMEnabled:  chain.Enabled(),
	}, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEvent(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

const loadBatchSize = 32

// productLine is one JSONL record of a catalog dump.
type productLine struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// loadCatalog reads a JSONL product dump, embeds title+description and
// upserts everything into the catalog index.
func loadCatalog(
	ctx context.Context,
	path string,
	embedder *openaiTransport.Embedder,
	catalog *catalogrepo.Repo,
	logger *zap.Logger,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		batch []productLine
		total int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		for i, p := range batch {
			payload := domain.Payload(p.Fields)
			texts[i] = payload.Title() + " " + payload.Description()
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		products := make([]catalogrepo.Product, len(batch))
		for i, p := range batch {
			products[i] = catalogrepo.Product{
				ID:     p.ID,
				Vector: vectors[i],
				Fields: p.Fields,
			}
		}
		if err := catalog.Upsert(ctx, products); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
		total += len(batch)
		logger.Info("Batch loaded", zap.Int("total", total))
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p productLine
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("parse product line: %w", err)
		}
		batch = append(batch, p)
		if len(batch) == loadBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("Catalog load complete", zap.Int("products", total))
	return nil
}
