// Command ui-server is the UnifiedIntelligence process entrypoint: it wires
// the Store Gateway, Script Cache, repositories, and Tool Dispatcher, then
// serves either stdio or bearer-HTTP framing until shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/8agana/unified-intelligence/internal/collaborator"
	"github.com/8agana/unified-intelligence/internal/config"
	"github.com/8agana/unified-intelligence/internal/dispatch"
	"github.com/8agana/unified-intelligence/internal/embedding"
	"github.com/8agana/unified-intelligence/internal/knowledge"
	"github.com/8agana/unified-intelligence/internal/observability"
	"github.com/8agana/unified-intelligence/internal/ratelimit"
	"github.com/8agana/unified-intelligence/internal/retrieval"
	"github.com/8agana/unified-intelligence/internal/scripts"
	"github.com/8agana/unified-intelligence/internal/session"
	"github.com/8agana/unified-intelligence/internal/store"
	"github.com/8agana/unified-intelligence/internal/synthesis"
	"github.com/8agana/unified-intelligence/internal/thought"
	httptransport "github.com/8agana/unified-intelligence/internal/transport/http"
	"github.com/8agana/unified-intelligence/internal/transport/stdio"
	"github.com/8agana/unified-intelligence/internal/workflow"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "unified-intelligence",
	})

	logger.Info().Str("instance_id", cfg.InstanceID).Str("mode", cfg.Server.Mode).Msg("starting unified-intelligence")

	gw := store.New(store.Config{
		Addr:            cfg.Store.Addr,
		Password:        cfg.Store.Password,
		DB:              cfg.Store.DB,
		MaxPoolSize:     cfg.Store.MaxPoolSize,
		PoolWaitTimeout: cfg.Store.PoolWaitTimeout,
		DialTimeout:     cfg.Store.DialTimeout,
		ReadTimeout:     cfg.Store.ReadTimeout,
		WriteTimeout:    cfg.Store.WriteTimeout,
	}, logger)
	defer gw.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	scriptCache, err := scripts.New(bootCtx, gw)
	bootCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("script cache initialization failed")
		os.Exit(1)
	}

	collab := collaborator.New(collaborator.Config{
		APIKey:         os.Getenv("OPENROUTER_API_KEY"),
		ChatModel:      os.Getenv("UI_CHAT_MODEL"),
		EmbeddingModel: cfg.Embedding.Model,
	})

	embeddings := embedding.New(gw, collab, embedding.Config{
		Dims:            cfg.Embedding.Dimensions,
		HNSWM:           cfg.Embedding.HNSWMaxConnections,
		HNSWEFConstruct: cfg.Embedding.HNSWEFConstruction,
	}, logger)

	thoughts := thought.New(gw, scriptCache, logger)
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = thoughts.EnsureTextIndex(indexCtx, cfg.InstanceID)
	indexCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("ensure thought text index failed")
		os.Exit(1)
	}
	kg := knowledge.New(gw, scriptCache, embeddings, logger)
	retrievalEngine := retrieval.NewWithRecencyHalfLife(gw, embeddings, logger, cfg.Retrieval.RecencyHalfLifeSeconds)
	textSearch := thought.TextSearchAdapter{Repo: thoughts}
	orchestrator := synthesis.New(thoughts, retrievalEngine, textSearch, collab, gw, logger)
	bootstrapper := session.New(thoughts, kg, embeddings, collab, gw, logger)
	rotator := workflow.NewRotator(gw)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)

	d := &dispatch.Dispatcher{
		Thoughts:       thoughts,
		Knowledge:      kg,
		Embeddings:     embeddings,
		Retrieval:      retrievalEngine,
		TextIndex:      textSearch,
		Synthesis:      orchestrator,
		Session:        bootstrapper,
		Rotator:        rotator,
		Limiter:        limiter,
		Gateway:        gw,
		Log:            logger,
		DefaultWeights: retrieval.ResolveWeights(cfg.Retrieval.Preset),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Server.Mode {
	case "http":
		runHTTP(ctx, d, cfg, logger)
	default:
		runStdio(ctx, d, logger)
	}

	logger.Info().Msg("unified-intelligence stopped")
}

func runStdio(ctx context.Context, d *dispatch.Dispatcher, logger *observability.Logger) {
	if err := stdio.Serve(ctx, d, logger, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("stdio transport error")
	}
}

func runHTTP(ctx context.Context, d *dispatch.Dispatcher, cfg *config.Config, logger *observability.Logger) {
	router := httptransport.NewRouter(d, httptransport.Config{
		BearerToken:    cfg.Server.BearerToken,
		RequestTimeout: cfg.Server.ReadTimeout,
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = srv.Close()
	}
}
