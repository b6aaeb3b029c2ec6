// Quorum server: exposes the HTTP API, runs the pipeline worker, and
// drives idea reviews through the persona panel to a decision.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quorumlabs/quorum/pkg/api"
	"github.com/quorumlabs/quorum/pkg/broker"
	"github.com/quorumlabs/quorum/pkg/config"
	"github.com/quorumlabs/quorum/pkg/database"
	"github.com/quorumlabs/quorum/pkg/llm"
	"github.com/quorumlabs/quorum/pkg/pipeline"
	"github.com/quorumlabs/quorum/pkg/schema"
	"github.com/quorumlabs/quorum/pkg/services"
	"github.com/quorumlabs/quorum/pkg/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// 1. Configuration (includes the persona weight startup assertion)
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting quorum", "http_port", cfg.HTTPPort)

	// 2. Database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logger.Error("Error closing database client", "error", err)
		}
	}()
	logger.Info("Connected to PostgreSQL database")

	st := store.New(dbClient.DB())

	// 3. Broker (ensures the stream exists)
	b, err := broker.Connect(ctx, cfg.Broker, logger)
	if err != nil {
		logger.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer b.Close()
	logger.Info("Connected to NATS JetStream", "stream", cfg.Broker.StreamName)

	// 4. One-time startup orphan requeue
	if err := pipeline.RequeueOrphans(ctx, st, b, cfg.Worker.JobTimeout(), logger); err != nil {
		logger.Error("Failed to requeue orphaned runs", "error", err)
		// Non-fatal: the claim protocol also reclaims stale runs
	}

	// 5. Schema registry and LLM client
	registry, err := schema.NewRegistry()
	if err != nil {
		logger.Error("Failed to load schema registry", "error", err)
		os.Exit(1)
	}
	llmClient := llm.NewClient(llm.NewAnthropicProvider(cfg.LLM.APIKey), registry)
	logger.Info("LLM client initialized", "model", cfg.LLM.Model)

	// 6. Pipeline worker (started before the HTTP server)
	executor := pipeline.NewExecutor(st, llmClient, cfg, logger)
	worker := pipeline.NewWorker(b, st, executor, cfg, logger)

	workerCtx, workerCancel := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx); err != nil {
			logger.Error("Worker stopped with error", "error", err)
		}
	}()
	logger.Info("Pipeline worker started", "max_concurrency", cfg.Worker.MaxConcurrency)

	// 7. HTTP server
	enqueueService := services.NewEnqueueService(st, b, cfg, logger)
	runService := services.NewRunService(st, logger)
	server := api.NewServer(enqueueService, runService, dbClient, b, cfg, logger)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: stop consuming first, drain in-flight runs under
	// the grace period, then stop HTTP with its own timeout.
	workerCancel()
	select {
	case <-workerDone:
		logger.Info("Pipeline worker stopped gracefully")
	case <-time.After(cfg.Worker.GracefulShutdownTimeout):
		logger.Warn("Worker shutdown timeout exceeded, in-flight runs will be orphan-recovered")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
