package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa/internal/api"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/embedding"
	"docqa/internal/logging"
	"docqa/internal/openai"
	"docqa/internal/repository"
	"docqa/internal/repository/memory"
	"docqa/internal/services"
	"docqa/internal/telemetry"

	"go.uber.org/zap"
)

/*
STARTUP AND SHUTDOWN

Dependencies are built in order and injected through constructors:

  config -> logger -> tracing -> storage -> provider clients -> ingestion
  (pipeline, reconcile, dispatcher) -> Q&A -> HTTP

On SIGINT/SIGTERM the HTTP server stops accepting requests first, then the
ingestion workers drain, then traces are flushed and storage is closed.
*/

const shutdownTimeout = 30 * time.Second

type storage struct {
	docs     services.DocumentRepository
	jobs     services.JobRepository
	sessions services.QASessionRepository
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logging.Sync(logger) }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logging.Sync(logger)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting docqa",
		zap.String("version", cfg.ServiceVersion),
		zap.String("storage", cfg.StorageDriver),
	)

	// Tracing is optional; the service runs without a collector.
	jaegerShutdown, err := telemetry.InitJaeger(telemetry.Options{
		ServiceName:    "docqa",
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.JaegerEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize jaeger, continuing without tracing", zap.Error(err))
		jaegerShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			logger.Warn("failed to shutdown jaeger", zap.Error(err))
		}
	}()

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	openaiClient := openai.NewClient(openai.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		EmbeddingModel:    cfg.EmbeddingModel,
		ChatModel:         cfg.ChatModel,
		RequestsPerSecond: cfg.ProviderRateLimit,
		MaxRetries:        cfg.ProviderMaxRetries,
	})

	provider := embedding.NewProvider(openaiClient, embedding.Config{
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
		BatchSize: cfg.EmbeddingBatchSize,
		Timeout:   cfg.ProviderTimeout,
	}, logger)

	metrics := services.NewMetrics(logger)

	pipeline := services.NewIngestionPipeline(
		store.docs,
		store.jobs,
		provider,
		chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap)),
		logger,
		metrics,
	)

	// Fail whatever a previous process left in processing before new runs start.
	if _, err := pipeline.Reconcile(context.Background()); err != nil {
		return fmt.Errorf("failed to reconcile ingestion state: %w", err)
	}

	dispatcher := services.NewIngestionDispatcher(pipeline, cfg.IngestionWorkers, cfg.IngestionQueueSize, logger)
	dispatcher.Start()

	retriever := services.NewRetriever(store.docs, provider, cfg.RetrievalTopK)
	synthesizer := services.NewAnswerSynthesizer(openaiClient, services.AnswerConfig{
		Model:       cfg.ChatModel,
		MaxTokens:   cfg.ChatMaxTokens,
		Temperature: cfg.ChatTemperature,
		Timeout:     cfg.ProviderTimeout,
	}, logger, metrics)
	rag := services.NewRAGService(retriever, synthesizer, cfg.RetrievalTopK)

	documentService := services.NewDocumentService(store.docs, store.jobs, store.sessions, dispatcher, pipeline, logger)
	qaService := services.NewQAService(rag, store.sessions, logger, metrics)

	handler := api.NewHandler(documentService, qaService, logger)
	router := api.SetupRoutes(handler, logger)

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	// Queued documents stay pending; interrupted runs are recorded as failed.
	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Warn("ingestion workers did not finish in time", zap.Error(err))
	}

	logger.Info("server shutdown complete")
	return runErr
}

func openStorage(cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			docs:     memory.NewDocumentRepository(),
			jobs:     memory.NewJobRepository(),
			sessions: memory.NewQASessionRepository(),
			close:    func() error { return nil },
		}, nil
	default:
		database, err := db.NewGorm(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &storage{
			docs:     repository.NewDocumentRepository(database.DB),
			jobs:     repository.NewJobRepository(database.DB),
			sessions: repository.NewQASessionRepository(database.DB),
			close:    database.Close,
		}, nil
	}
}
