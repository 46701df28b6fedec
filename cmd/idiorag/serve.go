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

	"github.com/pedjoni/idiorag/internal/api"
	"github.com/pedjoni/idiorag/internal/auth"
	"github.com/pedjoni/idiorag/internal/chunker"
	"github.com/pedjoni/idiorag/internal/config"
	"github.com/pedjoni/idiorag/internal/embedding"
	"github.com/pedjoni/idiorag/internal/index"
	"github.com/pedjoni/idiorag/internal/llm"
	"github.com/pedjoni/idiorag/internal/logging"
	"github.com/pedjoni/idiorag/internal/repository"
	"github.com/pedjoni/idiorag/internal/retrieval"
	"github.com/pedjoni/idiorag/internal/service"
	"github.com/pedjoni/idiorag/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Environment)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	repo := repository.NewDocumentRepository(db)

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	store, err := newVectorStore(cfg.VectorStore, embedder.Dimensions())
	if err != nil {
		return err
	}
	defer store.Close()

	completer, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	registry := chunker.NewDefaultRegistry(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	for name, path := range cfg.Chunking.Chunkers {
		if err := registry.RegisterFromPath(name, path); err != nil {
			return err
		}
	}
	for docType, name := range cfg.Chunking.DocTypeChunkers {
		if !registry.Has(name) {
			return fmt.Errorf("doc type %q maps to unregistered chunker %q", docType, name)
		}
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}

	pipeline := index.NewPipeline(registry, embedder, store, index.Options{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, logger)
	gateway := retrieval.NewGateway(embedder, store, logger)

	orchestrator := service.NewQueryOrchestrator(gateway, repo, completer, service.QueryConfig{
		DefaultTopK: cfg.Query.DefaultTopK,
		MaxTopK:     cfg.Query.MaxTopK,
		DefaultMode: cfg.Query.DefaultMode,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Stop:        cfg.LLM.StopSequences,
	}, logger)

	router := api.SetupRouter(api.Dependencies{
		Authenticator: authenticator,
		Ingester:      service.NewIngestService(repo, pipeline, registry, cfg.Chunking.DocTypeChunkers, logger),
		Documents:     service.NewDocumentService(repo, pipeline, logger),
		Strategies:    registry,
		Orchestrator:  orchestrator,
	}, api.RouterConfig{
		AppName:      "IdioRAG",
		Version:      Version,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting IdioRAG server",
			zap.String("address", cfg.Address()),
			zap.String("vector_store", cfg.VectorStore.Type),
			zap.String("embedding_model", embedder.ModelName()),
			zap.Strings("chunkers", registry.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Provider == "hashing" {
		return embedding.NewHashingEmbedder(cfg.Dimensions), nil
	}
	client, err := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return embedding.NewCachedEmbedder(client, cfg.CacheSize), nil
}

func newVectorStore(cfg config.VectorStoreConfig, dimensions int) (vectorstore.Store, error) {
	switch cfg.Type {
	case "memory":
		return vectorstore.NewHNSWStore(dimensions), nil
	case "qdrant":
		store := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Init(ctx, dimensions); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize qdrant: %w", err)
		}
		return store, nil
	default:
		store, err := vectorstore.OpenSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		return store, nil
	}
}
