package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finsight/internal/chunker"
	"finsight/internal/config"
	"finsight/internal/embedding"
	"finsight/internal/http"
	"finsight/internal/llm"
	"finsight/internal/parser"
	"finsight/internal/processor"
	"finsight/internal/search"
	"finsight/internal/storage"
	"finsight/internal/store"
	"finsight/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", level.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Initialize the optional relational store. An empty DB_PATH runs the
	// service vector-only.
	var (
		chunkRepo  storage.ChunkStore
		tableRepo  *storage.TableRepo
		resultRepo *storage.ResultRepo
	)
	if cfg.RelationalEnabled() {
		db, err := storage.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer func() {
			_ = db.Close()
		}()

		if err := storage.Migrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		chunkRepo = storage.NewChunkRepo(db)
		tableRepo = storage.NewTableRepo(db)
		resultRepo = storage.NewResultRepo(db)
		slog.Info("Database initialized", "path", cfg.DBPath)
	} else {
		slog.Warn("No database configured, running vector-only")
	}

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	collections := store.Collections{
		Chunks:  cfg.ChunksCollection,
		Tables:  cfg.TablesCollection,
		Markers: cfg.MarkersCollection,
	}
	if err := vectorStore.EnsureCollection(ctx, collections.Chunks, cfg.VectorSize); err != nil {
		log.Fatalf("Failed to ensure chunks collection: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, collections.Tables, cfg.VectorSize); err != nil {
		log.Fatalf("Failed to ensure tables collection: %v", err)
	}
	// Marker points carry a placeholder vector; only the payload matters.
	if err := vectorStore.EnsureCollection(ctx, collections.Markers, 1); err != nil {
		log.Fatalf("Failed to ensure markers collection: %v", err)
	}
	slog.Info("Qdrant collections ready",
		"chunks", collections.Chunks,
		"tables", collections.Tables,
		"markers", collections.Markers,
		"vector_size", cfg.VectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)
	if err := embedder.Ping(ctx); err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	slog.Info("Embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", cfg.VectorSize)

	// Parse gateway with its on-disk cache
	parseClient := parser.NewClient(cfg.ParserBaseURL, cfg.ParserAPIKey)
	gateway, err := parser.NewGateway(parseClient, cfg.CacheDir)
	if err != nil {
		log.Fatalf("Failed to create parse gateway: %v", err)
	}

	coordinator := store.NewCoordinator(vectorStore, chunkRepo, tableRepo, resultRepo, collections)
	generator := embedding.NewGenerator(embedder)
	proc := processor.NewProcessor(gateway, chunker.NewBuilder(cfg.MaxChunkSize), generator, coordinator)
	searchService := search.NewService(generator, coordinator)

	router := http.NewRouter(&http.Deps{
		Processor:   proc,
		Search:      searchService,
		Coordinator: coordinator,
	})

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("Starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", "error", err)
	}
}
