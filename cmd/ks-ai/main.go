package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"ks-ai/internal/api"
	"ks-ai/internal/api/handlers"
	"ks-ai/internal/repository"
	"ks-ai/internal/service"
	"ks-ai/pkg/auth"
	"ks-ai/pkg/config"
	"ks-ai/pkg/logger"
	"ks-ai/pkg/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting KS AI service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	contentRepo := repository.NewContentRepository(db, appLogger)
	if err := contentRepo.Migrate(ctx); err != nil {
		appLogger.Fatal("Failed to migrate content table", zap.Error(err))
	}
	conversationRepo := repository.NewConversationRepository(db, appLogger)
	userRepo := repository.NewUserRepository(db, appLogger)

	backend, err := newVectorBackend(ctx, cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize vector store", zap.Error(err))
	}

	// Initialize services
	var tokenizer service.Tokenizer
	if tiktoken, err := service.NewTiktokenTokenizer(); err != nil {
		appLogger.Warn("Tiktoken encoding unavailable, falling back to word tokens", zap.Error(err))
		tokenizer = service.NewWordTokenizer()
	} else {
		tokenizer = tiktoken
	}
	chunker := service.NewChunker(tokenizer)

	embeddingOpts := []service.EmbeddingOption{
		service.WithRateLimit(cfg.OpenAI.EmbeddingRPS),
		service.WithChunkOverlap(cfg.Ingestion.ChunkOverlap),
		service.WithEmbeddingTimeout(cfg.Timeouts.Embedding),
	}
	if cfg.Redis.URL != "" {
		cache, err := service.NewRedisEmbeddingCache(ctx, cfg.Redis.URL, cfg.Redis.CacheTTL, logger.Named("embedding_cache"))
		if err != nil {
			appLogger.Warn("Embedding cache disabled", zap.Error(err))
		} else {
			defer cache.Close()
			embeddingOpts = append(embeddingOpts, service.WithEmbeddingCache(cache))
		}
	}
	embeddingService := service.NewEmbeddingService(&cfg.OpenAI, chunker, logger.Named("embedding"), embeddingOpts...)

	vectorStore := service.NewVectorStoreService(backend, cfg.OpenAI.EmbeddingDimension, cfg.Timeouts.VectorStore, logger.Named("vector_store"))

	extractor := service.NewExtractorService(
		service.NewPDFExtractor(cfg.Ingestion.UploadDir, appLogger),
		service.NewYouTubeExtractor(appLogger),
		cfg.Timeouts.Extraction,
		logger.Named("extractor"),
	)

	generator, err := service.NewGenerator(ctx, cfg, logger.Named("llm"))
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM service", zap.Error(err))
	}
	if closer, ok := generator.(io.Closer); ok {
		defer closer.Close()
	}

	ragService := service.NewRAGService(embeddingService, vectorStore, generator, cfg.RAG, logger.Named("rag"))
	if !ragService.InitializeCollections(ctx) {
		appLogger.Warn("Some collections could not be initialized")
	}

	ingestionService := service.NewIngestionService(
		contentRepo,
		extractor,
		embeddingService,
		vectorStore,
		cfg.OpenAI.EmbeddingDimension,
		cfg.Ingestion,
		logger.Named("ingestion"),
	)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	ingestionService.Start(workerCtx)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(embeddingService, vectorStore, generator)
	chatHandler := handlers.NewChatHandler(ragService, conversationRepo, appLogger)
	adminHandler := handlers.NewAdminHandler(ingestionService, contentRepo, vectorStore, appLogger)

	// Setup router
	verifier := auth.NewJWTVerifier(cfg.JWT.SecretKey)
	app := api.SetupRouter(healthHandler, chatHandler, adminHandler, verifier, userRepo, &cfg.Server, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
	ingestionService.Stop()
}

func newVectorBackend(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, appLogger *zap.Logger) (repository.VectorBackend, error) {
	if cfg.VectorStore.Backend == config.BackendMemory {
		appLogger.Warn("Using in-memory vector store; vectors are lost on restart")
		return repository.NewMemoryVectorRepository(), nil
	}

	if err := postgres.EnsureVectorExtension(ctx, db); err != nil {
		return nil, err
	}
	repo := repository.NewPGVectorRepository(db, logger.Named("pgvector"))
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate vector registry: %w", err)
	}
	return repo, nil
}
