package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"ks-ai/internal/models"
	"ks-ai/internal/repository"
	"ks-ai/internal/service"
	"ks-ai/pkg/config"
	"ks-ai/pkg/logger"
	"ks-ai/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	// Connect to database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	contentRepo := repository.NewContentRepository(db, appLogger)
	if err := contentRepo.Migrate(ctx); err != nil {
		appLogger.Fatal("Failed to migrate content table", zap.Error(err))
	}

	if err := postgres.EnsureVectorExtension(ctx, db); err != nil {
		appLogger.Fatal("Failed to enable pgvector", zap.Error(err))
	}
	vectorRepo := repository.NewPGVectorRepository(db, appLogger)
	if err := vectorRepo.Migrate(ctx); err != nil {
		appLogger.Fatal("Failed to migrate vector registry", zap.Error(err))
	}

	var tokenizer service.Tokenizer = service.NewWordTokenizer()
	if tiktoken, err := service.NewTiktokenTokenizer(); err == nil {
		tokenizer = tiktoken
	}

	embeddingService := service.NewEmbeddingService(&cfg.OpenAI, service.NewChunker(tokenizer), appLogger,
		service.WithRateLimit(cfg.OpenAI.EmbeddingRPS),
		service.WithChunkOverlap(cfg.Ingestion.ChunkOverlap),
		service.WithEmbeddingTimeout(cfg.Timeouts.Embedding),
	)
	if !embeddingService.IsAvailable() {
		appLogger.Fatal("Embedding backend is required for seeding")
	}

	vectorStore := service.NewVectorStoreService(vectorRepo, cfg.OpenAI.EmbeddingDimension, cfg.Timeouts.VectorStore, appLogger)
	extractor := service.NewExtractorService(
		service.NewPDFExtractor(cfg.Ingestion.UploadDir, appLogger),
		service.NewYouTubeExtractor(appLogger),
		cfg.Timeouts.Extraction,
		appLogger,
	)
	ingestion := service.NewIngestionService(contentRepo, extractor, embeddingService, vectorStore,
		cfg.OpenAI.EmbeddingDimension, cfg.Ingestion, appLogger)

	appLogger.Info("Starting knowledge base seeding...")

	seedDir := filepath.Join("cmd", "seed")
	manifestFile := filepath.Join(seedDir, "manifest.json")
	cacheFile := filepath.Join(seedDir, ".seed_cache.json")
	if err := seedKnowledgeBase(ctx, manifestFile, cacheFile, cfg.Ingestion.UploadDir, contentRepo, ingestion, vectorStore, appLogger); err != nil {
		appLogger.Fatal("Failed to seed knowledge base", zap.Error(err))
	}

	appLogger.Info("Knowledge base seeding completed successfully!")
}

// ManifestEntry describes one source to ingest.
type ManifestEntry struct {
	Title    string `json:"title"`
	Source   string `json:"source"`
	Type     string `json:"type"`
	Language string `json:"language"`
	Category string `json:"category"`
}

// ProcessedSource represents an ingested source in cache
type ProcessedSource struct {
	Source      string    `json:"source"`
	Hash        string    `json:"hash"`
	ContentID   string    `json:"content_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// CacheData stores information about ingested sources
type CacheData struct {
	ProcessedSources map[string]ProcessedSource `json:"processed_sources"` // key: source
}

func loadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return entries, nil
}

// loadCache loads the cache of ingested sources
func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{
		ProcessedSources: make(map[string]ProcessedSource),
	}

	if _, err := os.Stat(cacheFile); os.IsNotExist(err) {
		return cache, nil
	}

	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return cache, nil
	}

	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cache.ProcessedSources == nil {
		cache.ProcessedSources = make(map[string]ProcessedSource)
	}

	return cache, nil
}

// saveCache saves the cache of ingested sources
func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// sourceHash fingerprints a local file by content and a video by its URL.
func sourceHash(entry ManifestEntry, uploadDir string) (string, error) {
	if models.ContentType(entry.Type) != models.ContentTypePDF {
		return fmt.Sprintf("%x", md5.Sum([]byte(entry.Source))), nil
	}

	path := entry.Source
	if !filepath.IsAbs(path) {
		path = filepath.Join(uploadDir, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

type contentCreator interface {
	Create(ctx context.Context, c *models.Content) error
}

type contentSubmitter interface {
	Submit(ctx context.Context, id uuid.UUID) bool
}

type vectorPurger interface {
	DeleteContentVectors(ctx context.Context, contentID, sourceURL string) bool
}

// seedKnowledgeBase ingests every new or changed manifest entry. A changed
// source has the vectors of its previous version removed first.
func seedKnowledgeBase(
	ctx context.Context,
	manifestFile string,
	cacheFile string,
	uploadDir string,
	repo contentCreator,
	ingestion contentSubmitter,
	vectors vectorPurger,
	logger *zap.Logger,
) error {
	entries, err := loadManifest(manifestFile)
	if err != nil {
		return err
	}

	cache, err := loadCache(cacheFile)
	if err != nil {
		logger.Warn("Failed to load cache, will process all sources", zap.Error(err))
		cache = &CacheData{ProcessedSources: make(map[string]ProcessedSource)}
	}

	for _, entry := range entries {
		contentType := models.ContentType(entry.Type)
		if contentType != models.ContentTypePDF && contentType != models.ContentTypeYouTube {
			logger.Warn("Unsupported source type, skipping", zap.String("source", entry.Source), zap.String("type", entry.Type))
			continue
		}

		hash, err := sourceHash(entry, uploadDir)
		if err != nil {
			logger.Warn("Source not readable, skipping", zap.String("source", entry.Source), zap.Error(err))
			continue
		}

		cached, exists := cache.ProcessedSources[entry.Source]
		if exists && cached.Hash == hash {
			logger.Info("Source already ingested, skipping",
				zap.String("source", entry.Source),
				zap.Time("processed_at", cached.ProcessedAt),
			)
			continue
		}
		if exists && cached.ContentID != "" {
			if !vectors.DeleteContentVectors(ctx, cached.ContentID, entry.Source) {
				logger.Error("Failed to remove vectors of previous version, skipping",
					zap.String("source", entry.Source),
					zap.String("content_id", cached.ContentID),
				)
				continue
			}
			logger.Info("Source changed, removed previous vectors",
				zap.String("source", entry.Source),
				zap.String("content_id", cached.ContentID),
			)
		}

		now := time.Now()
		content := &models.Content{
			ID:         uuid.New(),
			Title:      entry.Title,
			SourceURL:  entry.Source,
			SourceType: contentType,
			Language:   models.ParseLanguage(entry.Language),
			Category:   entry.Category,
			Status:     models.ContentStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repo.Create(ctx, content); err != nil {
			logger.Error("Failed to create content", zap.String("source", entry.Source), zap.Error(err))
			continue
		}

		if !ingestion.Submit(ctx, content.ID) {
			logger.Error("Failed to ingest source", zap.String("source", entry.Source), zap.String("content_id", content.ID.String()))
			continue
		}

		cache.ProcessedSources[entry.Source] = ProcessedSource{
			Source:      entry.Source,
			Hash:        hash,
			ContentID:   content.ID.String(),
			ProcessedAt: now,
		}
	}

	if err := saveCache(cacheFile, cache); err != nil {
		logger.Warn("Failed to save cache", zap.Error(err))
	} else {
		logger.Info("Cache saved", zap.Int("processed_sources", len(cache.ProcessedSources)))
	}

	return nil
}
