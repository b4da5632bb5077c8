package service

import (
	"context"
	"fmt"
	"time"

	"ks-ai/internal/models"
	"ks-ai/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VectorStoreService is the gateway to the vector backend. It never panics
// on backend failure; errors degrade to false or empty results and are logged.
type VectorStoreService struct {
	backend   repository.VectorBackend
	dimension int
	timeout   time.Duration
	logger    *zap.Logger
}

func NewVectorStoreService(backend repository.VectorBackend, dimension int, timeout time.Duration, logger *zap.Logger) *VectorStoreService {
	return &VectorStoreService{
		backend:   backend,
		dimension: dimension,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *VectorStoreService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *VectorStoreService) Dimension() int {
	return s.dimension
}

func (s *VectorStoreService) IsHealthy(ctx context.Context) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		s.logger.Error("Vector store health check failed", zap.Error(err))
		return false
	}
	return true
}

// CreateCollection is idempotent. An existing collection with another
// dimension is reported as incompatible.
func (s *VectorStoreService) CreateCollection(ctx context.Context, name string, dimension int) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	existing, ok, err := s.backend.CollectionDimension(ctx, name)
	if err != nil {
		s.logger.Error("Failed to inspect collection", zap.String("collection", name), zap.Error(err))
		return false
	}
	if ok {
		if existing != dimension {
			s.logger.Error("Collection exists with incompatible dimension",
				zap.String("collection", name),
				zap.Int("existing", existing),
				zap.Int("requested", dimension),
			)
			return false
		}
		s.logger.Debug("Collection already exists", zap.String("collection", name))
		return true
	}

	if err := s.backend.CreateCollection(ctx, name, dimension); err != nil {
		s.logger.Error("Failed to create collection", zap.String("collection", name), zap.Error(err))
		return false
	}

	s.logger.Info("Created collection", zap.String("collection", name), zap.Int("dimension", dimension))
	return true
}

// Store writes one point per embedding with a fresh id. The payload is the
// metadata plus the chunk text. Nothing is written when the inputs disagree
// in length.
func (s *VectorStoreService) Store(ctx context.Context, collection string, embeddings [][]float32, metadatas []models.Payload, texts []string) error {
	if len(embeddings) != len(metadatas) || len(embeddings) != len(texts) {
		return fmt.Errorf("%w: embeddings, metadata and texts must have the same length (%d, %d, %d)",
			models.ErrValidation, len(embeddings), len(metadatas), len(texts))
	}
	if len(embeddings) == 0 {
		return nil
	}

	records := make([]repository.VectorRecord, len(embeddings))
	for i := range embeddings {
		payload := make(models.Payload, len(metadatas[i])+1)
		for k, v := range metadatas[i] {
			payload[k] = v
		}
		payload["text"] = texts[i]

		records[i] = repository.VectorRecord{
			ID:      uuid.New().String(),
			Vector:  embeddings[i],
			Payload: payload,
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Upsert(ctx, collection, records); err != nil {
		s.logger.Error("Failed to store embeddings", zap.String("collection", collection), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrVectorStore, err)
	}

	s.logger.Info("Stored embeddings", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

// Search returns up to limit results with score >= threshold, best first.
// Filters are exact matches on payload fields.
func (s *VectorStoreService) Search(ctx context.Context, collection string, vector []float32, limit int, threshold float64, filters map[string]any) []models.SearchResult {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	results, err := s.backend.Search(ctx, collection, vector, limit, threshold, filters)
	if err != nil {
		s.logger.Error("Search failed", zap.String("collection", collection), zap.Error(err))
		return []models.SearchResult{}
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	s.logger.Debug("Search completed", zap.String("collection", collection), zap.Int("results", len(results)))
	return results
}

func (s *VectorStoreService) ListCollections(ctx context.Context) []string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.backend.ListCollections(ctx)
	if err != nil {
		s.logger.Error("Failed to list collections", zap.Error(err))
		return []string{}
	}
	return names
}

func (s *VectorStoreService) CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	dimension, ok, err := s.backend.CollectionDimension(ctx, name)
	if err != nil || !ok {
		if err != nil {
			s.logger.Error("Failed to get collection info", zap.String("collection", name), zap.Error(err))
		}
		return nil, false
	}

	count, err := s.backend.Count(ctx, name)
	if err != nil {
		s.logger.Error("Failed to count vectors", zap.String("collection", name), zap.Error(err))
		return nil, false
	}

	return &models.CollectionInfo{Name: name, Dimension: dimension, VectorCount: count}, true
}

// DeleteByContentID removes the content's vectors from every collection.
// Finding nothing to delete still counts as success; it fails only when the
// backend rejects every collection.
func (s *VectorStoreService) DeleteByContentID(ctx context.Context, contentID string) bool {
	_, ok := s.deleteByContentID(ctx, contentID)
	return ok
}

func (s *VectorStoreService) deleteByContentID(ctx context.Context, contentID string) (int64, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	collections, err := s.backend.ListCollections(ctx)
	if err != nil {
		s.logger.Error("Failed to list collections for delete", zap.String("content_id", contentID), zap.Error(err))
		return 0, false
	}

	var total int64
	var failed int
	for _, name := range collections {
		n, err := s.backend.DeleteByField(ctx, name, "content_id", contentID)
		if err != nil {
			failed++
			s.logger.Warn("Failed to delete from collection",
				zap.String("collection", name),
				zap.String("content_id", contentID),
				zap.Error(err),
			)
			continue
		}
		total += n
	}

	if len(collections) > 0 && failed == len(collections) {
		return 0, false
	}
	if total == 0 {
		s.logger.Warn("No vectors found for content", zap.String("content_id", contentID))
	} else {
		s.logger.Info("Deleted content vectors", zap.String("content_id", contentID), zap.Int64("deleted", total))
	}
	return total, true
}

// DeleteBySource removes vectors by source_url from one collection. It exists
// for points written before content_id was part of the payload.
func (s *VectorStoreService) DeleteBySource(ctx context.Context, collection, sourceURL string) bool {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.backend.DeleteByField(ctx, collection, "source_url", sourceURL)
	if err != nil {
		s.logger.Error("Failed to delete vectors by source",
			zap.String("collection", collection),
			zap.String("source_url", sourceURL),
			zap.Error(err),
		)
		return false
	}

	s.logger.Info("Deleted vectors by source",
		zap.String("collection", collection),
		zap.String("source_url", sourceURL),
		zap.Int64("deleted", n),
	)
	return true
}

// DeleteContentVectors is used when content is removed. It deletes by
// content id and, when that removes nothing, by source URL over the known
// collections. It reports false only when neither pass reached the backend.
func (s *VectorStoreService) DeleteContentVectors(ctx context.Context, contentID, sourceURL string) bool {
	deleted, ok := s.deleteByContentID(ctx, contentID)
	if ok && deleted > 0 {
		return true
	}
	if sourceURL == "" {
		return ok
	}

	for _, name := range CollectionNames() {
		if s.DeleteBySource(ctx, name, sourceURL) {
			ok = true
		}
	}
	if !ok {
		s.logger.Error("Failed to delete content vectors",
			zap.String("content_id", contentID),
			zap.String("source_url", sourceURL),
		)
	}
	return ok
}
