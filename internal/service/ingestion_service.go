package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ks-ai/internal/models"
	"ks-ai/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxStatusMessage = 500

// ContentStore is the persistence the ingestion pipeline needs.
type ContentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ContentStatus, message string) (bool, error)
	ListByStatus(ctx context.Context, status models.ContentStatus, limit int) ([]*models.Content, error)
	CountByStatus(ctx context.Context) (map[models.ContentStatus]int, error)
}

type documentEmbedder interface {
	ProcessDocument(ctx context.Context, text string, metadata models.Payload, chunkSize int) []models.EmbeddedChunk
}

type vectorWriter interface {
	CreateCollection(ctx context.Context, name string, dimension int) bool
	Store(ctx context.Context, collection string, embeddings [][]float32, metadatas []models.Payload, texts []string) error
}

// IngestionService turns pending content into stored vectors. Each item is
// claimed with a status compare-and-swap, so an item is processed at most
// once even when several callers race on it.
type IngestionService struct {
	store     ContentStore
	extractor TextExtractor
	embedder  documentEmbedder
	vectors   vectorWriter
	dimension int
	cfg       config.IngestionConfig
	logger    *zap.Logger

	queue      chan uuid.UUID
	processing atomic.Bool
	startOnce  sync.Once
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewIngestionService(
	store ContentStore,
	extractor TextExtractor,
	embedder documentEmbedder,
	vectors vectorWriter,
	dimension int,
	cfg config.IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &IngestionService{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		dimension: dimension,
		cfg:       cfg,
		logger:    logger,
		queue:     make(chan uuid.UUID, queueSize),
	}
}

// Submit processes an item immediately on the caller's goroutine.
func (s *IngestionService) Submit(ctx context.Context, id uuid.UUID) bool {
	return s.ProcessContent(ctx, id)
}

// ProcessContent runs the whole pipeline for one item and reports success.
// Failures are recorded on the item, never returned.
func (s *IngestionService) ProcessContent(ctx context.Context, id uuid.UUID) bool {
	log := s.logger.With(zap.String("content_id", id.String()))

	claimed, err := s.store.TransitionStatus(ctx, id, models.ContentStatusPending, models.ContentStatusProcessing, "")
	if err != nil {
		log.Error("Failed to claim content", zap.Error(err))
		return false
	}
	if !claimed {
		log.Info("Content is not pending, skipping")
		return false
	}

	chunks, collection, err := s.run(ctx, id)
	if err != nil {
		log.Error("Content processing failed", zap.Error(err))
		s.markFailed(ctx, id, err)
		return false
	}

	ok, err := s.store.TransitionStatus(context.WithoutCancel(ctx), id, models.ContentStatusProcessing, models.ContentStatusCompleted, "")
	if err != nil || !ok {
		log.Error("Failed to mark content completed", zap.Bool("updated", ok), zap.Error(err))
		return false
	}

	log.Info("Successfully processed content",
		zap.String("collection", collection),
		zap.Int("chunks", chunks),
	)
	return true
}

func (s *IngestionService) run(ctx context.Context, id uuid.UUID) (int, string, error) {
	content, err := s.store.GetByID(ctx, id)
	if err != nil {
		return 0, "", fmt.Errorf("failed to load content: %w", err)
	}

	s.logger.Info("Processing content",
		zap.String("content_id", id.String()),
		zap.String("title", content.Title),
		zap.String("source_type", string(content.SourceType)),
	)

	text, extra, err := s.extractor.Extract(ctx, content.SourceURL, content.SourceType)
	if err != nil {
		return 0, "", err
	}
	if text == "" {
		return 0, "", models.ErrEmptyContent
	}

	chunks := s.embedder.ProcessDocument(ctx, text, chunkMetadata(content, extra), s.cfg.ChunkSize)
	if len(chunks) == 0 {
		return 0, "", errors.New("no chunks generated from content")
	}

	collection := CollectionForTopic(content.Category)
	if !s.vectors.CreateCollection(ctx, collection, s.dimension) {
		return 0, "", fmt.Errorf("%w: collection %s unavailable", models.ErrVectorStore, collection)
	}

	embeddings := make([][]float32, len(chunks))
	metadatas := make([]models.Payload, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		embeddings[i] = c.Embedding
		metadatas[i] = c.Metadata
		texts[i] = c.Chunk.Text
	}

	if err := s.vectors.Store(ctx, collection, embeddings, metadatas, texts); err != nil {
		return 0, "", err
	}

	return len(chunks), collection, nil
}

// chunkMetadata merges extraction extras with the item's own fields. The
// item's fields win on conflict.
func chunkMetadata(c *models.Content, extra models.Payload) models.Payload {
	meta := make(models.Payload, len(extra)+7)
	for k, v := range extra {
		meta[k] = v
	}
	meta["content_id"] = c.ID.String()
	meta["title"] = c.Title
	meta["category"] = c.Category
	meta["language"] = string(c.Language)
	meta["source_type"] = string(c.SourceType)
	meta["source_url"] = c.SourceURL
	meta["created_at"] = c.CreatedAt.UTC().Format(time.RFC3339)
	return meta
}

func (s *IngestionService) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	msg := truncateRunes(cleanText(cause.Error()), maxStatusMessage)

	ok, err := s.store.TransitionStatus(context.WithoutCancel(ctx), id, models.ContentStatusProcessing, models.ContentStatusFailed, msg)
	if err != nil || !ok {
		s.logger.Error("Failed to update content status",
			zap.String("content_id", id.String()),
			zap.Bool("updated", ok),
			zap.Error(err),
		)
	}
}

// Start launches the queue worker. Calling it again has no effect.
func (s *IngestionService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go s.worker(ctx)
		s.logger.Info("Ingestion worker started", zap.Int("queue_capacity", cap(s.queue)))
	})
}

// Stop cancels the worker and waits for it to return. Items still queued stay
// pending and can be re-queued later.
func (s *IngestionService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue schedules an item for the background worker.
func (s *IngestionService) Enqueue(id uuid.UUID) error {
	select {
	case s.queue <- id:
		s.logger.Debug("Content queued", zap.String("content_id", id.String()), zap.Int("queue_size", len(s.queue)))
		return nil
	default:
		return models.ErrQueueFull
	}
}

func (s *IngestionService) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Ingestion worker stopped")
			return
		case id := <-s.queue:
			s.processing.Store(true)
			s.processQueued(ctx, id)
			s.processing.Store(false)

			if s.cfg.ItemPause > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(s.cfg.ItemPause):
				}
			}
		}
	}
}

func (s *IngestionService) processQueued(ctx context.Context, id uuid.UUID) {
	if s.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
		defer cancel()
	}
	s.ProcessContent(ctx, id)
}

// ReprocessFailed moves up to limit failed items back to pending and queues
// them. It returns how many were queued.
func (s *IngestionService) ReprocessFailed(ctx context.Context, limit int) int {
	failed, err := s.store.ListByStatus(ctx, models.ContentStatusFailed, limit)
	if err != nil {
		s.logger.Error("Failed to list failed content", zap.Error(err))
		return 0
	}

	queued := 0
	for _, c := range failed {
		ok, err := s.store.TransitionStatus(ctx, c.ID, models.ContentStatusFailed, models.ContentStatusPending, "")
		if err != nil || !ok {
			continue
		}
		if err := s.Enqueue(c.ID); err != nil {
			s.logger.Warn("Queue full, remaining items stay pending", zap.Int("queued", queued))
			break
		}
		queued++
	}

	s.logger.Info("Queued failed items for reprocessing", zap.Int("count", queued))
	return queued
}

func (s *IngestionService) Status(ctx context.Context) models.ProcessingStatus {
	status := models.ProcessingStatus{
		QueueSize:    len(s.queue),
		IsProcessing: s.processing.Load(),
	}

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to get processing status", zap.Error(err))
		return status
	}

	status.Pending = counts[models.ContentStatusPending]
	status.Processing = counts[models.ContentStatusProcessing]
	status.Completed = counts[models.ContentStatusCompleted]
	status.Failed = counts[models.ContentStatusFailed]
	for _, n := range counts {
		status.Total += n
	}
	return status
}
