package handlers

import (
	"context"
	"errors"

	"ks-ai/internal/dto"
	"ks-ai/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultReprocessLimit = 100

type Ingestion interface {
	ProcessContent(ctx context.Context, id uuid.UUID) bool
	Enqueue(id uuid.UUID) error
	ReprocessFailed(ctx context.Context, limit int) int
	Status(ctx context.Context) models.ProcessingStatus
}

type ContentLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error)
}

type VectorAdmin interface {
	DeleteContentVectors(ctx context.Context, contentID, sourceURL string) bool
	ListCollections(ctx context.Context) []string
	CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, bool)
}

type AdminHandler struct {
	ingestion Ingestion
	content   ContentLookup
	vectors   VectorAdmin
	logger    *zap.Logger
}

func NewAdminHandler(ingestion Ingestion, content ContentLookup, vectors VectorAdmin, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ingestion: ingestion,
		content:   content,
		vectors:   vectors,
		logger:    logger,
	}
}

// ProcessContent runs ingestion for one item. With ?async=true the item is
// queued and 202 is returned.
func (h *AdminHandler) ProcessContent(c *fiber.Ctx) error {
	content, status, msg := h.lookup(c)
	if status != 0 {
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	if c.QueryBool("async", false) {
		if err := h.ingestion.Enqueue(content.ID); err != nil {
			if errors.Is(err, models.ErrQueueFull) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Ingestion queue is full",
				})
			}
			h.logger.Error("Failed to queue content", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to queue content",
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(dto.ProcessContentResponse{
			ContentID: content.ID.String(),
			Queued:    true,
			Success:   true,
		})
	}

	if !h.ingestion.ProcessContent(c.Context(), content.ID) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Content could not be processed",
		})
	}

	return c.JSON(dto.ProcessContentResponse{
		ContentID: content.ID.String(),
		Success:   true,
	})
}

func (h *AdminHandler) ReprocessFailed(c *fiber.Ctx) error {
	var req dto.ReprocessRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultReprocessLimit
	}

	queued := h.ingestion.ReprocessFailed(c.Context(), req.Limit)
	return c.JSON(dto.ReprocessResponse{Queued: queued})
}

func (h *AdminHandler) IngestionStatus(c *fiber.Ctx) error {
	return c.JSON(h.ingestion.Status(c.Context()))
}

func (h *AdminHandler) DeleteVectors(c *fiber.Ctx) error {
	content, status, msg := h.lookup(c)
	if status != 0 {
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}

	if !h.vectors.DeleteContentVectors(c.Context(), content.ID.String(), content.SourceURL) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete vectors",
		})
	}

	return c.JSON(dto.DeleteVectorsResponse{
		ContentID: content.ID.String(),
		Deleted:   true,
	})
}

func (h *AdminHandler) Collections(c *fiber.Ctx) error {
	names := h.vectors.ListCollections(c.Context())

	collections := make([]models.CollectionInfo, 0, len(names))
	for _, name := range names {
		if info, ok := h.vectors.CollectionInfo(c.Context(), name); ok {
			collections = append(collections, *info)
		}
	}

	return c.JSON(dto.CollectionsResponse{Collections: collections})
}

func (h *AdminHandler) lookup(c *fiber.Ctx) (*models.Content, int, string) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.StatusBadRequest, "Invalid content ID"
	}

	content, err := h.content.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrContentNotFound) {
			return nil, fiber.StatusNotFound, "Content not found"
		}
		h.logger.Error("Failed to load content", zap.String("content_id", id.String()), zap.Error(err))
		return nil, fiber.StatusInternalServerError, "Failed to load content"
	}
	return content, 0, ""
}
