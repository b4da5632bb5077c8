package handlers

import (
	"context"

	"ks-ai/internal/dto"

	"github.com/gofiber/fiber/v2"
)

type availability interface {
	IsAvailable() bool
}

type healthChecker interface {
	IsHealthy(ctx context.Context) bool
}

type HealthHandler struct {
	embedder  availability
	vectors   healthChecker
	generator availability
}

func NewHealthHandler(embedder availability, vectors healthChecker, generator availability) *HealthHandler {
	return &HealthHandler{
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	resp := dto.HealthResponse{
		Embedder:    h.embedder.IsAvailable(),
		VectorStore: h.vectors.IsHealthy(c.Context()),
		Generator:   h.generator.IsAvailable(),
	}

	if resp.Embedder && resp.VectorStore && resp.Generator {
		resp.Status = "healthy"
		return c.JSON(resp)
	}
	resp.Status = "degraded"
	return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
}
