package api

import (
	"ks-ai/internal/api/handlers"
	"ks-ai/pkg/auth"
	"ks-ai/pkg/config"
	"ks-ai/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func SetupRouter(
	healthHandler *handlers.HealthHandler,
	chatHandler *handlers.ChatHandler,
	adminHandler *handlers.AdminHandler,
	verifier *auth.JWTVerifier,
	roles middleware.RoleLookup,
	serverCfg *config.ServerConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: serverCfg.CORSOrigins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/health", healthHandler.Health)

	// Protected routes
	protected := app.Group("/api/v1", middleware.AuthMiddleware(verifier, appLogger))
	protected.Get("/topics", chatHandler.Topics)
	protected.Post("/chat", chatHandler.Chat)

	admin := protected.Group("/admin", middleware.AdminOnly(roles, appLogger))
	admin.Post("/content/reprocess", adminHandler.ReprocessFailed)
	admin.Post("/content/:id/process", adminHandler.ProcessContent)
	admin.Delete("/content/:id/vectors", adminHandler.DeleteVectors)
	admin.Get("/ingestion/status", adminHandler.IngestionStatus)
	admin.Get("/collections", adminHandler.Collections)

	return app
}
