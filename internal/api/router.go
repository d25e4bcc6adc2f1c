package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the API. Everything except opening a session and
// reading the dictionary requires a session token.
func RegisterRoutes(app *fiber.App, h *Handler, sessionMW fiber.Handler) {
	api := app.Group("/api")

	api.Post("/sessions", h.OpenSession)
	api.Get("/dictionary", h.Dictionary)

	api.Get("/schema", sessionMW, h.Schema)

	filters := api.Group("/filters", sessionMW)
	filters.Post("/resolve", h.Resolve)
	filters.Post("/confirm", h.Confirm)
	filters.Post("/compile", h.Compile)
	filters.Post("/execute", h.Execute)
	filters.Post("/preview", h.Preview)

	if h.events != nil {
		api.Get("/audit", sessionMW, h.AuditEvents)
	}
}

// NewApp builds a Fiber app with panic recovery, request logging, the shared
// error envelope and the API routes mounted.
func NewApp(h *Handler, sessionMW fiber.Handler, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(requestLogger(logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	RegisterRoutes(app, h, sessionMW)
	return app
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		logger.Info("request",
			zap.Int("status", c.Response().StatusCode()),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Duration("latency", time.Since(start)),
		)
		return nil
	}
}
