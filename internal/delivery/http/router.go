package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/service"
)

// ErrorHandler renders fiber errors as the standard JSON envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

// SetupRoutes configures all HTTP and websocket routes.
func SetupRoutes(app *fiber.App, simSvc *service.SimulationService) {
	handler := NewHandler(simSvc)

	// Health check
	app.Get("/health", handler.HealthCheck)

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/cities", handler.GetCities)

		sims := api.Group("/simulations")
		sims.Post("/", handler.StartSimulation)
		sims.Get("/:id/snapshot", handler.GetSnapshot)
		sims.Post("/:id/advance", handler.AdvanceSimulation)
		sims.Patch("/:id/clock", handler.SetClock)
		sims.Delete("/:id", handler.StopSimulation)
		sims.Get("/:id/history", handler.GetHistory)

		// Websocket upgrade gate, then the stream itself.
		sims.Use("/:id/stream", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		sims.Get("/:id/stream", websocket.New(handler.StreamSnapshots))
	}
}
