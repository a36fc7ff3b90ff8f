package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/domain"
	"github.com/DavidAlexKelly/edinburgh-city-sim-stream/internal/service"
)

// Handler contains all HTTP handlers.
type Handler struct {
	simSvc *service.SimulationService
}

// NewHandler creates a new handler.
func NewHandler(simSvc *service.SimulationService) *Handler {
	return &Handler{simSvc: simSvc}
}

// statusFor maps domain errors onto HTTP status codes. A snapshot requested
// before the first tick finished is 425; one requested after Stop is 409.
func statusFor(err error) int {
	var loadErr *domain.DataLoadError
	switch {
	case errors.Is(err, domain.ErrUnknownCity), errors.Is(err, domain.ErrUnknownInstance):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrNotReady):
		return fiber.StatusTooEarly
	case errors.Is(err, domain.ErrNotRunning):
		return fiber.StatusConflict
	case errors.As(err, &loadErr):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

// HealthCheck returns service health status.
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	instances, err := h.simSvc.Health(c.Context())
	status := "ok"
	if err != nil {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":    status,
		"service":   "city-sim-stream",
		"version":   "1.0.0",
		"instances": instances,
	})
}

// GetCities lists the cities available for simulation.
func (h *Handler) GetCities(c *fiber.Ctx) error {
	cities := h.simSvc.Cities()
	out := make([]fiber.Map, 0, len(cities))
	for _, city := range cities {
		out = append(out, fiber.Map{"id": city.ID, "name": city.Name})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
		"count":   len(out),
	})
}

type startRequest struct {
	City           string   `json:"city"`
	SecondsPerHour *float64 `json:"seconds_per_hour"`
}

// StartSimulation creates an instance and returns its first snapshot.
func (h *Handler) StartSimulation(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.City == "" {
		return fiber.NewError(fiber.StatusBadRequest, "city is required")
	}
	if req.SecondsPerHour != nil && *req.SecondsPerHour < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "seconds_per_hour must be >= 0")
	}

	snap, err := h.simSvc.Start(req.City, req.SecondsPerHour)
	if err != nil {
		return respondError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    snap,
	})
}

// GetSnapshot returns the instance's current ready tick.
func (h *Handler) GetSnapshot(c *fiber.Ctx) error {
	snap, err := h.simSvc.Snapshot(c.Params("id"))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snap,
	})
}

// AdvanceSimulation returns the current tick and schedules the next one.
func (h *Handler) AdvanceSimulation(c *fiber.Ctx) error {
	snap, err := h.simSvc.Advance(c.Params("id"))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    snap,
	})
}

type clockRequest struct {
	SecondsPerHour *float64 `json:"seconds_per_hour"`
}

// SetClock changes the instance's time compression. Zero pauses autonomous
// ticking.
func (h *Handler) SetClock(c *fiber.Ctx) error {
	var req clockRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SecondsPerHour == nil {
		return fiber.NewError(fiber.StatusBadRequest, "seconds_per_hour is required")
	}
	if *req.SecondsPerHour < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "seconds_per_hour must be >= 0")
	}

	if err := h.simSvc.SetTimeCompression(c.Params("id"), *req.SecondsPerHour); err != nil {
		return respondError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// StopSimulation ends an instance.
func (h *Handler) StopSimulation(c *fiber.Ctx) error {
	if err := h.simSvc.Stop(c.Params("id")); err != nil {
		return respondError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetHistory returns recent recorded ticks for an instance, newest first.
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	rows, err := h.simSvc.History(c.Context(), c.Params("id"), limit)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
		"count":   len(rows),
	})
}
