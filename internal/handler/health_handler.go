package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db     Pinger
	broker Pinger
}

// NewHealthHandler creates a new HealthHandler with the given database pool.
// broker may be nil when events are only logged.
func NewHealthHandler(db Pinger, broker Pinger) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

// Check pings the database and, if configured, the event broker.
// Returns 200 OK with {"status": "healthy"} when all are reachable.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.db.Ping(c.UserContext()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}
	if h.broker != nil {
		if err := h.broker.Ping(c.UserContext()); err != nil {
			log.Error().Err(err).Msg("health check failed: event broker unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "event broker connection failed",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
