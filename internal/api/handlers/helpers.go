package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/socialqueue/socialqueue/internal/scheduler"
)

// parseTime accepts RFC 3339 instants.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, scheduler.ErrInvalidTime
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, scheduler.ErrInvalidTime
	}
	return t, nil
}

// schedulerError maps the scheduler's sentinel errors onto HTTP responses
// so callers always see a named error category, never a bare fault.
func schedulerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrPostNotFound), errors.Is(err, scheduler.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, scheduler.ErrAlreadyPublished),
		errors.Is(err, scheduler.ErrInvalidTransition),
		errors.Is(err, scheduler.ErrNotPublished):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, scheduler.ErrInvalidTime), errors.Is(err, scheduler.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
