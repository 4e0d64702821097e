package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"spikeline/internal/app"
	"spikeline/internal/ports/gormstore"
	"spikeline/internal/queue"
)

// statusFor maps engine errors onto HTTP statuses. Rule violations are 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrUnknownMatch), errors.Is(err, queue.ErrNotIn),
		errors.Is(err, queue.ErrNotFound), errors.Is(err, errNoRecords),
		errors.Is(err, gormstore.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, app.ErrMatchFull), errors.Is(err, app.ErrAlreadyInMatch),
		errors.Is(err, app.ErrMatchNotWaiting), errors.Is(err, queue.ErrFull),
		errors.Is(err, queue.ErrAlreadyIn):
		return fiber.StatusConflict
	case errors.Is(err, app.ErrUnknownMode), errors.Is(err, app.ErrInvalidSide),
		errors.Is(err, app.ErrInvalidMode), errors.Is(err, app.ErrInvalidDamage),
		errors.Is(err, app.ErrUnknownItem), errors.Is(err, errBadRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, app.ErrNotInMatch):
		return fiber.StatusForbidden
	case errors.Is(err, app.ErrVoiceNotConfigured):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusUnprocessableEntity
	}
}

var (
	errBadRequest = errors.New("malformed request")
	errNoRecords  = errors.New("match history is not enabled")
)

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
