// handlers/errors.go
package handlers

import (
	"errors"
	"log"
	"strconv"

	"evg-scoreboard/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps core errors onto HTTP statuses. Unknown errors are storage or
// programming failures and surface as 500.
func statusFor(err error) int {
	var (
		notFound    *services.NotFoundError
		badAmount   *services.InvalidAmountError
		invalid     *services.ValidationError
		noCredits   *services.InsufficientCreditsError
		noInventory *services.NoInventoryError
		badState    *services.InvalidStateTransitionError
		conflict    *services.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &badAmount), errors.As(err, &invalid):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &noCredits), errors.As(err, &noInventory):
		return fiber.StatusBadRequest
	case errors.As(err, &badState), errors.As(err, &conflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// paramID parses a positive numeric route param.
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
