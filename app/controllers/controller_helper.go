package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
)

// respondSuccess writes the {success, message, data} envelope
func respondSuccess(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// respondError writes the {success: false, message, error} envelope
func respondError(c *fiber.Ctx, status int, message string, err error) error {
	body := fiber.Map{
		"success": false,
		"message": message,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

// statusForError maps pipeline errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, syncerr.ErrInvalidRequest), errors.Is(err, syncerr.ErrChannelForbidden):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, syncerr.ErrConnectivity):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
