package web

import (
	"github.com/dukex/provtrack/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func respond(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func failure(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Envelope{
		Success:   false,
		Message:   message,
		ErrorCode: code,
	})
}

func badRequest(c fiber.Ctx, detail string) error {
	return failure(c, fiber.StatusBadRequest, "bad_request", detail)
}

func unauthorized(c fiber.Ctx, detail string) error {
	return failure(c, fiber.StatusUnauthorized, "unauthorized", detail)
}

// handleServiceError maps service outcomes to a status and an error envelope.
func handleServiceError(c fiber.Ctx, err error) error {
	code := services.ErrorCode(err)

	switch {
	case services.IsNotFound(err):
		return failure(c, fiber.StatusNotFound, code, err.Error())
	case services.IsConflict(err):
		return failure(c, fiber.StatusConflict, code, err.Error())
	case services.IsValidation(err):
		return failure(c, fiber.StatusUnprocessableEntity, code, err.Error())
	case services.IsRemote(err):
		return failure(c, fiber.StatusServiceUnavailable, code, err.Error())
	case services.IsStore(err):
		// Store details stay in the logs.
		return failure(c, fiber.StatusInternalServerError, code, "storage failure")
	default:
		return failure(c, fiber.StatusInternalServerError, code, "internal error")
	}
}
