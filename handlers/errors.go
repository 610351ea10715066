package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/farmconnect/apperrors"
)

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case apperrors.KindAuthorization:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindStateConflict:
		return fiber.StatusConflict
	case apperrors.KindRateLimited:
		return fiber.StatusTooManyRequests
	case apperrors.KindTransientInfra:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every failed request as {"success": false, "message": ...}.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"success": false, "message": fe.Message})
		}
		status := StatusOf(err)
		msg := apperrors.MessageOf(err)
		switch {
		case status == fiber.StatusInternalServerError:
			log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
			msg = "Server error"
		case status == fiber.StatusServiceUnavailable:
			log.Warn("Request hit unavailable infrastructure", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"success": false, "message": msg})
	}
}
