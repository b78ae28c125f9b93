package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/plusserver-sms/internal/domain"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}
