package api

import (
	"errors"

	"github.com/beunreal/story-service/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func JSONSuccess(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(fiber.Map{"status": "ok", "data": payload})
}

func JSONError(c *fiber.Ctx, status int, msg string, fields []apperr.FieldError) error {
	body := fiber.Map{"status": "error", "message": msg}
	if len(fields) > 0 {
		body["errors"] = fields
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler renders every error returned by a handler or middleware in
// the error envelope. Internal causes are logged, never sent.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return JSONError(c, fe.Code, fe.Message, nil)
		}
		status := apperr.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("kind", apperr.KindOf(err).String()),
				zap.Error(err),
			)
		}
		return JSONError(c, status, apperr.PublicMessage(err), apperr.FieldsOf(err))
	}
}
