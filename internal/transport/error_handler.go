package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorHandler renders handler errors as {"error": "..."}. Server errors are
// logged at error level and their message is not exposed.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		level := zapcore.WarnLevel
		message := err.Error()
		if code >= fiber.StatusInternalServerError {
			level = zapcore.ErrorLevel
			if fiberErr == nil {
				message = "internal server error"
			}
		}

		observability.WithContextLogger(logger, c.UserContext()).Log(level, "request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
