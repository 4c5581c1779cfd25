package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/campaign-mailer/internal/domain"
)

// UserIDHeader identifies the calling account. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

const userIDLocal = "userID"

// RequireUser rejects requests without a user id header.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get(UserIDHeader))
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing "+UserIDHeader+" header")
		}
		c.Locals(userIDLocal, userID)
		return c.Next()
	}
}

func currentUserID(c *fiber.Ctx) string {
	if value, ok := c.Locals(userIDLocal).(string); ok {
		return value
	}
	return ""
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
