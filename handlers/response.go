package handlers

import (
	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/middleware"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(apperrors.Status(err)).JSON(fiber.Map{"error": apperrors.Message(err)})
}

func currentPrincipal(c *fiber.Ctx) (*models.Principal, error) {
	p, ok := c.Locals(middleware.PrincipalKey).(*models.Principal)
	if !ok || p == nil {
		return nil, fiber.ErrUnauthorized
	}
	return p, nil
}
