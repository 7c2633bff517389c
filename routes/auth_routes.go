package routes

import (
	"github.com/anjiri1684/attendance_chat/handlers"
	"github.com/anjiri1684/attendance_chat/middleware"
	"github.com/anjiri1684/attendance_chat/services"
	"github.com/gofiber/fiber/v2"
)

func AuthRoutes(app *fiber.App, h *handlers.AuthHandler, identity *services.IdentityService, secret string) {
	auth := app.Group("/api/auth")

	auth.Post("/login", h.Login)
	auth.Get("/me", middleware.Protected(secret), middleware.CurrentPrincipal(identity), h.Me)
}
