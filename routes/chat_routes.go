package routes

import (
	"github.com/anjiri1684/attendance_chat/handlers"
	"github.com/anjiri1684/attendance_chat/middleware"
	"github.com/anjiri1684/attendance_chat/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func ChatRoutes(app *fiber.App, h *handlers.ChatHandler, identity *services.IdentityService, secret string) {
	chat := app.Group("/api/chat", middleware.Protected(secret), middleware.CurrentPrincipal(identity))
	chat.Get("/users", h.GetUsers)
	chat.Get("/messages/:otherId", h.GetMessages)
	chat.Get("/unread-count", h.GetUnreadCount)

	app.Use("/ws/chat", middleware.WebSocketAuth(identity))
	app.Get("/ws/chat", websocket.New(h.ServeWs))
}
