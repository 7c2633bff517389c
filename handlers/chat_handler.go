package handlers

import (
	"log/slog"
	"time"

	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/anjiri1684/attendance_chat/services"
	"github.com/anjiri1684/attendance_chat/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

type ChatHandler struct {
	chat          *services.ChatService
	hub           *websocket.Hub
	log           *slog.Logger
	sessionBuffer int
	opTimeout     time.Duration
}

func NewChatHandler(chat *services.ChatService, hub *websocket.Hub, log *slog.Logger, sessionBuffer int, opTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		chat:          chat,
		hub:           hub,
		log:           log,
		sessionBuffer: sessionBuffer,
		opTimeout:     opTimeout,
	}
}

type ContactResponse struct {
	models.Principal
	Online bool `json:"online"`
}

func (h *ChatHandler) GetUsers(c *fiber.Ctx) error {
	me, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	contacts, err := h.chat.Contacts(c.UserContext(), *me)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(lo.Map(contacts, func(p models.Principal, _ int) ContactResponse {
		return ContactResponse{Principal: p, Online: h.hub.Online(p.ID)}
	}))
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	me, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	opts := repositories.HistoryOptions{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 0),
		Last:     c.QueryInt("last", 0),
	}
	msgs, err := h.chat.History(c.UserContext(), *me, c.Params("otherId"), opts)
	if err != nil {
		return respondError(c, err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return c.JSON(msgs)
}

func (h *ChatHandler) GetUnreadCount(c *fiber.Ctx) error {
	me, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	summary, err := h.chat.UnreadCount(c.UserContext(), *me)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}
