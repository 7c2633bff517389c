package server

import (
	"log/slog"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/handlers"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/anjiri1684/attendance_chat/routes"
	"github.com/anjiri1684/attendance_chat/services"
	"github.com/anjiri1684/attendance_chat/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type Options struct {
	JWTSecret          string
	TokenTTL           time.Duration
	ClientURL          string
	SessionBuffer      int
	OpTimeout          time.Duration
	RateLimitPerMinute int
	AccessLog          bool
}

// Server bundles the HTTP app with the pieces main and tests need to reach.
type Server struct {
	App      *fiber.App
	Hub      *websocket.Hub
	Identity *services.IdentityService
	Messages *repositories.MessageRepository
	Admins   *repositories.AdminRepository
}

func New(db *gorm.DB, log *slog.Logger, opts Options) *Server {
	admins := repositories.NewAdminRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	identity := services.NewIdentityService(admins, opts.JWTSecret, opts.TokenTTL)
	hub := websocket.NewHub(log)
	chat := services.NewChatService(messages, identity, hub, log)

	app := fiber.New(fiber.Config{
		AppName:       "Attendance Chat",
		CaseSensitive: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := apperrors.Status(err)
			message := apperrors.Message(err)
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("request failed", "error", err, "path", c.Path(), "method", c.Method())
			}
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": message,
			})
		},
	})

	allowOrigins := opts.ClientURL
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods: "GET, POST, OPTIONS",
		MaxAge:       86400,
	}))
	app.Use(recover.New())
	app.Use(helmet.New())
	if opts.RateLimitPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimitPerMinute,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				return c.Path() == "/health"
			},
		}))
	}
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			TimeFormat: "2006-01-02 15:04:05",
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Attendance Chat API",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	routes.AuthRoutes(app, handlers.NewAuthHandler(identity), identity, opts.JWTSecret)
	routes.ChatRoutes(app, handlers.NewChatHandler(chat, hub, log, opts.SessionBuffer, opts.OpTimeout), identity, opts.JWTSecret)

	return &Server{
		App:      app,
		Hub:      hub,
		Identity: identity,
		Messages: messages,
		Admins:   admins,
	}
}
