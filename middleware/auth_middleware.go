package middleware

import (
	"strings"

	"github.com/anjiri1684/attendance_chat/services"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
)

// PrincipalKey is the Locals key holding the *models.Principal of the caller.
const PrincipalKey = "principal"

func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   []byte(secret),
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// CurrentPrincipal runs after Protected and loads the caller from the
// directory, so a deleted admin or changed role takes effect immediately.
func CurrentPrincipal(identity *services.IdentityService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return unauthorized(c)
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return unauthorized(c)
		}
		principal, err := identity.FromClaims(c.UserContext(), claims)
		if err != nil {
			return unauthorized(c)
		}
		c.Locals(PrincipalKey, principal)
		return c.Next()
	}
}

// WebSocketAuth refuses the upgrade unless the handshake carries a valid
// credential, either as ?token= or as a bearer Authorization header.
func WebSocketAuth(identity *services.IdentityService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocketcontrib.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		principal, err := identity.Resolve(c.UserContext(), token)
		if err != nil {
			return unauthorized(c)
		}
		c.Locals(PrincipalKey, principal)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Unauthorized", "data": nil})
}
