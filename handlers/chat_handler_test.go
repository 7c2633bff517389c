package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anjiri1684/attendance_chat/database"
	"github.com/anjiri1684/attendance_chat/handlers"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/server"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "s3cret-pass"

func newServer(t *testing.T) *server.Server {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return server.New(db, slog.Default(), server.Options{
		JWTSecret:     "handler-secret",
		TokenTTL:      time.Hour,
		SessionBuffer: 4,
		OpTimeout:     time.Second,
	})
}

func seed(t *testing.T, srv *server.Server, email, role string) (models.Admin, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	admin := models.Admin{Email: email, PasswordHash: string(hash), Role: role}
	require.NoError(t, srv.Admins.Create(context.Background(), &admin))
	token, err := srv.Identity.IssueToken(admin)
	require.NoError(t, err)
	return admin, token
}

func get(t *testing.T, app *fiber.App, path, token string) (int, []byte) {
	t.Helper()
	r := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		r.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(r, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestChatRoutes_RequireToken(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)

	status, _ := get(t, srv.App, "/api/chat/users", "")
	req.Equal(fiber.StatusBadRequest, status)

	status, _ = get(t, srv.App, "/api/chat/users", "garbage")
	req.Equal(fiber.StatusUnauthorized, status)
}

func TestChatRoutes_DeletedAdminIsUnauthorized(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)
	ghost := models.Admin{ID: uuid.New(), Email: "ghost@console.test", Role: "admin"}
	token, err := srv.Identity.IssueToken(ghost)
	req.NoError(err)

	status, _ := get(t, srv.App, "/api/chat/unread-count", token)
	req.Equal(fiber.StatusUnauthorized, status)
}

func TestChatRoutes_Users(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)
	_, token := seed(t, srv, "admin@console.test", "admin")
	lead, _ := seed(t, srv, "lead@console.test", "admin_tl")
	seed(t, srv, "staff@console.test", "employee")

	status, body := get(t, srv.App, "/api/chat/users", token)
	req.Equal(fiber.StatusOK, status)

	var contacts []handlers.ContactResponse
	req.NoError(json.Unmarshal(body, &contacts))
	req.Len(contacts, 1)
	req.Equal(lead.ID, contacts[0].ID)
	req.False(contacts[0].Online)
}

func TestChatRoutes_MessagesErrors(t *testing.T) {
	srv := newServer(t)
	me, token := seed(t, srv, "admin@console.test", "admin")
	staff, _ := seed(t, srv, "staff@console.test", "employee")

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{"malformed id", "/api/chat/messages/not-a-uuid", fiber.StatusBadRequest},
		{"self", "/api/chat/messages/" + me.ID.String(), fiber.StatusBadRequest},
		{"unknown", "/api/chat/messages/" + uuid.NewString(), fiber.StatusNotFound},
		{"policy", "/api/chat/messages/" + staff.ID.String(), fiber.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := get(t, srv.App, tc.path, token)
			require.Equal(t, tc.status, status, string(body))
			require.Contains(t, string(body), `"error"`)
		})
	}
}

func TestChatRoutes_MessagesAndUnread(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)
	ctx := context.Background()
	admin, adminToken := seed(t, srv, "admin@console.test", "admin")
	lead, leadToken := seed(t, srv, "lead@console.test", "admin_tl")

	_, err := srv.Messages.Append(ctx, admin.ID, lead.ID, "first")
	req.NoError(err)

	status, body := get(t, srv.App, "/api/chat/messages/"+admin.ID.String(), leadToken)
	req.Equal(fiber.StatusOK, status)
	var msgs []models.ChatMessage
	req.NoError(json.Unmarshal(body, &msgs))
	req.Len(msgs, 1)
	req.Equal("first", msgs[0].Text)
	req.Equal(models.StatusSent, msgs[0].Status)

	status, body = get(t, srv.App, "/api/chat/unread-count", leadToken)
	req.Equal(fiber.StatusOK, status)
	var unread struct {
		Unread        int64               `json:"unread"`
		ByCounterpart map[uuid.UUID]int64 `json:"byCounterpart"`
	}
	req.NoError(json.Unmarshal(body, &unread))
	req.EqualValues(1, unread.Unread)
	req.EqualValues(1, unread.ByCounterpart[admin.ID])

	// the sender has nothing unread, and an empty conversation is an empty list
	status, body = get(t, srv.App, "/api/chat/unread-count", adminToken)
	req.Equal(fiber.StatusOK, status)
	req.Contains(string(body), `"unread":0`)

	root, _ := seed(t, srv, "root@console.test", "super")
	status, body = get(t, srv.App, "/api/chat/messages/"+root.ID.String(), adminToken)
	req.Equal(fiber.StatusOK, status)
	req.JSONEq(`[]`, string(body))
}

func TestAuthRoutes_Login(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)
	admin, _ := seed(t, srv, "admin@console.test", "admin")

	login := func(body string) (int, []byte) {
		r := httptest.NewRequest(fiber.MethodPost, "/api/auth/login", strings.NewReader(body))
		r.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := srv.App.Test(r, -1)
		req.NoError(err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		req.NoError(err)
		return resp.StatusCode, raw
	}

	status, _ := login(`{"email":"not-an-email","password":"x"}`)
	req.Equal(fiber.StatusBadRequest, status)

	status, _ = login(`{"email":"admin@console.test","password":"wrong"}`)
	req.Equal(fiber.StatusUnauthorized, status)

	status, body := login(`{"email":"Admin@Console.test","password":"` + password + `"}`)
	req.Equal(fiber.StatusOK, status)
	var out handlers.LoginResponse
	req.NoError(json.Unmarshal(body, &out))
	req.Equal(admin.ID.String(), out.ID)
	req.Equal("admin", out.Role)

	status, body = get(t, srv.App, "/api/auth/me", out.Token)
	req.Equal(fiber.StatusOK, status)
	var me models.Principal
	req.NoError(json.Unmarshal(body, &me))
	req.Equal(admin.ID, me.ID)
}

func TestWebSocketRoute_RejectsPlainRequests(t *testing.T) {
	req := require.New(t)
	srv := newServer(t)

	status, _ := get(t, srv.App, "/ws/chat", "")
	req.Equal(fiber.StatusUpgradeRequired, status)

	status, _ = get(t, srv.App, "/health", "")
	req.Equal(fiber.StatusOK, status)
}
