package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anjiri1684/attendance_chat/models"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

type Contact struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	Online bool      `json:"online"`
}

type LoginResult struct {
	Token string    `json:"token"`
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

type UnreadSummary struct {
	Unread        int64               `json:"unread"`
	ByCounterpart map[uuid.UUID]int64 `json:"byCounterpart"`
}

// APIError is a non-2xx answer from the REST endpoints.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// API calls the request/response side of the chat service.
type API struct {
	base  string
	http  *http.Client
	token string
}

func NewAPI(baseURL string) *API {
	return &API{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *API) SetToken(token string) { a.token = token }

// WebSocketURL derives the push-channel endpoint from the REST base URL.
func (a *API) WebSocketURL() string {
	switch {
	case strings.HasPrefix(a.base, "https://"):
		return "wss://" + strings.TrimPrefix(a.base, "https://") + "/ws/chat"
	case strings.HasPrefix(a.base, "http://"):
		return "ws://" + strings.TrimPrefix(a.base, "http://") + "/ws/chat"
	}
	return a.base + "/ws/chat"
}

// Login exchanges credentials for a token and keeps it for later calls.
func (a *API) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	a.token = out.Token
	return &out, nil
}

func (a *API) Contacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	if err := a.do(ctx, http.MethodGet, "/api/chat/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// History fetches the conversation with other. last > 0 limits it to the
// most recent messages.
func (a *API) History(ctx context.Context, other uuid.UUID, last int) ([]models.ChatMessage, error) {
	path := "/api/chat/messages/" + url.PathEscape(other.String())
	if last > 0 {
		path += "?last=" + strconv.Itoa(last)
	}
	var out []models.ChatMessage
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) UnreadCount(ctx context.Context) (*UnreadSummary, error) {
	var out UnreadSummary
	if err := a.do(ctx, http.MethodGet, "/api/chat/unread-count", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
