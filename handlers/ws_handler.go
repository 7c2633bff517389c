package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/middleware"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/anjiri1684/attendance_chat/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ServeWs runs one push-channel session. The credential was already checked
// by middleware.WebSocketAuth before the upgrade. Inbound frames are handled
// one at a time, so a sender's messages are persisted and fanned out in the
// order they were written to the socket.
func (h *ChatHandler) ServeWs(c *websocketcontrib.Conn) {
	principal, ok := c.Locals(middleware.PrincipalKey).(*models.Principal)
	if !ok || principal == nil {
		_ = c.Close()
		return
	}

	client := websocket.NewClient(principal.ID, h.sessionBuffer)
	h.hub.Register(client)

	writerDone := make(chan struct{})
	go h.writePump(c, client, writerDone)
	defer func() {
		h.hub.Unregister(client.ID)
		<-writerDone
		_ = c.Close()
	}()

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocketcontrib.IsUnexpectedCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				h.log.Warn("websocket read error", "user_id", principal.ID, "session_id", client.ID, "error", err)
			}
			return
		}
		h.dispatch(*principal, client, raw)
	}
}

// writePump is the only writer on the connection.
func (h *ChatHandler) writePump(c *websocketcontrib.Conn, client *websocket.Client, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame, ok := <-client.Outbound():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.WriteMessage(websocketcontrib.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(websocketcontrib.TextMessage, frame); err != nil {
				h.log.Warn("websocket write failed", "session_id", client.ID, "error", err)
				// unblock the reader so the session is torn down
				_ = c.Close()
				h.drain(client)
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocketcontrib.PingMessage, nil); err != nil {
				_ = c.Close()
				h.drain(client)
				return
			}
		}
	}
}

// drain discards queued frames until the hub closes the queue.
func (h *ChatHandler) drain(client *websocket.Client) {
	for range client.Outbound() {
	}
}

func (h *ChatHandler) dispatch(principal models.Principal, client *websocket.Client, raw []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.reply(client, protocol.EventError, 0, protocol.ErrorNotice{Message: "invalid frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.opTimeout)
	defer cancel()

	switch frame.Event {
	case protocol.EventSend:
		h.ack(client, frame.Ack, h.handleSend(ctx, principal, frame.Data))
	case protocol.EventRead:
		h.ack(client, frame.Ack, h.handleRead(ctx, principal, frame.Data))
	default:
		h.reply(client, protocol.EventError, frame.Ack, protocol.ErrorNotice{Message: "unsupported event"})
	}
}

func (h *ChatHandler) handleSend(ctx context.Context, principal models.Principal, data json.RawMessage) protocol.SendAck {
	var req protocol.SendRequest
	if err := decodePayload(data, &req); err != nil {
		return protocol.SendAck{OK: false, Message: "Invalid payload"}
	}

	msg, err := h.chat.Send(ctx, principal, req.ToID, req.Text)
	if err != nil {
		h.logFailure("chat:send rejected", principal, err)
		return protocol.SendAck{OK: false, Message: apperrors.Message(err)}
	}
	return protocol.SendAck{OK: true, MessageID: msg.ID}
}

func (h *ChatHandler) handleRead(ctx context.Context, principal models.Principal, data json.RawMessage) protocol.ReadAck {
	var req protocol.ReadRequest
	if err := decodePayload(data, &req); err != nil {
		return protocol.ReadAck{OK: false, Message: "Invalid payload"}
	}

	ids, err := h.chat.MarkRead(ctx, principal, req.OtherID)
	if err != nil {
		h.logFailure("chat:read rejected", principal, err)
		return protocol.ReadAck{OK: false, Message: apperrors.Message(err)}
	}
	return protocol.ReadAck{OK: true, Modified: int64(len(ids)), MessageIDs: ids}
}

func (h *ChatHandler) logFailure(msg string, principal models.Principal, err error) {
	if errors.Is(err, apperrors.ErrUnavailable) {
		h.log.Error(msg, "user_id", principal.ID, "error", err)
		return
	}
	h.log.Info(msg, "user_id", principal.ID, "error", err)
}

func (h *ChatHandler) ack(client *websocket.Client, ack uint64, payload any) {
	if ack == 0 {
		return
	}
	h.reply(client, protocol.EventAck, ack, payload)
}

func (h *ChatHandler) reply(client *websocket.Client, event string, ack uint64, payload any) {
	frame, err := protocol.Encode(event, ack, payload)
	if err != nil {
		h.log.Error("encode reply", "event", event, "error", err)
		return
	}
	h.hub.Reply(client.ID, frame)
}

func decodePayload(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
