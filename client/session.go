package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
)

var (
	ErrNotConnected     = errors.New("chat session is not connected")
	ErrAlreadyConnected = errors.New("chat session is already connected or dialing")
	ErrRejected         = errors.New("rejected by server")
)

// PushHandler receives the server's pushes. *Engine implements it.
type PushHandler interface {
	ReceiveNew(msg models.ChatMessage)
	ApplyDelivered(messageID uuid.UUID)
	ApplyRead(n protocol.ReadNotice)
}

// Session is the process-wide push-channel connection. Requests are
// correlated with their acknowledgements by sequence number; pushes are
// handed to the PushHandler from a single read goroutine in arrival order.
type Session struct {
	dialer *websocket.Dialer
	log    *slog.Logger

	seq atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	done    chan struct{}
	waiters map[uint64]chan protocol.Frame

	writeMu sync.Mutex
}

func NewSession(log *slog.Logger) *Session {
	return &Session{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Dial connects to endpoint (ws:// or wss://) with token and starts feeding
// pushes into handler. Dialing a session that is open or still dialing fails
// with ErrAlreadyConnected; call Close first.
func (s *Session) Dial(ctx context.Context, endpoint, token string, handler PushHandler) error {
	s.mu.Lock()
	if s.conn != nil || s.dialing {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.dialing = true
	s.mu.Unlock()

	conn, err := s.dial(ctx, endpoint, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialing = false
	if err != nil {
		return err
	}
	done := make(chan struct{})
	s.conn = conn
	s.done = done
	s.waiters = make(map[uint64]chan protocol.Frame)
	go s.readLoop(conn, done, handler)
	return nil
}

func (s *Session) dial(ctx context.Context, endpoint, token string) (*websocket.Conn, error) {

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse chat endpoint: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial chat: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial chat: %w", err)
	}
	return conn, nil
}

// Close tears the connection down. Requests still waiting for an
// acknowledgement fail with ErrNotConnected.
func (s *Session) Close() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

// Done is closed when the current connection ends.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

func (s *Session) Send(ctx context.Context, toID uuid.UUID, text string) (uuid.UUID, error) {
	var ack protocol.SendAck
	if err := s.call(ctx, protocol.EventSend, protocol.SendRequest{ToID: toID.String(), Text: text}, &ack); err != nil {
		return uuid.Nil, err
	}
	if !ack.OK {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrRejected, ack.Message)
	}
	return ack.MessageID, nil
}

// MarkRead asks the server to mark the conversation with otherID read and
// returns the ids of the messages it changed.
func (s *Session) MarkRead(ctx context.Context, otherID uuid.UUID) ([]uuid.UUID, error) {
	var ack protocol.ReadAck
	if err := s.call(ctx, protocol.EventRead, protocol.ReadRequest{OtherID: otherID.String()}, &ack); err != nil {
		return nil, err
	}
	if !ack.OK {
		return nil, fmt.Errorf("%w: %s", ErrRejected, ack.Message)
	}
	return ack.MessageIDs, nil
}

func (s *Session) call(ctx context.Context, event string, payload, out any) error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	id := s.seq.Add(1)
	reply := make(chan protocol.Frame, 1)
	s.waiters[id] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
	}()

	frame, err := protocol.Encode(event, id, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}

	select {
	case f := <-reply:
		if f.Event == protocol.EventError {
			var notice protocol.ErrorNotice
			_ = json.Unmarshal(f.Data, &notice)
			return fmt.Errorf("%w: %s", ErrRejected, notice.Message)
		}
		return json.Unmarshal(f.Data, out)
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}, handler PushHandler) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.waiters = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("chat session closed", "error", err)
			}
			return
		}

		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			s.log.Warn("chat session: bad frame", "error", err)
			continue
		}
		s.dispatch(f, handler)
	}
}

func (s *Session) dispatch(f protocol.Frame, handler PushHandler) {
	if f.Ack != 0 && (f.Event == protocol.EventAck || f.Event == protocol.EventError) {
		s.mu.Lock()
		reply, ok := s.waiters[f.Ack]
		s.mu.Unlock()
		if ok {
			select {
			case reply <- f:
			default:
			}
		}
		return
	}

	switch f.Event {
	case protocol.EventNew:
		var msg models.ChatMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			s.log.Warn("chat session: bad chat:new", "error", err)
			return
		}
		handler.ReceiveNew(msg)
	case protocol.EventDelivered:
		var n protocol.DeliveredNotice
		if err := json.Unmarshal(f.Data, &n); err != nil {
			return
		}
		handler.ApplyDelivered(n.MessageID)
	case protocol.EventRead:
		var n protocol.ReadNotice
		if err := json.Unmarshal(f.Data, &n); err != nil {
			return
		}
		handler.ApplyRead(n)
	case protocol.EventError:
		var n protocol.ErrorNotice
		_ = json.Unmarshal(f.Data, &n)
		s.log.Warn("chat server error", "message", n.Message)
	}
}
