// Package client is the Go side of the chat push channel: a reconciliation
// engine that keeps a local view of every conversation in step with the
// server, a websocket session that feeds it, and a small REST client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultMatchWindow = 10 * time.Second
	DefaultAckTimeout  = 10 * time.Second
)

var ErrAckTimeout = errors.New("send was not acknowledged in time")

// Transport is what the engine needs from the push channel.
type Transport interface {
	Send(ctx context.Context, toID uuid.UUID, text string) (uuid.UUID, error)
	MarkRead(ctx context.Context, otherID uuid.UUID) ([]uuid.UUID, error)
}

// Engine holds the local view of every conversation of one principal.
// It is safe for concurrent use; the lock is never held while talking to
// the transport.
type Engine struct {
	self      uuid.UUID
	transport Transport
	log       *slog.Logger

	matchWindow time.Duration
	ackTimeout  time.Duration
	now         func() time.Time
	onChange    func(counterpart uuid.UUID)

	mu      sync.Mutex
	threads map[uuid.UUID][]Entry
	unread  map[uuid.UUID]int
	focused uuid.UUID
	seq     uint64
}

type Option func(*Engine)

// WithClock replaces time.Now for placeholder timestamps and receipts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithAckTimeout(d time.Duration) Option {
	return func(e *Engine) { e.ackTimeout = d }
}

// WithMatchWindow sets how far apart a placeholder and its echo may be
// stamped and still be treated as the same message.
func WithMatchWindow(d time.Duration) Option {
	return func(e *Engine) { e.matchWindow = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithChangeListener registers fn to be called after any conversation
// changes. It runs on the goroutine that caused the change.
func WithChangeListener(fn func(counterpart uuid.UUID)) Option {
	return func(e *Engine) { e.onChange = fn }
}

func NewEngine(self uuid.UUID, transport Transport, opts ...Option) *Engine {
	e := &Engine{
		self:        self,
		transport:   transport,
		log:         slog.Default(),
		matchWindow: DefaultMatchWindow,
		ackTimeout:  DefaultAckTimeout,
		now:         time.Now,
		threads:     make(map[uuid.UUID][]Entry),
		unread:      make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Self() uuid.UUID { return e.self }

// Send inserts a placeholder, then waits for the server to acknowledge the
// message. A rejected or unacknowledged send withdraws the placeholder and
// returns the error; nothing is retried.
func (e *Engine) Send(ctx context.Context, toID uuid.UUID, text string) (uuid.UUID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return uuid.Nil, apperrors.Validation("text is required")
	}
	if toID == uuid.Nil || toID == e.self {
		return uuid.Nil, apperrors.Validation("invalid recipient")
	}

	e.mu.Lock()
	e.seq++
	p := &Pending{
		LocalID:   fmt.Sprintf("tmp-%d-%d", e.now().UnixMilli(), e.seq),
		FromID:    e.self,
		ToID:      toID,
		Text:      text,
		CreatedAt: e.now(),
	}
	e.insert(toID, p)
	e.mu.Unlock()
	e.changed(toID)

	ctx, cancel := context.WithTimeout(ctx, e.ackTimeout)
	defer cancel()
	id, err := e.transport.Send(ctx, toID, text)
	if err != nil {
		e.mu.Lock()
		e.remove(toID, p)
		e.mu.Unlock()
		e.changed(toID)
		if errors.Is(err, context.DeadlineExceeded) {
			return uuid.Nil, ErrAckTimeout
		}
		return uuid.Nil, err
	}

	e.mu.Lock()
	thread := e.threads[toID]
	if e.indexConfirmed(thread, id) >= 0 {
		// the echo was matched to another placeholder first
		e.remove(toID, p)
	} else {
		p.ServerID = id
	}
	e.mu.Unlock()
	return id, nil
}

// ReceiveNew merges a chat:new push. Redelivered messages are ignored,
// echoes replace their placeholder, and inbound messages for a conversation
// that is not focused count as unread exactly once.
func (e *Engine) ReceiveNew(msg models.ChatMessage) {
	if msg.FromID != e.self && msg.ToID != e.self {
		return
	}
	other := msg.Counterpart(e.self)

	e.mu.Lock()
	added := e.merge(other, msg)

	needRead := false
	if added && msg.ToID == e.self && msg.Status != models.StatusRead {
		if other == e.focused {
			needRead = true
		} else {
			e.unread[other]++
		}
	}
	e.mu.Unlock()
	e.changed(other)

	if needRead {
		// ReceiveNew runs on the session's read loop, which must stay free
		// to deliver the acknowledgement.
		go e.markRead(other)
	}
}

// LoadHistory merges an authoritative history fetch for one conversation,
// typically after connecting or reconnecting. Placeholders still in flight
// are kept.
func (e *Engine) LoadHistory(other uuid.UUID, msgs []models.ChatMessage) {
	e.mu.Lock()
	for _, msg := range lo.UniqBy(msgs, func(m models.ChatMessage) uuid.UUID { return m.ID }) {
		if msg.Counterpart(e.self) != other {
			continue
		}
		e.merge(other, msg)
	}
	e.mu.Unlock()
	e.changed(other)
}

// SeedUnread installs the per-counterpart unread counts reported by the
// server on initial load. Call it before the session is dialed; a count
// already raised by pushes is never lowered.
func (e *Engine) SeedUnread(counts map[uuid.UUID]int64) {
	e.mu.Lock()
	for other, n := range counts {
		if other == e.focused {
			continue
		}
		e.unread[other] = max(e.unread[other], int(n))
	}
	e.mu.Unlock()
}

func (e *Engine) ApplyDelivered(messageID uuid.UUID) {
	e.mu.Lock()
	var touched uuid.UUID
	for other, thread := range e.threads {
		if i := e.indexConfirmed(thread, messageID); i >= 0 {
			if thread[i].(*Confirmed).advance(models.StatusDelivered, e.now()) {
				touched = other
			}
			break
		}
	}
	e.mu.Unlock()
	if touched != uuid.Nil {
		e.changed(touched)
	}
}

// ApplyRead handles a chat:read push. When By is someone else they have read
// what we sent them; when By is us another tab opened the conversation With.
// Only the listed messages change.
func (e *Engine) ApplyRead(n protocol.ReadNotice) {
	var other uuid.UUID
	switch {
	case n.By == e.self && n.With != uuid.Nil:
		other = n.With
	case n.By != e.self && n.By != uuid.Nil:
		other = n.By
	default:
		return
	}

	e.mu.Lock()
	e.markThreadRead(other, n.MessageIDs)
	if n.By == e.self {
		e.unread[other] = 0
	}
	e.mu.Unlock()
	e.changed(other)
}

// Focus opens a conversation. Its unread contribution drops to zero and, if
// it holds inbound messages not yet seen, one read signal is sent.
func (e *Engine) Focus(ctx context.Context, other uuid.UUID) error {
	e.mu.Lock()
	e.focused = other
	unseen := e.unread[other] > 0 || lo.ContainsBy(e.threads[other], func(en Entry) bool {
		c, ok := en.(*Confirmed)
		return ok && c.FromID == other && c.Status != models.StatusRead
	})
	e.unread[other] = 0
	e.mu.Unlock()
	e.changed(other)

	if !unseen {
		return nil
	}
	return e.sendRead(ctx, other)
}

// Blur leaves the focused conversation, if any.
func (e *Engine) Blur() {
	e.mu.Lock()
	e.focused = uuid.Nil
	e.mu.Unlock()
}

func (e *Engine) Focused() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Messages returns a snapshot of one conversation in display order.
func (e *Engine) Messages(other uuid.UUID) []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Map(e.threads[other], func(en Entry, _ int) Entry {
		switch v := en.(type) {
		case *Pending:
			cp := *v
			return &cp
		case *Confirmed:
			cp := *v
			return &cp
		}
		return en
	})
}

func (e *Engine) Unread() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Sum(lo.Values(e.unread))
}

func (e *Engine) UnreadFor(other uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[other]
}

// StatusLabel is the receipt shown next to a message. Messages the
// principal received get no label.
func (e *Engine) StatusLabel(en Entry) string {
	msg := en.View()
	if msg.FromID != e.self {
		return ""
	}
	switch msg.Status {
	case models.StatusDelivered:
		return "delivered"
	case models.StatusRead:
		return "seen"
	default:
		return "pending"
	}
}

func (e *Engine) markRead(other uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), e.ackTimeout)
	defer cancel()
	if err := e.sendRead(ctx, other); err != nil {
		e.log.Warn("chat read signal failed", "counterpart", other, "error", err)
	}
}

func (e *Engine) sendRead(ctx context.Context, other uuid.UUID) error {
	ids, err := e.transport.MarkRead(ctx, other)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.markThreadRead(other, ids)
	e.mu.Unlock()
	e.changed(other)
	return nil
}

// merge must be called with mu held. It reports whether msg was not in the
// conversation before, either confirmed or as a placeholder.
func (e *Engine) merge(other uuid.UUID, msg models.ChatMessage) bool {
	thread := e.threads[other]
	if i := e.indexConfirmed(thread, msg.ID); i >= 0 {
		thread[i].(*Confirmed).merge(msg)
		return false
	}
	if i := e.indexPlaceholder(thread, msg); i >= 0 {
		thread[i] = &Confirmed{ChatMessage: msg}
		return false
	}
	e.insert(other, &Confirmed{ChatMessage: msg})
	return true
}

func (e *Engine) indexConfirmed(thread []Entry, id uuid.UUID) int {
	_, i, ok := lo.FindIndexOf(thread, func(en Entry) bool {
		c, ok := en.(*Confirmed)
		return ok && c.ID == id
	})
	if !ok {
		return -1
	}
	return i
}

// indexPlaceholder finds the placeholder msg stands for: the one already
// acknowledged with its id, or else the oldest one with the same sides and
// text stamped within the match window.
func (e *Engine) indexPlaceholder(thread []Entry, msg models.ChatMessage) int {
	if _, i, ok := lo.FindIndexOf(thread, func(en Entry) bool {
		p, ok := en.(*Pending)
		return ok && p.ServerID != uuid.Nil && p.ServerID == msg.ID
	}); ok {
		return i
	}
	text := strings.TrimSpace(msg.Text)
	_, i, ok := lo.FindIndexOf(thread, func(en Entry) bool {
		p, ok := en.(*Pending)
		if !ok || p.ServerID != uuid.Nil {
			return false
		}
		gap := p.CreatedAt.Sub(msg.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		return p.FromID == msg.FromID && p.ToID == msg.ToID && p.Text == text && gap <= e.matchWindow
	})
	if !ok {
		return -1
	}
	return i
}

// insert keeps the thread ordered by creation time; equal stamps keep
// arrival order.
func (e *Engine) insert(other uuid.UUID, en Entry) {
	thread := e.threads[other]
	at := en.View().CreatedAt
	i := len(thread)
	for i > 0 && thread[i-1].View().CreatedAt.After(at) {
		i--
	}
	thread = append(thread, nil)
	copy(thread[i+1:], thread[i:])
	thread[i] = en
	e.threads[other] = thread
}

func (e *Engine) remove(other uuid.UUID, p *Pending) {
	e.threads[other] = lo.Filter(e.threads[other], func(en Entry, _ int) bool {
		return en != Entry(p)
	})
}

// markThreadRead advances the listed messages of the conversation with other
// to read.
func (e *Engine) markThreadRead(other uuid.UUID, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	at := e.now()
	for _, en := range e.threads[other] {
		if c, ok := en.(*Confirmed); ok && lo.Contains(ids, c.ID) {
			c.advance(models.StatusRead, at)
		}
	}
}

func (e *Engine) changed(other uuid.UUID) {
	if e.onChange != nil {
		e.onChange(other)
	}
}
