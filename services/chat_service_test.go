package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/mocks"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type emitted struct {
	UserID  uuid.UUID
	Event   string
	Payload any
}

type recordingHub struct {
	mu     sync.Mutex
	events []emitted
}

func (h *recordingHub) Emit(userID uuid.UUID, event string, payload any) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, emitted{userID, event, payload})
	return 1
}

func (h *recordingHub) Events() []emitted {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]emitted(nil), h.events...)
}

type fixture struct {
	messages *mocks.MockIMessageRepository
	admins   *mocks.MockIAdminRepository
	hub      *recordingHub
	svc      *ChatService
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockIMessageRepository(ctrl)
	admins := mocks.NewMockIAdminRepository(ctrl)
	hub := &recordingHub{}
	identity := NewIdentityService(admins, "test-secret", time.Hour)
	return fixture{
		messages: messages,
		admins:   admins,
		hub:      hub,
		svc:      NewChatService(messages, identity, hub, slog.Default()),
	}
}

func admin(role string) models.Admin {
	return models.Admin{ID: uuid.New(), Email: role + "@example.com", Role: role}
}

func TestChatService_SendThenRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := admin("admin"), admin("admin_tl")
	now := time.Now().UTC()
	sent := &models.ChatMessage{ID: uuid.New(), FromID: a.ID, ToID: b.ID, Text: "hello", Status: models.StatusSent, CreatedAt: now}
	delivered := *sent
	delivered.Status = models.StatusDelivered
	delivered.DeliveredAt = &now

	gomock.InOrder(
		f.admins.EXPECT().FindByID(ctx, b.ID).Return(&b, nil),
		f.messages.EXPECT().Append(ctx, a.ID, b.ID, "hello").Return(sent, nil),
		f.messages.EXPECT().MarkDelivered(ctx, sent.ID).Return(&delivered, nil),
	)

	// When A (admin) sends "hello" to B (admin_tl)
	msg, err := f.svc.Send(ctx, a.Principal(), b.ID.String(), "hello")

	// Then the message is delivered and the fan-out order is new(B), new(A), delivered(A)
	req.NoError(err)
	req.Equal(models.StatusDelivered, msg.Status)
	events := f.hub.Events()
	req.Len(events, 3)
	req.Equal(emitted{b.ID, protocol.EventNew, sent}, events[0])
	req.Equal(emitted{a.ID, protocol.EventNew, sent}, events[1])
	req.Equal(emitted{a.ID, protocol.EventDelivered, protocol.DeliveredNotice{MessageID: sent.ID}}, events[2])

	// When B opens the conversation
	gomock.InOrder(
		f.admins.EXPECT().FindByID(ctx, a.ID).Return(&a, nil),
		f.messages.EXPECT().MarkReadBulk(ctx, a.ID, b.ID).Return([]uuid.UUID{sent.ID}, nil),
	)
	ids, err := f.svc.MarkRead(ctx, b.Principal(), a.ID.String())

	// Then one message flips and both A and B's own sessions are told which
	req.NoError(err)
	req.Equal([]uuid.UUID{sent.ID}, ids)
	events = f.hub.Events()[3:]
	notice := protocol.ReadNotice{By: b.ID, With: a.ID, MessageIDs: []uuid.UUID{sent.ID}}
	req.Equal([]emitted{{a.ID, protocol.EventRead, notice}, {b.ID, protocol.EventRead, notice}}, events)
}

func TestChatService_Send_PolicyDenied(t *testing.T) {
	ctx := context.Background()

	for _, targetRole := range []string{"", "employee", "root"} {
		t.Run("target role "+targetRole, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			a, c := admin("admin"), admin(targetRole)
			f.admins.EXPECT().FindByID(ctx, c.ID).Return(&c, nil)
			f.messages.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			msg, err := f.svc.Send(ctx, a.Principal(), c.ID.String(), "hi")

			req.ErrorIs(err, apperrors.ErrForbidden)
			req.Nil(msg)
			req.Empty(f.hub.Events())
		})
	}
}

func TestChatService_Send_SameTierAllowed(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, c := admin("admin"), admin("admin")
	msg := &models.ChatMessage{ID: uuid.New(), FromID: a.ID, ToID: c.ID, Text: "hi", Status: models.StatusSent}

	f.admins.EXPECT().FindByID(ctx, c.ID).Return(&c, nil)
	f.messages.EXPECT().Append(ctx, a.ID, c.ID, "hi").Return(msg, nil)
	f.messages.EXPECT().MarkDelivered(ctx, msg.ID).Return(nil, nil)

	got, err := f.svc.Send(ctx, a.Principal(), c.ID.String(), "hi")
	req.NoError(err)
	req.Equal(msg.ID, got.ID)
}

func TestChatService_Send_RejectedBeforeStore(t *testing.T) {
	ctx := context.Background()
	a := admin("super")

	tests := []struct {
		name string
		to   string
		text string
		want error
	}{
		{"empty text", uuid.NewString(), "   ", apperrors.ErrValidation},
		{"malformed id", "not-a-uuid", "hi", apperrors.ErrValidation},
		{"missing id", "", "hi", apperrors.ErrValidation},
		{"self", a.ID.String(), "hi", apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.messages.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

			_, err := f.svc.Send(ctx, a.Principal(), tt.to, tt.text)
			require.ErrorIs(t, err, tt.want)
			require.Empty(t, f.hub.Events())
		})
	}
}

func TestChatService_Send_UnknownTarget(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a := admin("super")
	ghost := uuid.New()

	f.admins.EXPECT().FindByID(ctx, ghost).Return(nil, apperrors.NotFound("user not found"))
	f.messages.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.Send(ctx, a.Principal(), ghost.String(), "hi")
	req.ErrorIs(err, apperrors.ErrNotFound)
	req.Empty(f.hub.Events())
}

func TestChatService_Send_StoreUnavailable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := admin("admin"), admin("super")

	f.admins.EXPECT().FindByID(ctx, b.ID).Return(&b, nil)
	f.messages.EXPECT().Append(ctx, a.ID, b.ID, "hi").
		Return(nil, apperrors.Unavailable("append", errors.New("connection refused")))

	_, err := f.svc.Send(ctx, a.Principal(), b.ID.String(), "hi")
	req.ErrorIs(err, apperrors.ErrUnavailable)
	req.Empty(f.hub.Events())
}

func TestChatService_Send_DeliveredMarkFailureStillAcknowledges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	a, b := admin("admin"), admin("admin")
	msg := &models.ChatMessage{ID: uuid.New(), FromID: a.ID, ToID: b.ID, Text: "hi", Status: models.StatusSent}

	f.admins.EXPECT().FindByID(ctx, b.ID).Return(&b, nil)
	f.messages.EXPECT().Append(ctx, a.ID, b.ID, "hi").Return(msg, nil)
	f.messages.EXPECT().MarkDelivered(ctx, msg.ID).Return(nil, apperrors.Unavailable("mark delivered", errors.New("timeout")))

	got, err := f.svc.Send(ctx, a.Principal(), b.ID.String(), "hi")
	req.NoError(err)
	req.Equal(models.StatusSent, got.Status)

	// chat:new went out to both sides, chat:delivered did not
	events := f.hub.Events()
	req.Len(events, 2)
	for _, e := range events {
		req.Equal(protocol.EventNew, e.Event)
	}
}

func TestChatService_MarkRead_Forbidden(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	reader, other := admin("admin"), admin("employee")

	f.admins.EXPECT().FindByID(ctx, other.ID).Return(&other, nil)
	f.messages.EXPECT().MarkReadBulk(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.MarkRead(ctx, reader.Principal(), other.ID.String())
	req.ErrorIs(err, apperrors.ErrForbidden)
	req.Empty(f.hub.Events())
}

func TestChatService_History(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	me, other := admin("admin_tl"), admin("admin")
	want := []models.ChatMessage{{ID: uuid.New()}, {ID: uuid.New()}}
	opts := repositories.HistoryOptions{Last: 3}

	f.admins.EXPECT().FindByID(ctx, other.ID).Return(&other, nil)
	f.messages.EXPECT().History(ctx, me.ID, other.ID, opts).Return(want, nil)

	got, err := f.svc.History(ctx, me.Principal(), other.ID.String(), opts)
	req.NoError(err)
	req.Equal(want, got)
}

func TestChatService_Contacts(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	me := admin("admin")
	super, tl, peer, employee := admin("super"), admin("admin_tl"), admin("admin"), admin("employee")

	f.admins.EXPECT().List(ctx).Return([]models.Admin{me, super, tl, peer, employee}, nil)

	contacts, err := f.svc.Contacts(ctx, me.Principal())
	req.NoError(err)
	req.Equal([]models.Principal{super.Principal(), tl.Principal(), peer.Principal()}, contacts)
}

func TestChatService_UnreadCount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	me := admin("super")
	b, c := uuid.New(), uuid.New()

	f.messages.EXPECT().UnreadCounts(ctx, me.ID).Return(map[uuid.UUID]int64{b: 2, c: 1}, nil)

	summary, err := f.svc.UnreadCount(ctx, me.Principal())
	req.NoError(err)
	req.EqualValues(3, summary.Unread)
	req.EqualValues(2, summary.ByCounterpart[b])
}
