package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anjiri1684/attendance_chat/apperrors"
	"github.com/anjiri1684/attendance_chat/models"
	"github.com/anjiri1684/attendance_chat/policy"
	"github.com/anjiri1684/attendance_chat/protocol"
	"github.com/anjiri1684/attendance_chat/repositories"
	"github.com/anjiri1684/attendance_chat/utils"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Broadcaster fans an event out to every live session of a principal.
type Broadcaster interface {
	Emit(userID uuid.UUID, event string, payload any) int
}

type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	List(ctx context.Context) ([]models.Principal, error)
}

type UnreadSummary struct {
	Unread        int64               `json:"unread"`
	ByCounterpart map[uuid.UUID]int64 `json:"byCounterpart"`
}

// ChatService drives messages through sent -> delivered -> read and pushes
// every transition to the sessions that need it. It is the only component
// touching both the message store and the session registry.
type ChatService struct {
	messages  repositories.IMessageRepository
	directory Directory
	hub       Broadcaster
	log       *slog.Logger
}

func NewChatService(messages repositories.IMessageRepository, directory Directory, hub Broadcaster, log *slog.Logger) *ChatService {
	return &ChatService{messages: messages, directory: directory, hub: hub, log: log}
}

// counterpart parses otherRaw, loads it and checks that me may talk to it.
func (s *ChatService) counterpart(ctx context.Context, me models.Principal, otherRaw string) (*models.Principal, error) {
	otherID, err := uuid.Parse(strings.TrimSpace(otherRaw))
	if err != nil || otherID == uuid.Nil {
		return nil, apperrors.Validation("invalid receiver id")
	}
	if otherID == me.ID {
		return nil, apperrors.Validation("cannot message yourself")
	}

	other, err := s.directory.Lookup(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if !policy.CanConverseRaw(me.Role, other.Role) {
		return nil, fmt.Errorf("%w: %s may not message %s", apperrors.ErrForbidden, me.Role, other.Role)
	}
	return other, nil
}

// Send persists a message from sender to toRaw and fans it out. Nothing is
// written when validation, lookup or policy fail.
func (s *ChatService) Send(ctx context.Context, sender models.Principal, toRaw, text string) (*models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Validation("message empty")
	}
	recipient, err := s.counterpart(ctx, sender, toRaw)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Append(ctx, sender.ID, recipient.ID, text)
	if err != nil {
		return nil, err
	}

	s.hub.Emit(recipient.ID, protocol.EventNew, msg)
	s.hub.Emit(sender.ID, protocol.EventNew, msg)

	// Delivered means the server fanned the message out; the recipient's
	// device does not acknowledge receipt.
	delivered, err := s.messages.MarkDelivered(ctx, msg.ID)
	if err != nil {
		s.log.Warn("mark delivered failed", "message_id", msg.ID, "error", err)
		return msg, nil
	}
	if delivered != nil {
		msg = delivered
	}
	s.hub.Emit(sender.ID, protocol.EventDelivered, protocol.DeliveredNotice{MessageID: msg.ID})

	s.log.Debug("message sent", "conversation", utils.ConversationKey(sender.ID, recipient.ID), "message_id", msg.ID)
	return msg, nil
}

// MarkRead marks everything otherRaw sent to reader as read and tells both
// sides. It returns the ids of the messages that changed.
func (s *ChatService) MarkRead(ctx context.Context, reader models.Principal, otherRaw string) ([]uuid.UUID, error) {
	other, err := s.counterpart(ctx, reader, otherRaw)
	if err != nil {
		return nil, err
	}

	ids, err := s.messages.MarkReadBulk(ctx, other.ID, reader.ID)
	if err != nil {
		return nil, err
	}

	notice := protocol.ReadNotice{By: reader.ID, With: other.ID, MessageIDs: ids}
	s.hub.Emit(other.ID, protocol.EventRead, notice)
	s.hub.Emit(reader.ID, protocol.EventRead, notice)
	return ids, nil
}

func (s *ChatService) History(ctx context.Context, me models.Principal, otherRaw string, opts repositories.HistoryOptions) ([]models.ChatMessage, error) {
	other, err := s.counterpart(ctx, me, otherRaw)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.History(ctx, me.ID, other.ID, opts)
	if err != nil {
		return nil, err
	}
	s.log.Debug("history fetched", "conversation", utils.ConversationKey(me.ID, other.ID), "count", len(msgs))
	return msgs, nil
}

// Contacts lists the principals me is allowed to message.
func (s *ChatService) Contacts(ctx context.Context, me models.Principal) ([]models.Principal, error) {
	all, err := s.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(p models.Principal, _ int) bool {
		return p.ID != me.ID && policy.CanConverseRaw(me.Role, p.Role)
	}), nil
}

func (s *ChatService) UnreadCount(ctx context.Context, me models.Principal) (*UnreadSummary, error) {
	counts, err := s.messages.UnreadCounts(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	return &UnreadSummary{
		Unread:        lo.Sum(lo.Values(counts)),
		ByCounterpart: counts,
	}, nil
}
