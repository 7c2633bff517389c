package client

import (
	"time"

	"github.com/anjiri1684/attendance_chat/models"
	"github.com/google/uuid"
)

// Entry is one line of a conversation as the user sees it: either a
// *Pending placeholder for an unacknowledged send or a *Confirmed message
// that the server has stored.
type Entry interface {
	// View renders the entry as a message. Pending entries report
	// StatusSent and the acknowledged id once one is known.
	View() models.ChatMessage
	entry()
}

// Pending is an optimistic local insert waiting for its server echo.
type Pending struct {
	LocalID   string
	ServerID  uuid.UUID
	FromID    uuid.UUID
	ToID      uuid.UUID
	Text      string
	CreatedAt time.Time
}

func (p *Pending) View() models.ChatMessage {
	return models.ChatMessage{
		ID:        p.ServerID,
		FromID:    p.FromID,
		ToID:      p.ToID,
		Text:      p.Text,
		Status:    models.StatusSent,
		CreatedAt: p.CreatedAt,
	}
}

func (*Pending) entry() {}

type Confirmed struct {
	models.ChatMessage
}

func (c *Confirmed) View() models.ChatMessage { return c.ChatMessage }

func (*Confirmed) entry() {}

// merge folds a newer copy of the same message into c without letting the
// status move backwards.
func (c *Confirmed) merge(in models.ChatMessage) {
	c.Status = c.Status.Max(in.Status)
	if c.DeliveredAt == nil && in.DeliveredAt != nil {
		c.DeliveredAt = in.DeliveredAt
	}
	if c.ReadAt == nil && in.ReadAt != nil {
		c.ReadAt = in.ReadAt
	}
}

func (c *Confirmed) advance(status models.MessageStatus, at time.Time) bool {
	if status.Rank() <= c.Status.Rank() {
		return false
	}
	c.Status = status
	switch status {
	case models.StatusDelivered:
		c.DeliveredAt = &at
	case models.StatusRead:
		if c.DeliveredAt == nil {
			c.DeliveredAt = &at
		}
		c.ReadAt = &at
	}
	return true
}
