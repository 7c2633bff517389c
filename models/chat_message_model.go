package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses along sent -> delivered -> read. Unknown values rank lowest.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Max returns whichever of s and other is further along.
func (s MessageStatus) Max(other MessageStatus) MessageStatus {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

type ChatMessage struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	FromID      uuid.UUID     `gorm:"type:uuid;not null;index:idx_chat_pair,priority:1" json:"fromId"`
	ToID        uuid.UUID     `gorm:"type:uuid;not null;index:idx_chat_pair,priority:2" json:"toId"`
	Text        string        `gorm:"type:text;not null" json:"text"`
	Status      MessageStatus `gorm:"size:16;not null;default:'sent'" json:"status"`
	CreatedAt   time.Time     `gorm:"not null;index;index:idx_chat_pair,priority:3" json:"createdAt"`
	DeliveredAt *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time    `json:"readAt,omitempty"`
}

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Counterpart returns the other side of the conversation as seen by self.
func (m ChatMessage) Counterpart(self uuid.UUID) uuid.UUID {
	if m.FromID == self {
		return m.ToID
	}
	return m.FromID
}
