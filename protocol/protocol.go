// Package protocol holds the push-channel contract shared by the server and
// the Go client: event names, the frame envelope and the event payloads.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	EventSend      = "chat:send"
	EventNew       = "chat:new"
	EventDelivered = "chat:delivered"
	EventRead      = "chat:read"
	EventAck       = "ack"
	EventError     = "error"
)

// Frame is the envelope for every websocket message in both directions.
// Requests that expect an acknowledgement carry a non-zero Ack; the reply
// echoes it with Event set to EventAck.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, ack uint64, data any) (Frame, error) {
	f := Frame{Event: event, Ack: ack}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	f.Data = raw
	return f, nil
}

// Encode marshals a frame for the given event in one step.
func Encode(event string, ack uint64, data any) ([]byte, error) {
	f, err := NewFrame(event, ack, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

type SendRequest struct {
	ToID string `json:"toId" validate:"required"`
	Text string `json:"text"`
}

type SendAck struct {
	OK        bool      `json:"ok"`
	MessageID uuid.UUID `json:"messageId,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type ReadRequest struct {
	OtherID string `json:"otherId" validate:"required"`
}

type ReadAck struct {
	OK         bool        `json:"ok"`
	Modified   int64       `json:"modified"`
	MessageIDs []uuid.UUID `json:"messageIds,omitempty"`
	Message    string      `json:"message,omitempty"`
}

type DeliveredNotice struct {
	MessageID uuid.UUID `json:"messageId"`
}

// ReadNotice tells a session that By has read the messages With sent them.
// The counterpart receives it with With set to itself; the reader's other tabs
// receive it with By set to themselves. MessageIDs lists exactly the
// messages that changed; nothing else in the conversation is implied read.
type ReadNotice struct {
	By         uuid.UUID   `json:"by"`
	With       uuid.UUID   `json:"with"`
	MessageIDs []uuid.UUID `json:"messageIds"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}
