package ws

import (
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/server/notify"
)

// Inbound frame types.
const (
	FrameMessage   = "message"
	FrameDelivered = "delivered"
	FrameRead      = "read"
)

// Outbound frame types. "message" and "status" are pushes; "ack" answers a
// client frame carrying request_id.
const (
	FrameStatus = "status"
	FrameAck    = "ack"
	FrameError  = "error"
)

// ClientFrame is a frame received from a client.
type ClientFrame struct {
	Type           string     `json:"type"`
	RequestID      string     `json:"request_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	RecipientID    string     `json:"recipient_id,omitempty"`
	Body           string     `json:"body,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
	At             *time.Time `json:"at,omitempty"`
}

// ServerFrame is a frame sent to a client.
type ServerFrame struct {
	Type      string        `json:"type"`
	RequestID string        `json:"request_id,omitempty"`
	Message   *notify.Event `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
}
