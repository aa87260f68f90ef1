package models

import (
	"fmt"
	"time"
)

// DeliveryStatus is the observed transmission state of a chat message.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Rank orders statuses along the lifecycle; unknown values rank below sent.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

func (s DeliveryStatus) Valid() bool { return s.Rank() > 0 }

// ParseDeliveryStatus converts the persisted representation.
func ParseDeliveryStatus(v string) (DeliveryStatus, error) {
	s := DeliveryStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown delivery status %q", v)
	}
	return s, nil
}

// Message is a direct chat message between SenderID and RecipientID. Content
// and authorship are immutable after creation; the delivery fields are only
// written through the delivery tracker.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           string
	CreatedAt      time.Time

	DeliveryStatus DeliveryStatus
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}
