// Package notify pushes message lifecycle events to interested parties. The
// integration is optional: NopNotifier stands in when nothing is configured.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventStatusChanged  EventType = "message.status"
)

// Event is the externally visible representation of a message after a
// lifecycle change.
type Event struct {
	Type           EventType             `json:"type"`
	MessageID      string                `json:"message_id"`
	ConversationID string                `json:"conversation_id"`
	SenderID       string                `json:"sender_id"`
	RecipientID    string                `json:"recipient_id"`
	Body           string                `json:"body,omitempty"`
	Status         models.DeliveryStatus `json:"delivery_status"`
	CreatedAt      time.Time             `json:"created_at"`
	DeliveredAt    *time.Time            `json:"delivered_at"`
	ReadAt         *time.Time            `json:"read_at"`
}

func NewEvent(t EventType, m *models.Message) Event {
	e := Event{
		Type:           t,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Status:         m.DeliveryStatus,
		CreatedAt:      m.CreatedAt,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
	if t == EventMessageCreated {
		e.Body = m.Body
	}
	return e
}

// Notifier receives lifecycle events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// Fanout delivers an event to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
