package messages

import (
	"context"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

// Cursor identifies a position in a conversation's (created_at, id) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Repository persists chat messages and their delivery fields.
type Repository interface {
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// CompareAndSetStatus updates the delivery fields only while the stored
	// status equals expected and reports whether a row was written.
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.DeliveryStatus, deliveredAt, readAt *time.Time) (bool, error)
	// ListByConversation returns the newest limit messages strictly before
	// the cursor (or the newest overall when before is nil), oldest first.
	ListByConversation(ctx context.Context, conversationID string, before *Cursor, limit int) ([]*models.Message, error)
	// ClaimConversation records a and b as the participants of
	// conversationID unless it already has participants, and reports
	// whether the stored pair is {a, b}.
	ClaimConversation(ctx context.Context, conversationID, a, b string) (bool, error)
}

// participants orders a pair so {a, b} and {b, a} are stored the same way.
func participants(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
