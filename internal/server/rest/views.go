package rest

import (
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

type userView struct {
	ID         string    `json:"id"`
	UserName   string    `json:"username"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	IsProvider bool      `json:"is_provider"`
	CreatedAt  time.Time `json:"created_at"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:         u.ID,
		UserName:   u.UserName,
		Email:      u.Email,
		IsActive:   u.IsActive,
		IsProvider: u.IsProvider,
		CreatedAt:  u.CreatedAt,
	}
}

// MessageView is the externally visible representation of a message,
// delivery fields included.
type MessageView struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	SenderID       string                `json:"sender_id"`
	RecipientID    string                `json:"recipient_id"`
	Body           string                `json:"body"`
	CreatedAt      time.Time             `json:"created_at"`
	DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	DeliveredAt    *time.Time            `json:"delivered_at"`
	ReadAt         *time.Time            `json:"read_at"`
}

func NewMessageView(m *models.Message) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
		DeliveryStatus: m.DeliveryStatus,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
}
