package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/delivery"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// MessageService is the chat feature: a conversation is a direct channel
// between exactly two identities.
type MessageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tracker     *delivery.Tracker
	logger      logging.Logger
}

func NewMessageService(db *sql.DB, m repomanager.RepositoryManager, tracker *delivery.Tracker, logger logging.Logger) *MessageService {
	return &MessageService{
		db:          db,
		repomanager: m,
		tracker:     tracker,
		logger:      logger.With("module", "messages"),
	}
}

// Send stores a new message from sender to recipientID in conversationID.
// The first message of a conversation fixes its two participants.
func (s *MessageService) Send(ctx context.Context, sender *models.User, conversationID, recipientID, body string) (*models.Message, error) {
	if recipientID == sender.ID {
		return nil, fmt.Errorf("%w: cannot message yourself", common.ErrorValidation)
	}
	if !validID(recipientID) {
		return nil, fmt.Errorf("%w: unknown recipient", common.ErrorValidation)
	}

	recipient, err := s.repomanager.Users(handle(s.db)).GetUserByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: unknown recipient", common.ErrorValidation)
		}
		return nil, err
	}
	if !recipient.IsActive {
		return nil, fmt.Errorf("%w: unknown recipient", common.ErrorValidation)
	}

	ok, err := s.repomanager.Messages(handle(s.db)).ClaimConversation(ctx, conversationID, sender.ID, recipientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorForbidden
	}

	return s.tracker.Create(ctx, &models.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		RecipientID:    recipientID,
		Body:           body,
	})
}

// List returns the newest messages of a conversation the user takes part
// in, oldest first. A non-empty before (a message id) pages further back.
func (s *MessageService) List(ctx context.Context, user *models.User, conversationID, before string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	repo := s.repomanager.Messages(handle(s.db))

	var cursor *messages.Cursor
	if before != "" {
		if !validID(before) {
			return nil, fmt.Errorf("%w: invalid cursor", common.ErrorValidation)
		}
		m, err := repo.Get(ctx, before)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, fmt.Errorf("%w: invalid cursor", common.ErrorValidation)
			}
			return nil, err
		}
		if m.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: invalid cursor", common.ErrorValidation)
		}
		cursor = &messages.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	}

	list, err := repo.ListByConversation(ctx, conversationID, cursor, limit)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if m.SenderID != user.ID && m.RecipientID != user.ID {
			return nil, common.ErrorForbidden
		}
	}
	return list, nil
}

// Acknowledge records that the recipient observed delivery or read of a
// message. Only the recipient may acknowledge. A zero at means now.
func (s *MessageService) Acknowledge(ctx context.Context, user *models.User, messageID string, status models.DeliveryStatus, at time.Time) (*models.Message, error) {
	if !validID(messageID) {
		return nil, common.ErrorNotFound
	}
	m, err := s.repomanager.Messages(handle(s.db)).Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.RecipientID != user.ID {
		return nil, common.ErrorForbidden
	}
	return s.tracker.Advance(ctx, messageID, status, at)
}

// validID reports whether id can name a stored identity or message.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
