// Package messages stores chat messages. Delivery fields are only written
// through CompareAndSetStatus so concurrent writers cannot regress a status.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/dbx"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

const messageColumns = `id, conversation_id, sender_id, recipient_id, body, created_at, delivery_status, delivered_at, read_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, body, created_at, delivery_status, delivered_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Body, m.CreatedAt,
		string(m.DeliveryStatus), m.DeliveredAt, m.ReadAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidTextRepresentation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next models.DeliveryStatus, deliveredAt, readAt *time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET delivery_status = $3, delivered_at = $4, read_at = $5
		WHERE id = $1 AND delivery_status = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, string(expected), string(next), deliveredAt, readAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) ListByConversation(ctx context.Context, conversationID string, before *Cursor, limit int) ([]*models.Message, error) {
	var (
		query string
		args  []any
	)
	if before == nil {
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) page ORDER BY created_at, id`
		args = []any{conversationID, limit}
	} else {
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		) page ORDER BY created_at, id`
		args = []any{conversationID, before.CreatedAt, before.ID, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ClaimConversation inserts the participant pair if the conversation is new
// and then compares against whichever pair was stored first.
func (r *PostgresRepository) ClaimConversation(ctx context.Context, conversationID, a, b string) (bool, error) {
	a, b = participants(a, b)

	insert := `
		INSERT INTO conversations (id, participant_a, participant_b)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, conversationID, a, b); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	var storedA, storedB string
	query := `SELECT participant_a, participant_b FROM conversations WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, conversationID).Scan(&storedA, &storedB); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return storedA == a && storedB == b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		m                   models.Message
		status              string
		deliveredAt, readAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Body,
		&m.CreatedAt, &status, &deliveredAt, &readAt); err != nil {
		return nil, err
	}

	s, err := models.ParseDeliveryStatus(status)
	if err != nil {
		return nil, err
	}
	m.DeliveryStatus = s
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return &m, nil
}
