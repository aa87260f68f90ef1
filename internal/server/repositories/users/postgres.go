// Package users stores identities: username, email, bcrypt hash and the
// active flag.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/dbx"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

const userColumns = `id, username, email, password_hash, is_active, is_provider, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, password_hash, is_active, is_provider)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Email, user.PasswordHash, user.IsActive, user.IsProvider).
		Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username or email", common.ErrorAlreadyExists)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE username = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, userName))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		if dbx.IsInvalidTextRepresentation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.UserName, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.IsProvider, &user.CreatedAt)

	if err != nil {
		// A malformed id cannot name any row.
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidTextRepresentation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}
