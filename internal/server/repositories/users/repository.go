package users

import (
	"context"

	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

// Repository persists identities. Lookups return common.ErrorNotFound for
// missing rows; Create returns common.ErrorAlreadyExists when the username
// or email is taken.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}
