// Package services contains server-side business logic. UserService handles
// registration, login and account state; MessageService drives the chat
// lifecycle on top of the delivery tracker.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/dbx"
	"github.com/dmitrijs2005/petkeeper/internal/logging"
	"github.com/dmitrijs2005/petkeeper/internal/server/auth"
	"github.com/dmitrijs2005/petkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/repomanager"
)

// AccessToken is the result of a successful login.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Registration is the validated input of Register.
type Registration struct {
	UserName   string
	Email      string
	Password   string
	IsProvider bool
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	credentials *credentials.Store
	tokens      *auth.TokenService
	logger      logging.Logger
}

// NewUserService constructs a UserService. db may be nil with a memory
// repository manager.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, creds *credentials.Store, tokens *auth.TokenService, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		credentials: creds,
		tokens:      tokens,
		logger:      logger.With("module", "users"),
	}
}

// Register creates an active identity. The password is checked and hashed
// before anything is stored.
func (s *UserService) Register(ctx context.Context, r Registration) (*models.User, error) {
	if err := s.credentials.CheckSecret(r.Password); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	hash, err := s.credentials.Hash(ctx, r.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UserName:     r.UserName,
		Email:        r.Email,
		PasswordHash: hash,
		IsActive:     true,
		IsProvider:   r.IsProvider,
	}
	u, err := s.repomanager.Users(handle(s.db)).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Login verifies the credentials and issues an access token with the
// default lifetime. Every credential failure is common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, userName, password string) (*AccessToken, error) {
	user, err := s.credentials.Authenticate(ctx, userName, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.logger.Info(ctx, "login rejected", "username", userName)
			return nil, err
		}
		s.logger.Error(ctx, "login lookup failed", "error", err)
		return nil, common.ErrorInternal
	}

	token, exp, err := s.tokens.Issue(user, 0)
	if err != nil {
		s.logger.Error(ctx, "token issue failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	return &AccessToken{Token: token, ExpiresAt: exp}, nil
}

// Get returns the current state of an identity.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(handle(s.db)).GetUserByID(ctx, id)
}

// Deactivate soft-deletes an identity. Tokens already issued to it stop
// resolving immediately. Deactivating twice is a no-op.
func (s *UserService) Deactivate(ctx context.Context, id string) error {
	err := inTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		u, err := repo.GetUserByID(ctx, id)
		if err != nil {
			return err
		}
		if !u.IsActive {
			return nil
		}
		return repo.SetActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "user deactivated", "user_id", id)
	return nil
}
