package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is a process-local Repository. Emails are unique
// case-insensitively, usernames exactly, mirroring the SQL constraints.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	clock func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.User),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.UserName == user.UserName || strings.EqualFold(u.Email, user.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}

	stored := *user
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.clock()
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	r.byID[stored.ID] = &stored

	user.ID = stored.ID
	user.CreatedAt = stored.CreatedAt
	return user, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.UserName == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	return nil
}
