package messages

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/petkeeper/internal/common"
	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

// MemoryRepository is a process-local Repository.
type MemoryRepository struct {
	mu            sync.RWMutex
	byID          map[string]*models.Message
	conversations map[string][2]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:          make(map[string]*models.Message),
		conversations: make(map[string][2]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return common.ErrorAlreadyExists
	}
	r.byID[m.ID] = clone(m)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(m), nil
}

func (r *MemoryRepository) CompareAndSetStatus(_ context.Context, id string, expected, next models.DeliveryStatus, deliveredAt, readAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok || m.DeliveryStatus != expected {
		return false, nil
	}
	m.DeliveryStatus = next
	m.DeliveredAt = cloneTime(deliveredAt)
	m.ReadAt = cloneTime(readAt)
	return true, nil
}

func (r *MemoryRepository) ListByConversation(_ context.Context, conversationID string, before *Cursor, limit int) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Message
	for _, m := range r.byID {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !less(m.CreatedAt, m.ID, before.CreatedAt, before.ID) {
			continue
		}
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return less(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func less(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if at.Equal(otherAt) {
		return id < otherID
	}
	return at.Before(otherAt)
}

func (r *MemoryRepository) ClaimConversation(_ context.Context, conversationID, a, b string) (bool, error) {
	a, b = participants(a, b)

	r.mu.Lock()
	defer r.mu.Unlock()

	pair, ok := r.conversations[conversationID]
	if !ok {
		pair = [2]string{a, b}
		r.conversations[conversationID] = pair
	}
	return pair == [2]string{a, b}, nil
}

func clone(m *models.Message) *models.Message {
	cp := *m
	cp.DeliveredAt = cloneTime(m.DeliveredAt)
	cp.ReadAt = cloneTime(m.ReadAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
