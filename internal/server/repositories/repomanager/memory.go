package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/petkeeper/internal/dbx"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/messages"
	"github.com/dmitrijs2005/petkeeper/internal/server/repositories/users"
)

// MemoryRepositoryManager serves shared in-memory repositories regardless of
// the DBTX passed in. Transactions are not isolated.
type MemoryRepositoryManager struct {
	users    *users.MemoryRepository
	messages *messages.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:    users.NewMemoryRepository(),
		messages: messages.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *MemoryRepositoryManager) Messages(dbx.DBTX) messages.Repository { return m.messages }
