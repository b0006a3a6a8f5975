package repomanager

import (
	"context"
	"database/sql"

	"github.com/hibana-share/hibana/internal/server/repositories/files"
	"github.com/hibana-share/hibana/internal/server/repositories/sessions"
)

// InMemoryRepositoryManager backs the repositories with process-local maps.
// Used by tests and single-node dev runs; it does not survive restarts.
type InMemoryRepositoryManager struct {
	files    files.Repository
	sessions sessions.Repository
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Files() files.Repository {
	return m.files
}

func (m *InMemoryRepositoryManager) Sessions() sessions.Repository {
	return m.sessions
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{
		files:    files.NewInMemoryRepository(),
		sessions: sessions.NewInMemoryRepository(),
	}
}
