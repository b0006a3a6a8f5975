package repomanager

import (
	"context"
	"database/sql"

	"github.com/hibana-share/hibana/internal/server/repositories/files"
	"github.com/hibana-share/hibana/internal/server/repositories/sessions"
)

// RepositoryManager bundles the metadata repositories behind one handle so
// the services stay agnostic of the backing store.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() *sql.DB
	Files() files.Repository
	Sessions() sessions.Repository
	Close() error
}
