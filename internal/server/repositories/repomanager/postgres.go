package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hibana-share/hibana/internal/server/migrations"
	"github.com/hibana-share/hibana/internal/server/repositories/files"
	"github.com/hibana-share/hibana/internal/server/repositories/sessions"
)

type PostgresRepositoryManager struct {
	db       *sql.DB
	files    files.Repository
	sessions sessions.Repository
}

func (m *PostgresRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *PostgresRepositoryManager) Files() files.Repository {
	return m.files
}

func (m *PostgresRepositoryManager) Sessions() sessions.Repository {
	return m.sessions
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, m.db, ".")
}

func NewPostgresRepositoryManager(ctx context.Context, dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:       db,
		files:    files.NewPostgresRepository(db),
		sessions: sessions.NewPostgresRepository(db),
	}

	if err := m.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
