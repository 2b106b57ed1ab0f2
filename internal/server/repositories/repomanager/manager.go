// Package repomanager wires repository constructors to a PostgreSQL
// connection and exposes the schema migration hook (goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/wikicampus/wikicampus/internal/server/migrations"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
)

// Manager vends repository implementations and owns the DB connection.
type Manager struct {
	db *sql.DB
}

// NewPostgresManager opens the database and applies pending migrations.
func NewPostgresManager(ctx context.Context, dsn string) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Manager{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Conn exposes the underlying connection.
func (m *Manager) Conn() *sql.DB {
	return m.db
}

// Audit returns the audit log repository.
func (m *Manager) Audit() audit.Repository {
	return audit.NewPostgresRepository(m.db)
}

// Close releases the database connection.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
