package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/noah-isme/campus-timetable-api/migrations"
)

// Migrator applies the embedded goose migrations for one dialect.
type Migrator struct {
	db      *sql.DB
	dialect string
	dir     string
}

// NewMigrator prepares goose for driverName ("postgres" or "sqlite").
func NewMigrator(db *sql.DB, driverName string) (*Migrator, error) {
	var dialect, dir string
	switch driverName {
	case "postgres":
		dialect, dir = "postgres", "postgres"
	case SQLiteDriver:
		dialect, dir = "sqlite3", "sqlite"
	default:
		return nil, fmt.Errorf("no migrations for driver %q", driverName)
	}
	if _, err := fs.Stat(migrations.FS, dir); err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", driverName, err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Migrator{db: db, dialect: dialect, dir: dir}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back the latest migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
