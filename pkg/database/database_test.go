package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/pkg/config"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "timetable",
		Password: "it's secret",
		Name:     "timetable",
		SSLMode:  "disable",
	})
	assert.Equal(t, `host=db port=5432 user=timetable password='it\'s secret' dbname=timetable sslmode=disable application_name=campus-timetable-api timezone=UTC`, dsn)
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/tmp/timetable.db")
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/timetable.db?"))
	assert.Contains(t, dsn, "_txlock=immediate")
}

func TestSQLiteMigrations(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "timetable.db"))
	require.NoError(t, err)
	defer db.Close()

	migrator, err := NewMigrator(db.DB, SQLiteDriver)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(ctx))

	version, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var tables int
	require.NoError(t, db.GetContext(ctx, &tables,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('rooms', 'subjects', 'schedule_entries')`))
	assert.Equal(t, 3, tables)

	require.NoError(t, migrator.Down(ctx))
}

func TestNewMigratorRejectsUnknownDriver(t *testing.T) {
	_, err := NewMigrator(nil, "mysql")
	assert.Error(t, err)
}
