package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteDriver is the database/sql name registered by modernc.org/sqlite.
const SQLiteDriver = "sqlite"

func init() {
	sqlx.BindDriver(SQLiteDriver, sqlx.QUESTION)
}

// SQLiteDSN builds a DSN whose transactions take the writer lock on BEGIN, so
// concurrent placements serialize instead of failing at commit.
func SQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + params.Encode()
}

// NewSQLite opens the embedded single-node store at path.
func NewSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open(SQLiteDriver, SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}
