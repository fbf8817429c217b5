// Package sqlite opens an embedded SQLite database through the pure Go
// modernc.org/sqlite driver and creates the shortlink schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS urls (
	id TEXT PRIMARY KEY,
	original_url TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	expiration_date TEXT,
	utm_params TEXT,
	click_count INTEGER NOT NULL DEFAULT 0,
	expired_access_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clicks (
	id TEXT PRIMARY KEY,
	url_id TEXT NOT NULL,
	referrer TEXT,
	user_agent TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY(url_id) REFERENCES urls(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_clicks_url_id ON clicks(url_id);
CREATE INDEX IF NOT EXISTS idx_clicks_created_at ON clicks(created_at);
`

// New opens the database file at path, creating it if needed, and applies the schema.
func New(ctx context.Context, path string) (*sql.DB, error) {
	const op = "sqlite.New"

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return db, nil
}

// Migrate creates the tables and indexes that do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	const op = "sqlite.Migrate"

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s: failed to create schema: %w", op, err)
	}

	return nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	return "file:" + path + "?" + params.Encode()
}
