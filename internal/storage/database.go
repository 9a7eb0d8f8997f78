// Package storage provides the user document store and its backends
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(databaseURL string) (*DB, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection keeps busy errors out
	// of the request path and makes :memory: databases usable.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{db}, nil
}

// sqliteDSN appends the connection pragmas unless the caller supplied its own
func sqliteDSN(databaseURL string) string {
	if strings.Contains(databaseURL, "?") {
		return databaseURL
	}
	return databaseURL + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		createUsersTable,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	watchlist TEXT NOT NULL DEFAULT '[]',
	reset_token_hash TEXT,
	reset_token_expires_at DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_users_reset_token_hash ON users(reset_token_hash);
`
