// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure-Go translation of the SQLite C sources — no CGo, no C
// toolchain, cross-compiles anywhere Go does. The driver registers itself
// with database/sql under the name "sqlite" via the blank import below.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface. One type for all of them keeps the wiring flat — the server
// hands the same *DB to each service as the interface it needs.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs the
// schema migrations. Use ":memory:" in tests for a throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database exists per connection; with a pool of more
	// than one, queries would see an empty database the migrations never
	// touched. Pin the pool to a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// Force an immediate connection so a bad path or permissions problem
	// surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight — required for a
	// multi-request web server. Foreign keys are off by default in
	// SQLite; we want the links/tokens → users references enforced.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Defer this wherever New is called so
// the WAL is flushed and the file lock released on shutdown.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it
// idempotent — safe on every startup.
func (db *DB) migrate() error {
	// Emails are stored lowercased; COLLATE NOCASE backstops the unique
	// constraint against any caller that forgets to normalize.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			name          TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_accounts (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id),
			provider         TEXT NOT NULL,
			provider_user_id TEXT NOT NULL,
			email            TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (provider, provider_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_oauth_accounts_user_id ON oauth_accounts(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating oauth_accounts table: %w", err)
	}

	// token_hash is the primary key: exactly one row per fingerprint, and
	// DeleteByHash is a single-row compare-and-delete.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id);
		CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating refresh_tokens table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS chat_history (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_chat_history_session_id ON chat_history(session_id);
	`)
	if err != nil {
		return fmt.Errorf("creating chat_history table: %w", err)
	}

	return nil
}
