// Package sqlite implements the account repository on an embedded SQLite
// database via modernc.org/sqlite (pure Go, no CGo). A single file serves a
// single-server deployment; tests use ":memory:".
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DB wraps the connection pool and implements repository.AccountRepository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, verifies the connection and runs
// migrations. WAL mode keeps readers unblocked while a link is being written.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// absolute_uid is the upstream identity and the only lookup key the
	// service ever uses. All legacy fields default to empty: a record may be
	// classic-only, 2.0-only or both.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id               TEXT PRIMARY KEY,
			absolute_uid     INTEGER NOT NULL UNIQUE,
			classic_email    TEXT NOT NULL DEFAULT '',
			classic_mirror   TEXT NOT NULL DEFAULT '',
			classic_cookie   TEXT NOT NULL DEFAULT '',
			twopointoh_email TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}
	return nil
}
