// Package db owns the SQLite requisition store schema: requisition headers
// and reservation lines, plus local users, sessions, and the audit log.
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at path, configures the
// connection pool for WAL concurrency, and runs migrations.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	// SQLite handles one writer plus multiple readers under WAL.
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(0)

	// Some drivers don't parse connection string params; set explicitly.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Migrate creates all tables and indexes if they do not exist.
func Migrate(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
			id TEXT PRIMARY KEY,
			document_number TEXT NOT NULL UNIQUE,
			requested_by TEXT NOT NULL,
			description TEXT DEFAULT '',
			total_items INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			purchase_id TEXT NOT NULL,
			item_key TEXT NOT NULL,
			item_id INTEGER DEFAULT 0,
			business_unit TEXT DEFAULT '',
			requested_qty INTEGER NOT NULL CHECK(requested_qty > 0),
			qty_to_fulfill INTEGER NOT NULL CHECK(qty_to_fulfill > 0),
			available_qty TEXT NOT NULL DEFAULT '0',
			initial_on_hand TEXT NOT NULL,
			fulfilled INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (purchase_id) REFERENCES purchases(id) ON DELETE CASCADE
		)`,
		// One outstanding reservation per item across the whole organization.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_outstanding
			ON purchase_items(item_key) WHERE fulfilled = 0`,
		`CREATE INDEX IF NOT EXISTS idx_items_purchase ON purchase_items(purchase_id)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			email TEXT DEFAULT '',
			role TEXT DEFAULT 'user',
			active INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'cookie' CHECK(kind IN ('cookie','bearer')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			module TEXT NOT NULL,
			record_id TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, s := range stmts {
		if _, err := conn.Exec(s); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

// Seed creates the default admin account when no users exist.
func Seed(conn *sql.DB) error {
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = conn.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, 'admin')",
		"admin", string(hash))
	return err
}
