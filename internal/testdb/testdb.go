// Package testdb opens a throwaway SQLite database carrying the same
// tables as the MySQL schema.  Repository and service tests use it so
// they exercise real SQL without a running MySQL server.
package testdb

import (
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// schema mirrors internal/database/migrations/00001_init.sql table for
// table and column for column; database.TestSQLiteSchemaMatchesMigration
// fails when they drift.
const schema = `
CREATE TABLE users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'USER',
    plan          TEXT NOT NULL DEFAULT 'free' CHECK (plan IN ('free','pro','attorney')),
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE refresh_tokens (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES users (id),
    token_hash TEXT NOT NULL UNIQUE,
    expires_at DATETIME NOT NULL,
    revoked_at DATETIME NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE payments (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id        INTEGER NOT NULL REFERENCES users (id),
    plan           TEXT NOT NULL,
    amount         DECIMAL(10,2) NOT NULL,
    payment_method TEXT NOT NULL,
    status         TEXT NOT NULL,
    transaction_id TEXT NOT NULL UNIQUE,
    payment_date   DATETIME NOT NULL
);
CREATE TABLE plan_changes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL REFERENCES users (id),
    old_plan   TEXT NOT NULL,
    new_plan   TEXT NOT NULL,
    payment_id INTEGER NULL REFERENCES payments (id),
    reason     TEXT NOT NULL,
    changed_at DATETIME NOT NULL
);
CREATE TABLE document_generation_logs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       INTEGER NOT NULL REFERENCES users (id),
    generated_at  DATETIME NOT NULL,
    document_type TEXT NOT NULL
);
`

// Open returns a fresh database in t's temp dir.  It is closed when
// the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(5000)",
			"journal_mode(WAL)",
			"foreign_keys(1)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
