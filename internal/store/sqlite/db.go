package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN. Foreign keys are
// enabled through the DSN so every pooled connection enforces them.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Migrate creates the messaging schema. Mirrors the Postgres layout; the
// bulk read marker is a plain UPDATE here since SQLite has no procedures.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id INTEGER PRIMARY KEY,
			user_id VARCHAR(128) UNIQUE,
			first_name VARCHAR(100) NOT NULL DEFAULT '',
			last_name VARCHAR(100) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			photo_url TEXT DEFAULT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			author_user_id VARCHAR(128) NOT NULL,
			author_member_id INTEGER DEFAULT NULL,
			is_broadcast BOOLEAN NOT NULL DEFAULT 0,
			delivery_state VARCHAR(16) NOT NULL DEFAULT 'pending',
			intended_recipients INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (author_member_id) REFERENCES members(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_recipients (
			id INTEGER PRIMARY KEY,
			message_id INTEGER NOT NULL,
			recipient_member_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			read_at DATETIME DEFAULT NULL,
			UNIQUE (message_id, recipient_member_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE,
			FOREIGN KEY (recipient_member_id) REFERENCES members(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_author_member ON messages(author_member_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_author_user ON messages(author_user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(delivery_state, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_recipients_member ON message_recipients(recipient_member_id, read_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
