package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the messaging schema.
// The members table is owned by the membership system; it is created here
// only so a fresh database can boot.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id          BIGSERIAL    PRIMARY KEY,
			user_id     VARCHAR(128) UNIQUE,
			first_name  VARCHAR(100) NOT NULL DEFAULT '',
			last_name   VARCHAR(100) NOT NULL DEFAULT '',
			email       VARCHAR(255) NOT NULL DEFAULT '',
			photo_url   TEXT,
			is_admin    BOOLEAN      NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                  BIGSERIAL    PRIMARY KEY,
			subject             TEXT         NOT NULL DEFAULT '',
			body                TEXT         NOT NULL,
			created_at          TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			author_user_id      VARCHAR(128) NOT NULL,
			author_member_id    BIGINT       REFERENCES members(id),
			is_broadcast        BOOLEAN      NOT NULL DEFAULT FALSE,
			delivery_state      VARCHAR(16)  NOT NULL DEFAULT 'pending',
			intended_recipients INTEGER      NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS message_recipients (
			id                  BIGSERIAL   PRIMARY KEY,
			message_id          BIGINT      NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			recipient_member_id BIGINT      NOT NULL REFERENCES members(id),
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			read_at             TIMESTAMPTZ,
			UNIQUE (message_id, recipient_member_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_admin ON members(is_admin)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_author_member ON messages(author_member_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_author_user ON messages(author_user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(delivery_state, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_recipients_member ON message_recipients(recipient_member_id, read_at)`,

		// Bulk read marker invoked as a named procedure so the whole
		// conversation flips in one statement.
		`CREATE OR REPLACE FUNCTION mark_conversation_read(p_recipient BIGINT, p_author BIGINT, p_at TIMESTAMPTZ)
		RETURNS SETOF BIGINT
		LANGUAGE sql
		AS $$
			UPDATE message_recipients mr
			SET read_at = p_at
			FROM messages m
			WHERE mr.message_id = m.id
			  AND mr.recipient_member_id = p_recipient
			  AND m.author_member_id = p_author
			  AND mr.read_at IS NULL
			RETURNING mr.id
		$$`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
