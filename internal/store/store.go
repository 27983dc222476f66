// Package store selects the persistence backend named in the configuration.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"clubdesk/internal/config"
	"clubdesk/internal/domain"
	"clubdesk/internal/store/postgres"
	"clubdesk/internal/store/sqlite"
)

// MemberStore is the member repository plus the write used by seeding.
type MemberStore interface {
	domain.MemberRepository
	Create(ctx context.Context, m *domain.Member) error
}

// Repos holds an open database and the repositories built on it.
type Repos struct {
	DB         *sql.DB
	Members    MemberStore
	Messages   domain.MessageRepository
	Recipients domain.RecipientRepository
}

// Open connects to the configured driver and applies migrations.
func Open(cfg *config.Config) (*Repos, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.Postgres.URL())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDatabaseConnection, err)
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Repos{
			DB:         db,
			Members:    postgres.NewMemberRepo(db),
			Messages:   postgres.NewMessageRepo(db),
			Recipients: postgres.NewRecipientRepo(db),
		}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDatabaseConnection, err)
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &Repos{
			DB:         db,
			Members:    sqlite.NewMemberRepo(db),
			Messages:   sqlite.NewMessageRepo(db),
			Recipients: sqlite.NewRecipientRepo(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
