package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"clubdesk/internal/config"
	"clubdesk/internal/domain"
	"clubdesk/internal/security"
	"clubdesk/internal/store"
)

type seedMember struct {
	UserID    string
	FirstName string
	LastName  string
	Email     string
	IsAdmin   bool
}

var seedMembers = []seedMember{
	{"staff-coach", "Coach", "Rivera", "coach@clubdesk.test", true},
	{"staff-desk", "Front", "Desk", "desk@clubdesk.test", true},
	{"member-ana", "Ana", "Silva", "ana@clubdesk.test", false},
	{"member-ben", "Ben", "Okafor", "ben@clubdesk.test", false},
	{"member-chloe", "Chloe", "Martin", "chloe@clubdesk.test", false},
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	repos, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer repos.DB.Close()

	existing, err := repos.Members.ListAllIDs(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	if len(existing) > 0 && os.Getenv("FORCE_SEED") != "true" {
		log.Printf("members already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	return seed(ctx, repos.Members, tokens, seedMembers, os.Stdout)
}

// seed creates the members that do not exist yet and prints a token for
// every seed account, new or existing.
func seed(ctx context.Context, members store.MemberStore, tokens *security.TokenService, list []seedMember, out io.Writer) error {
	for _, sm := range list {
		m, err := members.GetByUserID(ctx, sm.UserID)
		switch {
		case err == nil:
			log.Printf("member %s already exists (id %d)", sm.UserID, m.ID)
		case errors.Is(err, domain.ErrNotFound):
			userID := sm.UserID
			m = &domain.Member{
				UserID:    &userID,
				FirstName: sm.FirstName,
				LastName:  sm.LastName,
				Email:     sm.Email,
				IsAdmin:   sm.IsAdmin,
			}
			if err := members.Create(ctx, m); err != nil {
				return fmt.Errorf("create member %s: %w", sm.Email, err)
			}
		default:
			return fmt.Errorf("look up member %s: %w", sm.UserID, err)
		}

		token, err := tokens.CreateForUser(sm.UserID)
		if err != nil {
			return fmt.Errorf("token for %s: %w", sm.UserID, err)
		}
		fmt.Fprintf(out, "%-4d %-22s admin=%-5t %s\n", m.ID, sm.Email, m.IsAdmin, token)
	}
	return nil
}
