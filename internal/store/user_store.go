package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/inbox-sync/internal/model"
)

// UpsertUser inserts or replaces a directory entry.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u model.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id must not be empty")
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, display_name, email)
		VALUES (:id, :display_name, :email)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email`,
		u,
	)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// ListUsers returns every directory entry ordered by display name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := s.db.SelectContext(ctx, &users,
		"SELECT id, display_name, email FROM users ORDER BY display_name, id")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	return users, nil
}
