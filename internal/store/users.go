package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertUser records a verified identity. The email of an existing user is
// refreshed; the name is only overwritten when a new one is supplied.
func (s *Store) UpsertUser(ctx context.Context, id, email, name string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             email = excluded.email,
             name = COALESCE(excluded.name, users.name)`,
		id, strings.TrimSpace(email), nullableString(strings.TrimSpace(name)), s.timestamp(),
	); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		user    User
		name    sql.NullString
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, name, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Email, &name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.Name = name.String
	user.CreatedAt = parseTime(created)
	return &user, nil
}
