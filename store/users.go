package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateUser inserts a new user with the given public profile data.
func (db *DB) CreateUser(ctx context.Context, public json.RawMessage) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx, `
		INSERT INTO users (public) VALUES ($1) RETURNING id
	`, public).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// GetUserByID returns a user, or nil if not found.
func (db *DB) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := db.pool.QueryRow(ctx, `
		SELECT id, public, last_seen, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Public, &u.LastSeen, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUserLastSeen stamps the user's last activity time.
func (db *DB) UpdateUserLastSeen(ctx context.Context, userID uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE users SET last_seen = now() WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// UpdateUserPublic replaces the user's public profile data.
func (db *DB) UpdateUserPublic(ctx context.Context, userID uuid.UUID, public json.RawMessage) error {
	_, err := db.pool.Exec(ctx, `
		UPDATE users SET public = $2 WHERE id = $1
	`, userID, public)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// CreateAuthRecord stores one authentication scheme's secret for a user.
func (db *DB) CreateAuthRecord(ctx context.Context, userID uuid.UUID, scheme, secret, username string) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO auth_records (user_id, scheme, secret, username)
		VALUES ($1, $2, $3, $4)
	`, userID, scheme, secret, username)
	if err != nil {
		return fmt.Errorf("failed to create auth record: %w", err)
	}
	return nil
}

// GetAuthByUsername returns the auth record for a username, or nil if none.
func (db *DB) GetAuthByUsername(ctx context.Context, username string) (*AuthRecord, error) {
	var rec AuthRecord
	err := db.pool.QueryRow(ctx, `
		SELECT user_id, scheme, secret, username FROM auth_records WHERE username = $1
	`, username).Scan(&rec.UserID, &rec.Scheme, &rec.Secret, &rec.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth record: %w", err)
	}
	return &rec, nil
}
