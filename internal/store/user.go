package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"
)

// randomToken generates a cryptographically secure random token
func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// CreateUser creates a user account with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, email string) (*User, error) {
	now := time.Now().UTC()
	var emailValue interface{}
	if email != "" {
		emailValue = email
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, email, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordHash, emailValue, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	user := &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}
	if email != "" {
		user.Email = sql.NullString{String: email, Valid: true}
	}
	return user, nil
}

// GetUserByUsername returns the user with the given username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email, created_at, last_login FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return &u, nil
}

// UpdateLastLogin records a successful login.
func (s *Store) UpdateLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// CreateSessionToken stores an opaque session token with its expiry.
func (s *Store) CreateSessionToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session token: %w", err)
	}
	return nil
}

// GetSessionToken returns a live session token, or nil if the token is
// unknown or expired. Expired rows are removed on sight.
func (s *Store) GetSessionToken(ctx context.Context, token string) (*SessionToken, error) {
	var t SessionToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM session_tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session token: %w", err)
	}

	if time.Now().After(t.ExpiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE token = ?`, token); err != nil {
			return nil, fmt.Errorf("failed to delete expired token: %w", err)
		}
		return nil, nil
	}

	return &t, nil
}

// DeleteSessionToken invalidates a session token.
func (s *Store) DeleteSessionToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}
	return nil
}

// NewSessionToken issues a fresh random session token.
func NewSessionToken() (string, error) {
	return randomToken(32)
}
