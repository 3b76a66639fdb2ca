package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"parlor/internal/store"
)

// Common errors
var (
	ErrUserIDNotFound     = errors.New("user_id not found in context")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// sessionTTL is how long an issued session token stays valid.
const sessionTTL = 24 * time.Hour

// Store defines the database operations needed by the auth provider
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	UpdateLastLogin(ctx context.Context, userID int64) error
	CreateSessionToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	GetSessionToken(ctx context.Context, token string) (*store.SessionToken, error)
	DeleteSessionToken(ctx context.Context, token string) error
}

// Provider authenticates credentials and manages session tokens
type Provider struct {
	store Store
}

// NewProvider creates an auth provider backed by the given store
func NewProvider(st Store) *Provider {
	return &Provider{store: st}
}

// Login authenticates credentials and returns a session token
func (p *Provider) Login(ctx context.Context, username, password string) (string, error) {
	user, err := p.store.GetUserByUsername(ctx, username)
	if err != nil {
		// Same error for unknown user and bad password
		return "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	token, err := store.NewSessionToken()
	if err != nil {
		return "", err
	}
	if err := p.store.CreateSessionToken(ctx, token, user.ID, time.Now().Add(sessionTTL)); err != nil {
		return "", err
	}
	if err := p.store.UpdateLastLogin(ctx, user.ID); err != nil {
		return "", err
	}
	return token, nil
}

// Logout invalidates a session token
func (p *Provider) Logout(ctx context.Context, token string) error {
	return p.store.DeleteSessionToken(ctx, token)
}

// ValidateToken verifies a token and returns the user_id
func (p *Provider) ValidateToken(ctx context.Context, token string) (int64, error) {
	sessionToken, err := p.store.GetSessionToken(ctx, token)
	if err != nil {
		return 0, err
	}
	if sessionToken == nil {
		return 0, errors.New("invalid or expired session")
	}
	return sessionToken.UserID, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
