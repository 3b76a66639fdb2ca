package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Sentinel errors surfaced to callers. Wrapped errors are checked with
// errors.Is.
var (
	// ErrNotFound is returned when a conversation, folder or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrFolderNotEmpty is returned by DeleteFolder under the "block" policy
	// when the folder still holds conversations.
	ErrFolderNotEmpty = errors.New("folder not empty")
)

// Store provides database operations for Parlor
type Store struct {
	db       *sql.DB
	userMode string // "single" or "multi"
}

// NewStore creates a new Store instance and initializes the database
func NewStore(path string, userMode string) (*Store, error) {
	// WAL mode for concurrent access, busy timeout for write contention,
	// foreign keys on so folder/conversation/message edges are enforced
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:       db,
		userMode: userMode,
	}

	if err := store.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
