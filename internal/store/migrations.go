package store

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// runMigrations executes all database migrations in a transaction
func (s *Store) runMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = createUsersTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	if err = createSessionTokensTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create session_tokens table: %w", err)
	}

	if err = createFoldersTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create folders table: %w", err)
	}

	if err = createConversationsTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	if err = createMessagesTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	if err = createIndexes(ctx, tx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	// Single-user installs get a ready-to-use local account
	if s.userMode == "single" {
		if err = ensureLocalDefaultUser(ctx, tx); err != nil {
			return fmt.Errorf("failed to ensure local-default user: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}

func createUsersTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			email TEXT UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_login TIMESTAMP
		)
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func createSessionTokensTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE IF NOT EXISTS session_tokens (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func createFoldersTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL CHECK (title <> ''),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func createConversationsTable(ctx context.Context, tx *sql.Tx) error {
	// folder_id uses ON DELETE RESTRICT: folder deletion decides cascade vs
	// block at the repository level, never implicitly in the schema
	query := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			folder_id TEXT REFERENCES folders(id) ON DELETE RESTRICT,
			title TEXT NOT NULL,
			model TEXT NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0 CHECK (token_count >= 0),
			sentiment TEXT,
			tags TEXT,
			language TEXT,
			status TEXT,
			rating INTEGER,
			confidence REAL,
			intent TEXT,
			entities TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func createMessagesTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func createIndexes(ctx context.Context, tx *sql.Tx) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_folder ON conversations(folder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_folders_owner ON folders(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_tokens_user ON session_tokens(user_id)`,
	}
	for _, query := range indexes {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// ensureLocalDefaultUser creates the local-default account used by
// single-user mode. The random password is never shown; local-default is
// only reachable through the single-user middleware, not login.
func ensureLocalDefaultUser(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = 'local-default'`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	token, err := randomToken(32)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ('local-default', ?)`,
		string(hash))
	return err
}
