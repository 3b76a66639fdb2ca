package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateFolder creates a folder with a non-empty title.
func (s *Store) CreateFolder(ctx context.Context, ownerID int64, title string) (*Folder, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("folder title must not be empty")
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (id, owner_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	return &Folder{ID: id, OwnerID: ownerID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetFolder returns a single folder by ID. A non-zero ownerID scopes the
// lookup: another owner's folder reads as missing.
func (s *Store) GetFolder(ctx context.Context, ownerID int64, id string) (*Folder, error) {
	query := `SELECT id, owner_id, title, created_at, updated_at FROM folders WHERE id = ?`
	args := []interface{}{id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	var f Folder
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&f.ID, &f.OwnerID, &f.Title, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

// ListFolders returns the owner's folders ordered by title. ownerID of 0
// lists every folder.
func (s *Store) ListFolders(ctx context.Context, ownerID int64) ([]Folder, error) {
	query := `SELECT id, owner_id, title, created_at, updated_at FROM folders`
	args := []interface{}{}
	if ownerID != 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY title ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Title, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folders: %w", err)
	}

	return folders, nil
}

// RenameFolder changes a folder's title. A non-zero ownerID restricts the
// update to that owner's folder.
func (s *Store) RenameFolder(ctx context.Context, ownerID int64, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("folder title must not be empty")
	}

	query := `UPDATE folders SET title = ?, updated_at = ? WHERE id = ?`
	args := []interface{}{title, time.Now().UTC(), id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to rename folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteFolder removes a folder. With cascade true the folder's
// conversations and their messages go with it in the same transaction;
// with cascade false a non-empty folder is rejected with ErrFolderNotEmpty.
// A non-zero ownerID restricts the delete to that owner's folder.
func (s *Store) DeleteFolder(ctx context.Context, ownerID int64, id string, cascade bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if ownerID != 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM folders WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check folder: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE folder_id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to count folder conversations: %w", err)
	}

	if count > 0 {
		if !cascade {
			return fmt.Errorf("folder %s has %d conversations: %w", id, count, ErrFolderNotEmpty)
		}
		// Message rows follow via ON DELETE CASCADE
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE folder_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete folder conversations: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
