package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateConversation creates an empty conversation owned by ownerID, using
// the given model configuration ID. A non-empty systemPrompt is stored as
// the single leading system message. folderID may be nil for an unfiled
// conversation.
func (s *Store) CreateConversation(ctx context.Context, ownerID int64, folderID *string, model, systemPrompt string) (*Conversation, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if folderID != nil {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders WHERE id = ? AND owner_id = ?`, *folderID, ownerID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check folder: %w", err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("folder %s: %w", *folderID, ErrNotFound)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, folder_id, title, model, token_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, ownerID, folderID, DefaultTitle, model, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	conv := &Conversation{
		ID:         id,
		OwnerID:    ownerID,
		FolderID:   folderID,
		Title:      DefaultTitle,
		Model:      model,
		TokenCount: 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if systemPrompt != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, 'system', ?, ?)`,
			id, systemPrompt, now)
		if err != nil {
			return nil, fmt.Errorf("failed to store system message: %w", err)
		}
		conv.Messages = []ChatMessage{{ConversationID: id, Role: "system", Content: systemPrompt, CreatedAt: now}}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return conv, nil
}

// GetConversation returns the conversation with its full ordered history.
// A non-zero ownerID scopes the lookup: another owner's conversation is
// indistinguishable from a missing one. ownerID of 0 skips the check
// (single-user installs and internal callers).
func (s *Store) GetConversation(ctx context.Context, ownerID int64, id string) (*Conversation, error) {
	query := `
		SELECT id, owner_id, folder_id, title, model, token_count,
		       sentiment, tags, language, status, rating, confidence, intent, entities,
		       created_at, updated_at
		FROM conversations WHERE id = ?`
	args := []interface{}{id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	conv, err := s.scanConversation(ctx, s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return conv, nil
}

// ListConversations returns summary rows ordered by updated_at descending.
// ownerID of 0 lists every conversation (single-user installs).
func (s *Store) ListConversations(ctx context.Context, ownerID int64) ([]ConversationSummary, error) {
	query := `
		SELECT c.id, c.folder_id, c.title, c.model, c.token_count,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		       c.updated_at
		FROM conversations c`
	args := []interface{}{}
	if ownerID != 0 {
		query += ` WHERE c.owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY c.updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		var folderID sql.NullString
		if err := rows.Scan(&c.ID, &folderID, &c.Title, &c.Model, &c.TokenCount, &c.MessageCount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if folderID.Valid {
			c.FolderID = &folderID.String
		}
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return summaries, nil
}

// AppendTurn atomically appends one user message and one assistant message,
// sets the new token count and advances updated_at. Either the whole turn
// lands or nothing does; this is the serialization point for concurrent
// turns against the same conversation.
func (s *Store) AppendTurn(ctx context.Context, id, userContent, assistantContent string, newTokenCount int64) (*Conversation, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET token_count = ?, updated_at = ? WHERE id = ?`,
		newTokenCount, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	// User message first, assistant second; message ids define turn order
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, 'user', ?, ?)`,
		id, userContent, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, 'assistant', ?, ?)`,
		id, assistantContent, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	conv, err := s.scanConversation(ctx, tx.QueryRowContext(ctx, `
		SELECT id, owner_id, folder_id, title, model, token_count,
		       sentiment, tags, language, status, rating, confidence, intent, entities,
		       created_at, updated_at
		FROM conversations WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return conv, nil
}

// UpdateTitle renames a conversation and advances updated_at. A non-zero
// ownerID restricts the update to that owner's conversation.
func (s *Store) UpdateTitle(ctx context.Context, ownerID int64, id, title string) error {
	query := `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`
	args := []interface{}{title, time.Now().UTC(), id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// MoveConversation attaches a conversation to a folder, or detaches it
// when folderID is nil. The folder check and the update share one
// transaction so a folder deleted in between surfaces as ErrNotFound, not
// an FK failure. A non-zero ownerID scopes both the folder and the
// conversation to that owner.
func (s *Store) MoveConversation(ctx context.Context, ownerID int64, id string, folderID *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if folderID != nil {
		query := `SELECT COUNT(*) FROM folders WHERE id = ?`
		args := []interface{}{*folderID}
		if ownerID != 0 {
			query += ` AND owner_id = ?`
			args = append(args, ownerID)
		}
		var exists int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check folder: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("folder %s: %w", *folderID, ErrNotFound)
		}
	}

	query := `UPDATE conversations SET folder_id = ? WHERE id = ?`
	args := []interface{}{folderID, id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to move conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages. A second
// delete of the same ID reports ErrNotFound, never a crash. A non-zero
// ownerID restricts the delete to that owner's conversation.
func (s *Store) DeleteConversation(ctx context.Context, ownerID int64, id string) error {
	query := `DELETE FROM conversations WHERE id = ?`
	args := []interface{}{id}
	if ownerID != 0 {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// AnnotateConversation sets the optional classification fields carried in
// ann. Only non-nil fields are written.
func (s *Store) AnnotateConversation(ctx context.Context, id string, ann Annotations) error {
	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if ann.Sentiment != nil {
		add("sentiment", *ann.Sentiment)
	}
	if ann.Tags != nil {
		add("tags", strings.Join(ann.Tags, ","))
	}
	if ann.Language != nil {
		add("language", *ann.Language)
	}
	if ann.Status != nil {
		add("status", *ann.Status)
	}
	if ann.Rating != nil {
		add("rating", *ann.Rating)
	}
	if ann.Confidence != nil {
		add("confidence", *ann.Confidence)
	}
	if ann.Intent != nil {
		add("intent", *ann.Intent)
	}
	if ann.Entities != nil {
		add("entities", *ann.Entities)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to annotate conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner covers *sql.Row and the row shape returned inside transactions
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanConversation(_ context.Context, row rowScanner) (*Conversation, error) {
	var c Conversation
	var folderID, sentiment, tags, language, status, intent, entities sql.NullString
	var rating sql.NullInt64
	var confidence sql.NullFloat64

	err := row.Scan(&c.ID, &c.OwnerID, &folderID, &c.Title, &c.Model, &c.TokenCount,
		&sentiment, &tags, &language, &status, &rating, &confidence, &intent, &entities,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if folderID.Valid {
		c.FolderID = &folderID.String
	}
	if sentiment.Valid {
		c.Annotations.Sentiment = &sentiment.String
	}
	if tags.Valid && tags.String != "" {
		c.Annotations.Tags = strings.Split(tags.String, ",")
	}
	if language.Valid {
		c.Annotations.Language = &language.String
	}
	if status.Valid {
		c.Annotations.Status = &status.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		c.Annotations.Rating = &v
	}
	if confidence.Valid {
		c.Annotations.Confidence = &confidence.Float64
	}
	if intent.Valid {
		c.Annotations.Intent = &intent.String
	}
	if entities.Valid {
		c.Annotations.Entities = &entities.String
	}

	return &c, nil
}
