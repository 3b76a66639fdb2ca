package store

import (
	"database/sql"
	"time"
)

// DefaultTitle is the placeholder assigned to new conversations until the
// summarizer replaces it after the first turn.
const DefaultTitle = "New Chat"

// Folder groups conversations for one owner
type Folder struct {
	ID        string
	OwnerID   int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation is one chat thread. Messages is only populated by
// GetConversation; list operations return summaries without bodies.
type Conversation struct {
	ID          string
	OwnerID     int64
	FolderID    *string
	Title       string
	Model       string // model configuration ID
	TokenCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Messages    []ChatMessage
	Annotations Annotations
}

// ConversationSummary is a list row for the sidebar
type ConversationSummary struct {
	ID           string
	FolderID     *string
	Title        string
	Model        string
	TokenCount   int64
	MessageCount int
	UpdatedAt    time.Time
}

// ChatMessage is a single message within a conversation
type ChatMessage struct {
	ID             int64
	ConversationID string
	Role           string // "system", "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Annotations carries optional write-once-per-update classification fields.
// Nil pointers leave the stored value untouched.
type Annotations struct {
	Sentiment  *string
	Tags       []string
	Language   *string
	Status     *string
	Rating     *int
	Confidence *float64
	Intent     *string
	Entities   *string // JSON-encoded entity list
}

// User represents a user account
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        sql.NullString
	CreatedAt    time.Time
	LastLogin    time.Time
}

// SessionToken represents an authentication session token
type SessionToken struct {
	Token     string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
