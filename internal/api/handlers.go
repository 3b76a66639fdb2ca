package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"parlor/internal/auth"
	"parlor/internal/store"
)

// conversationView is the JSON shape of a conversation with history
type conversationView struct {
	ID         string        `json:"id"`
	FolderID   *string       `json:"folder_id"`
	Title      string        `json:"title"`
	Model      string        `json:"model"`
	TokenCount int64         `json:"token_count"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	History    []messageView `json:"history"`
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// summaryView is the JSON shape of a conversation list row
type summaryView struct {
	ID           string    `json:"id"`
	FolderID     *string   `json:"folder_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	TokenCount   int64     `json:"token_count"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func viewConversation(c *store.Conversation) conversationView {
	v := conversationView{
		ID:         c.ID,
		FolderID:   c.FolderID,
		Title:      c.Title,
		Model:      c.Model,
		TokenCount: c.TokenCount,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		History:    make([]messageView, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		v.History = append(v.History, messageView{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	return v
}

// handleCreateConversation creates an empty conversation, optionally inside
// a folder and with an explicit model configuration.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID     *string `json:"folder_id"`
		Model        string  `json:"model"`
		SystemPrompt string  `json:"system_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	model := req.Model
	if model == "" {
		model = s.config.DefaultModel
	}

	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	conv, err := s.store.CreateConversation(r.Context(), userID, req.FolderID, model, req.SystemPrompt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewConversation(conv))
}

// handleListConversations returns summaries ordered by recency.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	summaries, err := s.store.ListConversations(r.Context(), owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]summaryView, 0, len(summaries))
	for _, c := range summaries {
		views = append(views, summaryView{
			ID:           c.ID,
			FolderID:     c.FolderID,
			Title:        c.Title,
			Model:        c.Model,
			TokenCount:   c.TokenCount,
			MessageCount: c.MessageCount,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetConversation returns a conversation with its full history.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	conv, err := s.store.GetConversation(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewConversation(conv))
}

// handleRenameConversation sets a user-assigned title.
func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title required")
		return
	}

	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := s.store.UpdateTitle(r.Context(), owner, r.PathValue("id"), strings.TrimSpace(req.Title)); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteConversation deletes a conversation; a repeated delete gets
// 404, not a crash.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := s.store.DeleteConversation(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveConversation attaches the conversation to a folder (or detaches
// it with a null folder_id).
func (s *Server) handleMoveConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FolderID *string `json:"folder_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := s.store.MoveConversation(r.Context(), owner, r.PathValue("id"), req.FolderID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendTurn runs one chat turn through the orchestrator.
func (s *Server) handleSendTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	result, err := s.orchestrator.SendTurn(r.Context(), owner, r.PathValue("id"), req.Text)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assistant_text": result.AssistantText,
		"title":          result.Title,
		"token_count":    result.TokenCount,
	})
}
