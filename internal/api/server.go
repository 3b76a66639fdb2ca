package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"parlor/internal/auth"
	"parlor/internal/chat"
	"parlor/internal/llm"
	"parlor/internal/store"
)

// Store is the persistence surface the API needs.
type Store interface {
	CreateFolder(ctx context.Context, ownerID int64, title string) (*store.Folder, error)
	ListFolders(ctx context.Context, ownerID int64) ([]store.Folder, error)
	RenameFolder(ctx context.Context, ownerID int64, id, title string) error
	DeleteFolder(ctx context.Context, ownerID int64, id string, cascade bool) error

	CreateConversation(ctx context.Context, ownerID int64, folderID *string, model, systemPrompt string) (*store.Conversation, error)
	GetConversation(ctx context.Context, ownerID int64, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID int64) ([]store.ConversationSummary, error)
	UpdateTitle(ctx context.Context, ownerID int64, id, title string) error
	MoveConversation(ctx context.Context, ownerID int64, id string, folderID *string) error
	DeleteConversation(ctx context.Context, ownerID int64, id string) error
}

// Orchestrator drives chat turns.
type Orchestrator interface {
	SendTurn(ctx context.Context, ownerID int64, conversationID, userText string) (*chat.TurnResult, error)
}

// Authenticator handles login and logout.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
}

// ServerConfig holds server behavior toggles.
type ServerConfig struct {
	// CascadeFolderDelete selects the folder deletion policy.
	CascadeFolderDelete bool
	// DefaultModel is the model configuration ID assigned to new
	// conversations that don't name one.
	DefaultModel string
	// UserMode is "single" or "multi"; in single mode list endpoints are
	// not owner-scoped.
	UserMode string
}

// Server holds dependencies and provides HTTP handlers
type Server struct {
	store        Store
	orchestrator Orchestrator
	authn        Authenticator
	hub          *WebSocketHub
	config       *ServerConfig
	logger       zerolog.Logger
}

// NewServer creates a server with dependencies. The hub is shared with the
// orchestrator, which uses it to push title updates.
func NewServer(st Store, orch Orchestrator, authn Authenticator, hub *WebSocketHub, config *ServerConfig, logger zerolog.Logger) *Server {
	return &Server{
		store:        st,
		orchestrator: orch,
		authn:        authn,
		hub:          hub,
		config:       config,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes sets up all HTTP routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/move", s.handleMoveConversation)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleSendTurn)

	mux.HandleFunc("POST /api/folders", s.handleCreateFolder)
	mux.HandleFunc("GET /api/folders", s.handleListFolders)
	mux.HandleFunc("PATCH /api/folders/{id}", s.handleRenameFolder)
	mux.HandleFunc("DELETE /api/folders/{id}", s.handleDeleteFolder)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownerID resolves the owner scope for the request. Multi-user installs
// scope every operation to the authenticated user and fail closed when no
// identity is on the context; single-user installs run unscoped.
func (s *Server) ownerID(r *http.Request) (int64, error) {
	if s.config.UserMode != "multi" {
		return 0, nil
	}
	return auth.UserIDFromContext(r.Context())
}

// errorBody is the stable error envelope: a machine-readable kind plus a
// short human message. Provider payloads and credentials never appear here.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeDomainError maps domain errors onto stable HTTP statuses and kinds.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, store.ErrFolderNotEmpty):
		writeError(w, http.StatusConflict, "folder_not_empty", "folder still contains conversations")
	case errors.Is(err, chat.ErrConversationBusy):
		writeError(w, http.StatusConflict, "conversation_busy", "a turn is already in flight; retry shortly")
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message text must not be empty")
	case errors.Is(err, chat.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, "unknown_model", "conversation references an unknown model configuration")
	default:
		if kind, ok := llm.KindOf(err); ok {
			switch kind {
			case llm.KindTimeout:
				writeError(w, http.StatusGatewayTimeout, kind.String(), "the model did not answer in time")
			case llm.KindRejected:
				writeError(w, http.StatusUnprocessableEntity, kind.String(), "the model rejected the request")
			default:
				writeError(w, http.StatusBadGateway, kind.String(), "the model is currently unavailable")
			}
			return
		}
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
