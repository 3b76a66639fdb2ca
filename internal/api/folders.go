package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"parlor/internal/auth"
)

type folderView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleCreateFolder creates a folder with a non-empty title.
func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title required")
		return
	}

	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	folder, err := s.store.CreateFolder(r.Context(), userID, req.Title)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, folderView{
		ID:        folder.ID,
		Title:     folder.Title,
		CreatedAt: folder.CreatedAt,
		UpdatedAt: folder.UpdatedAt,
	})
}

// handleListFolders returns the caller's folders.
func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	folders, err := s.store.ListFolders(r.Context(), owner)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	views := make([]folderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, folderView{ID: f.ID, Title: f.Title, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleRenameFolder changes a folder title.
func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
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

	if err := s.store.RenameFolder(r.Context(), owner, r.PathValue("id"), req.Title); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteFolder removes a folder under the configured policy: blocked
// when non-empty, or cascading to its conversations.
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	owner, err := s.ownerID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	if err := s.store.DeleteFolder(r.Context(), owner, r.PathValue("id"), s.config.CascadeFolderDelete); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
