package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleLogin authenticates credentials and issues a session token as both
// a JSON field and an HTTP-only cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and password required")
		return
	}

	token, err := s.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// Same answer for unknown user and wrong password
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleLogout invalidates the caller's session token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if cookie, err := r.Cookie("session_token"); err == nil {
		token = cookie.Value
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "no session token")
		return
	}

	if err := s.authn.Logout(r.Context(), token); err != nil {
		s.writeDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
