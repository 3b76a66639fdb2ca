package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// UserIDKey is the context key for storing user_id in request context
const UserIDKey contextKey = "user_id"

// Middleware creates HTTP middleware for authentication.
// In single-user mode the local-default user is injected automatically;
// in multi-user mode a session token is required.
func Middleware(st Store, provider *Provider, userMode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if userMode == "single" {
				user, err := st.GetUserByUsername(r.Context(), "local-default")
				if err != nil {
					http.Error(w, "System error: local-default user not found", http.StatusInternalServerError)
					return
				}
				ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := extractToken(r)
			if token == "" {
				http.Error(w, "Unauthorized: authentication required", http.StatusUnauthorized)
				return
			}

			userID, err := provider.ValidateToken(r.Context(), token)
			if err != nil {
				http.Error(w, "Unauthorized: invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user's ID.
func UserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	if !ok {
		return 0, ErrUserIDNotFound
	}
	return userID, nil
}

// extractToken extracts the session token from the request.
// Checks the Authorization header with "Bearer " prefix first, then the
// session cookie.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("session_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// isPublicEndpoint reports whether the path skips authentication
func isPublicEndpoint(path string) bool {
	public := []string{"/api/login", "/healthz"}
	for _, p := range public {
		if path == p {
			return true
		}
	}
	return false
}
