package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"parlor/internal/auth"
	"parlor/internal/chat"
	"parlor/internal/store"
)

// multiTestServer runs the full stack in multi-user mode: real store, real
// auth middleware, session tokens per user.
type multiTestServer struct {
	handler http.Handler
	store   *store.Store
	orch    *fakeOrchestrator
	tokens  map[string]string
	userIDs map[string]int64
}

func newMultiTestServer(t *testing.T, usernames ...string) *multiTestServer {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test-parlor-multi-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	st, err := store.NewStore(tmpfile.Name(), "multi")
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		os.Remove(tmpfile.Name())
	})

	provider := auth.NewProvider(st)
	ctx := context.Background()
	tokens := make(map[string]string)
	userIDs := make(map[string]int64)
	for _, name := range usernames {
		hash, err := auth.HashPassword("hunter2")
		if err != nil {
			t.Fatalf("Failed to hash password: %v", err)
		}
		user, err := st.CreateUser(ctx, name, hash, "")
		if err != nil {
			t.Fatalf("Failed to create user %s: %v", name, err)
		}
		token, err := provider.Login(ctx, name, "hunter2")
		if err != nil {
			t.Fatalf("Failed to log in %s: %v", name, err)
		}
		tokens[name] = token
		userIDs[name] = user.ID
	}

	orch := &fakeOrchestrator{result: &chat.TurnResult{AssistantText: "ok", Title: "Titled", TokenCount: 9}}
	server := NewServer(st, orch, provider, NewWebSocketHub(), &ServerConfig{DefaultModel: "default", UserMode: "multi"}, zerolog.Nop())
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	return &multiTestServer{
		handler: auth.Middleware(st, provider, "multi")(mux),
		store:   st,
		orch:    orch,
		tokens:  tokens,
		userIDs: userIDs,
	}
}

// doAs performs a request authenticated as the named user.
func (ts *multiTestServer) doAs(t *testing.T, username, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	} else if method != http.MethodGet && method != http.MethodDelete {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.tokens[username])
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestMultiUserConversationIsolation(t *testing.T) {
	ts := newMultiTestServer(t, "alice", "bob")
	ctx := context.Background()

	conv, err := ts.store.CreateConversation(ctx, ts.userIDs["alice"], nil, "default", "")
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	t.Run("owner can read it", func(t *testing.T) {
		rec := ts.doAs(t, "alice", http.MethodGet, "/api/conversations/"+conv.ID, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("Expected 200 for the owner, got %d", rec.Code)
		}
	})

	t.Run("another user cannot read it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodGet, "/api/conversations/"+conv.ID, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for a foreign conversation, got %d", rec.Code)
		}
	})

	t.Run("another user cannot rename it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodPatch, "/api/conversations/"+conv.ID, map[string]string{"title": "Hijacked"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 renaming a foreign conversation, got %d", rec.Code)
		}
	})

	t.Run("another user cannot move it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodPost, "/api/conversations/"+conv.ID+"/move", map[string]*string{"folder_id": nil})
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 moving a foreign conversation, got %d", rec.Code)
		}
	})

	t.Run("another user cannot delete it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodDelete, "/api/conversations/"+conv.ID, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 deleting a foreign conversation, got %d", rec.Code)
		}
		if _, err := ts.store.GetConversation(ctx, ts.userIDs["alice"], conv.ID); err != nil {
			t.Errorf("Conversation gone after a foreign delete attempt: %v", err)
		}
	})

	t.Run("lists stay per-user", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodGet, "/api/conversations", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var list []summaryView
		decodeBody(t, rec, &list)
		if len(list) != 0 {
			t.Errorf("Expected no conversations for bob, got %d", len(list))
		}
	})

	t.Run("turns carry the authenticated owner", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]string{"text": "hi"})
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 from the stub orchestrator, got %d", rec.Code)
		}
		if ts.orch.gotOwnerID != ts.userIDs["bob"] {
			t.Errorf("Expected owner %d on the turn, got %d", ts.userIDs["bob"], ts.orch.gotOwnerID)
		}
	})
}

func TestMultiUserFolderIsolation(t *testing.T) {
	ts := newMultiTestServer(t, "alice", "bob")
	ctx := context.Background()

	folder, err := ts.store.CreateFolder(ctx, ts.userIDs["alice"], "Work")
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}

	t.Run("another user cannot rename it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodPatch, "/api/folders/"+folder.ID, map[string]string{"title": "Hijacked"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 renaming a foreign folder, got %d", rec.Code)
		}
	})

	t.Run("another user cannot delete it", func(t *testing.T) {
		rec := ts.doAs(t, "bob", http.MethodDelete, "/api/folders/"+folder.ID, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 deleting a foreign folder, got %d", rec.Code)
		}
		if _, err := ts.store.GetFolder(ctx, ts.userIDs["alice"], folder.ID); err != nil {
			t.Errorf("Folder gone after a foreign delete attempt: %v", err)
		}
	})
}
