package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaComplete(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":           map[string]string{"role": "assistant", "content": "hello back"},
			"prompt_eval_count": 15,
			"eval_count":        7,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL)
	completion, err := p.Complete(context.Background(), Request{
		Model:       "llama3",
		Temperature: 0.7,
		MaxTokens:   256,
		Messages:    []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Content != "hello back" {
		t.Errorf("Unexpected content %q", completion.Content)
	}
	if completion.Usage.TotalTokens != 22 || completion.Usage.Estimated {
		t.Errorf("Unexpected usage %+v", completion.Usage)
	}

	if captured["stream"] != false {
		t.Error("Streaming must be disabled")
	}
	opts, _ := captured["options"].(map[string]interface{})
	if opts == nil || opts["num_predict"] != float64(256) {
		t.Errorf("Expected num_predict in options, got %v", captured["options"])
	}
}

func TestOllamaErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"server error", http.StatusInternalServerError, KindUnavailable},
		{"bad request", http.StatusBadRequest, KindRejected},
		{"gateway timeout", http.StatusGatewayTimeout, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"secret internal detail"}`, tt.status)
			}))
			defer server.Close()

			p := NewOllamaProvider(server.URL)
			_, err := p.Complete(context.Background(), Request{Model: "llama3"})
			if err == nil {
				t.Fatal("Expected error")
			}
			kind, ok := KindOf(err)
			if !ok || kind != tt.want {
				t.Errorf("Expected kind %s, got %v (%v)", tt.want, kind, err)
			}
			// Upstream payloads stay out of the error surface
			if strings.Contains(err.Error(), "secret internal detail") {
				t.Errorf("Raw upstream payload leaked into error: %q", err)
			}
		})
	}
}

func TestOllamaTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	p := NewOllamaProvider(server.URL)
	_, err := p.Complete(context.Background(), Request{Model: "llama3"})
	kind, ok := KindOf(err)
	if !ok || kind != KindUnavailable {
		t.Errorf("Expected unavailable for refused connection, got %v (%v)", kind, err)
	}
}

func TestOllamaContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client giving up
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, Request{Model: "llama3"})
	kind, ok := KindOf(err)
	if !ok || kind != KindTimeout {
		t.Errorf("Expected timeout kind, got %v (%v)", kind, err)
	}
}

func TestAnthropicComplete(t *testing.T) {
	var captured struct {
		Model     string              `json:"model"`
		System    string              `json:"system"`
		MaxTokens int                 `json:"max_tokens"`
		Messages  []map[string]string `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" {
			t.Error("Missing API key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "part one "},
				{"type": "text", "text": "part two"},
			},
			"usage": map[string]int{"input_tokens": 30, "output_tokens": 10},
		})
	}))
	defer server.Close()

	p := NewAnthropicProvider("sk-ant-test", server.URL)
	completion, err := p.Complete(context.Background(), Request{
		Model: "claude-3-5-haiku-latest",
		Messages: []Message{
			{Role: RoleSystem, Content: "Be terse."},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Content != "part one part two" {
		t.Errorf("Expected concatenated text blocks, got %q", completion.Content)
	}
	if completion.Usage.PromptTokens != 30 || completion.Usage.CompletionTokens != 10 || completion.Usage.TotalTokens != 40 {
		t.Errorf("Unexpected usage %+v", completion.Usage)
	}

	// The system prompt moves to the top-level field, out of the messages
	if captured.System != "Be terse." {
		t.Errorf("Expected system field, got %q", captured.System)
	}
	for _, m := range captured.Messages {
		if m["role"] == RoleSystem {
			t.Error("System message leaked into the message list")
		}
	}
	if captured.MaxTokens != 4096 {
		t.Errorf("Expected default max_tokens 4096, got %d", captured.MaxTokens)
	}
}

func TestAnthropicRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"invalid_request_error","message":"prompt too long"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewAnthropicProvider("sk-ant-test", server.URL)
	_, err := p.Complete(context.Background(), Request{Model: "claude-3-5-haiku-latest"})
	kind, ok := KindOf(err)
	if !ok || kind != KindRejected {
		t.Errorf("Expected rejection, got %v (%v)", kind, err)
	}
	if IsRetryable(err) {
		t.Error("Rejection must not be retryable")
	}
}
