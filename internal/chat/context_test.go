package chat

import (
	"strings"
	"testing"

	"parlor/internal/llm"
	"parlor/internal/store"
)

func historyMessage(role, content string) store.ChatMessage {
	return store.ChatMessage{Role: role, Content: content}
}

func TestAssembleContextOrdering(t *testing.T) {
	model := llm.ModelConfig{ID: "m", SystemPrompt: "Be concise."}
	history := []store.ChatMessage{
		historyMessage(llm.RoleUser, "first question"),
		historyMessage(llm.RoleAssistant, "first answer"),
	}

	out := AssembleContext(model, history, "second question")

	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "Be concise."},
		{Role: llm.RoleUser, Content: "first question"},
		{Role: llm.RoleAssistant, Content: "first answer"},
		{Role: llm.RoleUser, Content: "second question"},
	}
	if len(out) != len(want) {
		t.Fatalf("Expected %d messages, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Message %d = %+v, want %+v", i, out[i], want[i])
		}
	}
}

func TestAssembleContextStoredSystemWins(t *testing.T) {
	// A system message persisted at conversation creation takes precedence
	// over the model's configured role prompt.
	model := llm.ModelConfig{ID: "m", SystemPrompt: "configured prompt"}
	history := []store.ChatMessage{
		historyMessage(llm.RoleSystem, "stored prompt"),
		historyMessage(llm.RoleUser, "hi"),
		historyMessage(llm.RoleAssistant, "hello"),
	}

	out := AssembleContext(model, history, "next")
	if out[0].Role != llm.RoleSystem || out[0].Content != "stored prompt" {
		t.Errorf("Expected stored system message first, got %+v", out[0])
	}
	for _, m := range out[1:] {
		if m.Role == llm.RoleSystem {
			t.Errorf("Unexpected extra system message: %+v", m)
		}
	}
}

func TestAssembleContextNoSystem(t *testing.T) {
	model := llm.ModelConfig{ID: "m"}
	out := AssembleContext(model, nil, "hello")
	if len(out) != 1 {
		t.Fatalf("Expected just the user message, got %d messages", len(out))
	}
	if out[0].Role != llm.RoleUser || out[0].Content != "hello" {
		t.Errorf("Unexpected message: %+v", out[0])
	}
}

func TestAssembleContextTruncation(t *testing.T) {
	filler := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	model := llm.ModelConfig{ID: "m", SystemPrompt: "Be concise.", InputBudget: 400}

	var history []store.ChatMessage
	for i := 0; i < 10; i++ {
		history = append(history,
			historyMessage(llm.RoleUser, filler),
			historyMessage(llm.RoleAssistant, filler),
		)
	}

	out := AssembleContext(model, history, "what now?")

	if out[0].Role != llm.RoleSystem {
		t.Fatal("System message must survive truncation")
	}
	last := out[len(out)-1]
	if last.Role != llm.RoleUser || last.Content != "what now?" {
		t.Fatalf("Newest user message must survive truncation, got %+v", last)
	}
	if len(out) >= len(history)+2 {
		t.Errorf("Expected truncation to drop history, kept %d of %d messages", len(out), len(history)+2)
	}

	// Whatever history survives must be the newest suffix: the last kept
	// history message is the final assistant reply.
	if len(out) > 2 {
		kept := out[len(out)-2]
		if kept.Role != llm.RoleAssistant {
			t.Errorf("Expected newest history to be kept, last kept message role %q", kept.Role)
		}
	}

	total := 0
	for _, m := range out {
		total += messageTokens(m)
	}
	if total > model.InputBudget+messageTokens(out[0])+messageTokens(last) {
		t.Errorf("Assembled context of %d tokens grossly exceeds budget %d", total, model.InputBudget)
	}
}

func TestAssembleContextTinyBudgetKeepsEssentials(t *testing.T) {
	// Even a budget too small for anything keeps the system message and the
	// new user message.
	model := llm.ModelConfig{ID: "m", SystemPrompt: "Be concise.", InputBudget: 1}
	history := []store.ChatMessage{
		historyMessage(llm.RoleUser, "old"),
		historyMessage(llm.RoleAssistant, "older reply"),
	}

	out := AssembleContext(model, history, "newest")
	if len(out) != 2 {
		t.Fatalf("Expected system + user only, got %d messages", len(out))
	}
	if out[0].Role != llm.RoleSystem || out[1].Content != "newest" {
		t.Errorf("Unexpected essentials: %+v", out)
	}
}

func TestCountTokensFallbackShape(t *testing.T) {
	if countTokens("") != 0 {
		t.Error("Empty string should count zero tokens")
	}
	short := countTokens("hi")
	long := countTokens(strings.Repeat("hello world ", 100))
	if long <= short {
		t.Errorf("Longer text should cost more tokens: %d vs %d", long, short)
	}
}
