package llm

import (
	"context"

	"github.com/pkg/errors"
)

// Message roles accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage reports the token consumption of a single completion call.
// Estimated is set when the provider did not report usage and the
// counts were derived locally.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// IsZero reports whether the provider returned no usage at all.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Completion is the result of a single model call.
type Completion struct {
	Content string
	Usage   Usage
}

// Request carries the full context for one completion call. Messages is
// the ordered sequence to send: system prompt first (if any), then
// history, then the newest user message.
type Request struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Messages    []Message
}

// Provider defines the interface for AI completion backends. Providers
// never retry on their own; retry policy belongs to the caller.
type Provider interface {
	// Complete sends the assembled context and returns the assistant reply
	// with reported token usage. Failures are *ProviderError values so the
	// caller can tell transient from permanent ones.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Name returns the provider name (e.g. "ollama", "openai", "anthropic")
	Name() string
}

// Provider type identifiers used in model configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// newProvider creates a provider client for a single model configuration.
func newProvider(cfg ModelConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.Errorf("model %s: openai API key is required", cfg.ID)
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, errors.Errorf("model %s: anthropic API key is required", cfg.ID)
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	case ProviderOllama:
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		return NewOllamaProvider(endpoint), nil
	default:
		return nil, errors.Errorf("model %s: unknown provider type: %s", cfg.ID, cfg.Provider)
	}
}
