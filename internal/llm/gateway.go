package llm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ModelConfig describes one entry of the closed set of supported model
// configurations. Conversations reference a config by ID; unknown IDs are
// rejected at context assembly, not silently defaulted.
type ModelConfig struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"` // "openai", "anthropic", "ollama"
	Model           string  `json:"model"`    // provider-side model name
	Temperature     float32 `json:"temperature"`
	SystemPrompt    string  `json:"system_prompt"`
	InputBudget     int     `json:"input_budget"` // max tokens of assembled context
	MaxOutputTokens int     `json:"max_output_tokens"`
	APIKey          string  `json:"api_key"`
	BaseURL         string  `json:"base_url"`
}

// Gateway dispatches completion requests to the provider client configured
// for a model ID. It holds the model registry and is safe for concurrent
// use; Reload swaps the registry on config changes.
type Gateway struct {
	mu        sync.RWMutex
	models    map[string]ModelConfig
	providers map[string]Provider // keyed by model ID

	logger zerolog.Logger
}

// NewGateway builds a gateway from the configured model set. Every entry
// gets its own provider client so per-model credentials and endpoints stay
// independent.
func NewGateway(models []ModelConfig, logger zerolog.Logger) (*Gateway, error) {
	g := &Gateway{logger: logger.With().Str("component", "gateway").Logger()}
	if err := g.Reload(models); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload replaces the model registry. In-flight calls keep using the
// clients they already resolved.
func (g *Gateway) Reload(models []ModelConfig) error {
	if len(models) == 0 {
		return errors.New("at least one model configuration is required")
	}
	next := make(map[string]ModelConfig, len(models))
	clients := make(map[string]Provider, len(models))
	for _, cfg := range models {
		if cfg.ID == "" {
			return errors.New("model configuration missing id")
		}
		if _, dup := next[cfg.ID]; dup {
			return errors.Errorf("duplicate model configuration: %s", cfg.ID)
		}
		p, err := newProvider(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = cfg
		clients[cfg.ID] = p
	}

	g.mu.Lock()
	g.models = next
	g.providers = clients
	g.mu.Unlock()

	g.logger.Info().Int("models", len(next)).Msg("model registry loaded")
	return nil
}

// Model returns the configuration registered under id.
func (g *Gateway) Model(id string) (ModelConfig, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cfg, ok := g.models[id]
	return cfg, ok
}

// ModelIDs returns the IDs of all registered model configurations.
func (g *Gateway) ModelIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.models))
	for id := range g.models {
		ids = append(ids, id)
	}
	return ids
}

// Complete sends the assembled context to the provider configured for
// modelID. The gateway itself never retries.
func (g *Gateway) Complete(ctx context.Context, modelID string, messages []Message) (*Completion, error) {
	g.mu.RLock()
	cfg, ok := g.models[modelID]
	provider := g.providers[modelID]
	g.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown model configuration: %s", modelID)
	}

	completion, err := provider.Complete(ctx, Request{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
		Messages:    messages,
	})
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("model", modelID).
		Int("messages", len(messages)).
		Int("total_tokens", completion.Usage.TotalTokens).
		Msg("completion finished")
	return completion, nil
}
