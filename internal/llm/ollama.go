package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// OllamaProvider implements the Provider interface for a local Ollama server
type OllamaProvider struct {
	endpoint string
	client   *http.Client
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(endpoint string) *OllamaProvider {
	return &OllamaProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Complete sends a chat request and returns the reply with usage. Ollama
// reports token counts as prompt_eval_count / eval_count.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	logger := log.With().
		Str("provider", ProviderOllama).
		Str("model", req.Model).
		Int("message_count", len(req.Messages)).
		Logger()
	logger.Debug().Msg("starting completion request")

	reqBody := map[string]interface{}{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		reqBody["options"].(map[string]interface{})["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		logger.Error().
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Err(err).
			Msg("completion request failed")
		return nil, &ProviderError{Provider: ProviderOllama, Kind: classifyTransport(err), Message: "transport failure"}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error().
			Int("status", resp.StatusCode).
			Int64("latency_ms", latency).
			Str("body", string(bodyBytes)).
			Msg("completion returned non-OK status")
		return nil, &ProviderError{
			Provider: ProviderOllama,
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Message:  "provider returned an error response",
		}
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int `json:"prompt_eval_count"`
		EvalCount       int `json:"eval_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: ProviderOllama, Kind: KindUnavailable, Message: "failed to decode response"}
	}
	if result.Message.Content == "" {
		return nil, &ProviderError{Provider: ProviderOllama, Kind: KindUnavailable, Message: "empty completion"}
	}

	logger.Debug().
		Int64("latency_ms", latency).
		Int("prompt_tokens", result.PromptEvalCount).
		Int("completion_tokens", result.EvalCount).
		Msg("completion request finished")

	return &Completion{
		Content: result.Message.Content,
		Usage: Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
			TotalTokens:      result.PromptEvalCount + result.EvalCount,
		},
	}, nil
}
