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

const anthropicVersion = "2023-06-01"

// AnthropicProvider implements the Provider interface for Anthropic Claude
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Complete sends a messages request and returns the reply with usage.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	logger := log.With().
		Str("provider", ProviderAnthropic).
		Str("model", req.Model).
		Int("message_count", len(req.Messages)).
		Logger()
	logger.Debug().Msg("starting completion request")

	// Anthropic wants the system prompt outside the message list
	var system string
	messages := make([]map[string]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = msg.Content
			continue
		}
		messages = append(messages, map[string]string{
			"role":    msg.Role,
			"content": msg.Content,
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	reqBody := map[string]interface{}{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if system != "" {
		reqBody["system"] = system
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		logger.Error().
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Err(err).
			Msg("completion request failed")
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: classifyTransport(err), Message: "transport failure"}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		// Provider error payloads are logged, never surfaced to callers.
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error().
			Int("status", resp.StatusCode).
			Int64("latency_ms", latency).
			Str("body", string(bodyBytes)).
			Msg("completion returned non-OK status")
		return nil, &ProviderError{
			Provider: ProviderAnthropic,
			Kind:     classifyStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Message:  "provider returned an error response",
		}
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: KindUnavailable, Message: "failed to decode response"}
	}

	var content string
	for _, block := range result.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return nil, &ProviderError{Provider: ProviderAnthropic, Kind: KindUnavailable, Message: "empty completion"}
	}

	logger.Debug().
		Int64("latency_ms", latency).
		Int("input_tokens", result.Usage.InputTokens).
		Int("output_tokens", result.Usage.OutputTokens).
		Msg("completion request finished")

	return &Completion{
		Content: content,
		Usage: Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}, nil
}
