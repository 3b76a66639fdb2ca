package llm

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface on top of the official
// chat completions API. A custom base URL makes it usable against any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *go_openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	cfg := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{client: go_openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete sends a chat completion request and returns the reply with usage.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	logger := log.With().
		Str("provider", ProviderOpenAI).
		Str("model", req.Model).
		Int("message_count", len(req.Messages)).
		Logger()
	logger.Debug().Msg("starting completion request")

	messages := make([]go_openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		perr := translateOpenAIError(err)
		logger.Error().
			Int64("latency_ms", latency).
			Str("kind", perr.Kind.String()).
			Int("status", perr.Status).
			Msg("completion request failed")
		return nil, perr
	}

	if len(resp.Choices) == 0 {
		logger.Error().Int64("latency_ms", latency).Msg("completion returned no choices")
		return nil, &ProviderError{Provider: ProviderOpenAI, Kind: KindUnavailable, Message: "no choices returned"}
	}

	logger.Debug().
		Int64("latency_ms", latency).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("completion request finished")

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// translateOpenAIError converts client library errors into the stable
// ProviderError taxonomy. Raw provider payloads stay out of Message.
func translateOpenAIError(err error) *ProviderError {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: ProviderOpenAI,
			Kind:     classifyStatus(apiErr.HTTPStatusCode),
			Status:   apiErr.HTTPStatusCode,
			Message:  "provider rejected the request",
		}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Provider: ProviderOpenAI,
			Kind:     classifyStatus(reqErr.HTTPStatusCode),
			Status:   reqErr.HTTPStatusCode,
			Message:  "request failed",
		}
	}
	return &ProviderError{
		Provider: ProviderOpenAI,
		Kind:     classifyTransport(err),
		Message:  "transport failure",
	}
}
