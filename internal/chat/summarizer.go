package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"parlor/internal/llm"
)

const titleSystemPrompt = "You are a helpful assistant that generates short, concise titles for conversations. " +
	"The title should be 3-8 words, descriptive, and capture the main topic. Only output the title, nothing else."

// summarizerContextMessages caps how much conversation the title call sees.
const summarizerContextMessages = 4

// completionClient is the slice of the gateway the summarizer needs.
type completionClient interface {
	Complete(ctx context.Context, modelID string, messages []llm.Message) (*llm.Completion, error)
}

// Summarizer derives a short conversation title from an initial exchange
// via a secondary, lower-cost call through the gateway.
type Summarizer struct {
	gateway completionClient
	modelID string
	logger  zerolog.Logger
}

// NewSummarizer creates a summarizer using the given model configuration ID.
func NewSummarizer(gateway completionClient, modelID string, logger zerolog.Logger) *Summarizer {
	return &Summarizer{
		gateway: gateway,
		modelID: modelID,
		logger:  logger.With().Str("component", "summarizer").Logger(),
	}
}

// Summarize produces a title for the given history. Callers treat failures
// as absorbable: the placeholder title stays and summarization is retried
// on a later turn.
func (s *Summarizer) Summarize(ctx context.Context, history []llm.Message) (string, error) {
	prompt := []llm.Message{{Role: llm.RoleSystem, Content: titleSystemPrompt}}
	for i, msg := range history {
		if i >= summarizerContextMessages {
			break
		}
		if msg.Role == llm.RoleSystem {
			continue
		}
		prompt = append(prompt, msg)
	}
	prompt = append(prompt, llm.Message{
		Role:    llm.RoleUser,
		Content: "Based on the above conversation, generate a short title (3-8 words):",
	})

	completion, err := s.gateway.Complete(ctx, s.modelID, prompt)
	if err != nil {
		return "", errors.Wrap(err, "title completion failed")
	}

	title := cleanTitle(completion.Content)
	if title == "" {
		return "", errors.New("summarizer produced an empty title")
	}

	s.logger.Debug().Str("title", title).Msg("title generated")
	return title, nil
}

// cleanTitle strips quotes and whitespace from a generated title and caps
// its length.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if len(title) > 100 {
		title = title[:100]
	}
	return title
}
