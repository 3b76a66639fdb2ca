package chat

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"parlor/internal/llm"
	"parlor/internal/store"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// countTokens measures text against the cl100k_base vocabulary, falling
// back to the chars/4 heuristic when the tokenizer is unavailable.
func countTokens(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	if codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return len(text) / 4
}

// messageTokens approximates the cost of one message including its framing
// overhead on the wire.
func messageTokens(m llm.Message) int {
	return countTokens(m.Content) + 4
}

// AssembleContext builds the message sequence for one turn: the system
// message first (from stored history, else the model's role prompt), then
// history, then the new user message. When the total exceeds the model's
// input budget the oldest non-system messages are dropped first; the
// system message and the new user message are never dropped.
func AssembleContext(model llm.ModelConfig, history []store.ChatMessage, userText string) []llm.Message {
	var system *llm.Message
	var rest []llm.Message

	for i, m := range history {
		if i == 0 && m.Role == llm.RoleSystem {
			system = &llm.Message{Role: llm.RoleSystem, Content: m.Content}
			continue
		}
		rest = append(rest, llm.Message{Role: m.Role, Content: m.Content})
	}
	if system == nil && model.SystemPrompt != "" {
		system = &llm.Message{Role: llm.RoleSystem, Content: model.SystemPrompt}
	}

	userMsg := llm.Message{Role: llm.RoleUser, Content: userText}

	if model.InputBudget > 0 {
		budget := model.InputBudget - messageTokens(userMsg)
		if system != nil {
			budget -= messageTokens(*system)
		}
		// Walk backwards keeping the newest history that still fits
		keepFrom := len(rest)
		for i := len(rest) - 1; i >= 0; i-- {
			cost := messageTokens(rest[i])
			if cost > budget {
				break
			}
			budget -= cost
			keepFrom = i
		}
		rest = rest[keepFrom:]
	}

	out := make([]llm.Message, 0, len(rest)+2)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest...)
	out = append(out, userMsg)
	return out
}
