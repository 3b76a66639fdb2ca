package chat

import "parlor/internal/llm"

// Accumulate returns a conversation's token count after charging one
// completion's usage. Pure: the caller persists the result together with
// the appended turn. Missing or partial usage never decreases the count
// and never goes negative.
func Accumulate(prior int64, usage llm.Usage) int64 {
	if prior < 0 {
		prior = 0
	}
	added := int64(usage.TotalTokens)
	if added <= 0 {
		added = int64(usage.PromptTokens) + int64(usage.CompletionTokens)
	}
	if added < 0 {
		added = 0
	}
	return prior + added
}

// EstimateUsage derives usage counts locally when the provider reported
// none, so token accounting still advances. The result is marked Estimated.
func EstimateUsage(context []llm.Message, reply string) llm.Usage {
	var prompt int
	for _, m := range context {
		prompt += countTokens(m.Content)
	}
	completion := countTokens(reply)
	return llm.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}
}
