package openai

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Reasoning models take max_completion_tokens instead of max_tokens and
// reject any temperature other than the default.
var reasoningModelPrefixes = []string{"gpt-5", "o1", "o3", "o4"}

// IsReasoningModel reports whether model belongs to a reasoning family.
// Matching is case-insensitive and by prefix.
func IsReasoningModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// applyLimits sets the token limit and temperature the way the target model
// family accepts them. Reasoning models spend part of the budget on hidden
// reasoning, so their limit is scaled up.
func applyLimits(req *openai.ChatCompletionRequest, maxTokens int, temperature float32, reasoningMultiplier int) {
	if !IsReasoningModel(req.Model) {
		req.MaxTokens = maxTokens
		req.Temperature = temperature
		return
	}
	if reasoningMultiplier <= 0 {
		reasoningMultiplier = 5
	}
	if maxTokens > 0 {
		req.MaxCompletionTokens = maxTokens * reasoningMultiplier
	}
}
