package relay

import (
	"math"

	"github.com/af-corp/copilot-relay/internal/types"
)

// Normalize extracts content, model and usage from a decoded chat-completion
// body. Missing or mistyped fields degrade to defaults; it never fails.
func Normalize(raw any, defaultModel string) types.AIResponse {
	out := types.AIResponse{Model: defaultModel}

	root, _ := raw.(map[string]any)
	if root == nil {
		return out
	}

	if choices, ok := root["choices"].([]any); ok && len(choices) > 0 {
		if content, ok := lookupString(choices[0], "message", "content"); ok {
			out.Content = content
		}
	}

	if model, ok := root["model"].(string); ok && model != "" {
		out.Model = model
	}

	if usage, ok := root["usage"].(map[string]any); ok {
		out.Usage = &types.Usage{
			PromptTokens:     intField(usage, "prompt_tokens"),
			CompletionTokens: intField(usage, "completion_tokens"),
			TotalTokens:      intField(usage, "total_tokens"),
		}
	}

	return out
}

// lookupString walks nested objects by key and returns the string at the end.
func lookupString(v any, path ...string) (string, bool) {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		v = obj[key]
	}
	s, ok := v.(string)
	return s, ok
}

func intField(obj map[string]any, key string) *int {
	f, ok := obj[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}
