package types

// AIResponse is the normalized body returned by every relay endpoint.
type AIResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Usage mirrors the upstream token counters. Each counter is independently
// nullable because upstreams are free to omit any of them.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// Tokens returns the counters with nil read as zero.
func (u *Usage) Tokens() (prompt, completion, total int) {
	if u == nil {
		return 0, 0, 0
	}
	return deref(u.PromptTokens), deref(u.CompletionTokens), deref(u.TotalTokens)
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
