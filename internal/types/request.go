package types

import "time"

// Task identifies which relay endpoint a request came through.
type Task string

const (
	TaskGenerate Task = "generate"
	TaskExplain  Task = "explain"
	TaskDebug    Task = "debug"
)

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Prompt         string `json:"prompt" validate:"required"`
	Language       string `json:"language,omitempty"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ExplainRequest is the body of POST /explain.
type ExplainRequest struct {
	Code           string `json:"code" validate:"required"`
	Language       string `json:"language,omitempty"`
	Model          string `json:"model,omitempty"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// DebugRequest is the body of POST /debug. Error carries the failure the
// caller observed, if any.
type DebugRequest struct {
	Code           string `json:"code" validate:"required"`
	Language       string `json:"language,omitempty"`
	Error          string `json:"error,omitempty"`
	Model          string `json:"model,omitempty"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// RelayRequest is the canonical internal representation of a relay call.
// All three endpoint bodies are converted to this type before filtering and
// dispatch.
type RelayRequest struct {
	RequestID string `json:"request_id"`
	Task      Task   `json:"task"`

	// Prompt holds the user prompt for generate and the code for explain/debug.
	Prompt         string `json:"prompt"`
	ObservedError  string `json:"observed_error,omitempty"`
	Language       string `json:"language,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Set by the relay once the prompt is built.
	Messages      []Message `json:"messages,omitempty"`
	UpstreamModel string    `json:"upstream_model,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// Message is one entry of the upstream chat-completion message list.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r GenerateRequest) Relay() *RelayRequest {
	return &RelayRequest{
		Task:           TaskGenerate,
		Prompt:         r.Prompt,
		Language:       r.Language,
		SystemPrompt:   r.SystemPrompt,
		Model:          r.Model,
		ConversationID: r.ConversationID,
	}
}

func (r ExplainRequest) Relay() *RelayRequest {
	return &RelayRequest{
		Task:           TaskExplain,
		Prompt:         r.Code,
		Language:       r.Language,
		SystemPrompt:   r.SystemPrompt,
		Model:          r.Model,
		ConversationID: r.ConversationID,
	}
}

func (r DebugRequest) Relay() *RelayRequest {
	return &RelayRequest{
		Task:           TaskDebug,
		Prompt:         r.Code,
		ObservedError:  r.Error,
		Language:       r.Language,
		SystemPrompt:   r.SystemPrompt,
		Model:          r.Model,
		ConversationID: r.ConversationID,
	}
}
