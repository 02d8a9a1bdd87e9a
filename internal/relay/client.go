package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/types"
)

// Temperature is fixed for every upstream call.
const Temperature = 0.2

const maxResponseBytes = 8 << 20

// Client performs the single chat-completion call for a relay request.
type Client struct {
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
}

// Dispatch posts messages to the configured chat-completions endpoint and
// returns the decoded JSON body. Every failure is returned as *Error.
func (c *Client) Dispatch(ctx context.Context, up config.UpstreamConfig, model string, messages []types.Message) (any, error) {
	if up.APIKey == "" {
		return nil, &Error{Code: CodeMissingAPIKey, Message: "OPENAI_API_KEY is not configured"}
	}

	timeout := up.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(chatRequest{Model: model, Messages: messages, Temperature: Temperature})
	if err != nil {
		return nil, &Error{Code: CodeUnexpected, Message: "failed to encode upstream request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, up.ChatCompletionsURL(), bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Code: CodeUnexpected, Message: "failed to build upstream request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+up.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &Error{
			Code:    CodeUpstreamError,
			Message: upstreamErrorMessage(resp.StatusCode, body),
		}
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Code: CodeInvalidUpstream, Message: "upstream returned a non-JSON response", Err: err}
	}
	return raw, nil
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeUpstreamTimeout, Message: "upstream request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Code: CodeUpstreamTimeout, Message: "upstream request timed out", Err: err}
	}
	return &Error{Code: CodeUpstreamUnreachable, Message: "failed to reach upstream: " + err.Error(), Err: err}
}

// upstreamErrorMessage prefers the OpenAI-style error.message and falls back
// to the raw body.
func upstreamErrorMessage(status int, body []byte) string {
	var parsed any
	if json.Unmarshal(body, &parsed) == nil {
		if msg, ok := lookupString(parsed, "error", "message"); ok && msg != "" {
			return msg
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Sprintf("upstream returned status %d", status)
	}
	return string(body)
}
