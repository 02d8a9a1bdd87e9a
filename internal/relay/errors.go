package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes produced by the relay pipeline.
const (
	CodeMissingAPIKey       = "missing_api_key"
	CodeUpstreamTimeout     = "upstream_timeout"
	CodeUpstreamUnreachable = "upstream_unreachable"
	CodeUpstreamError       = "upstream_error"
	CodeInvalidUpstream     = "invalid_upstream"
	CodeUnexpected          = "unexpected"
	CodeValidation          = "validation_error"
)

// Error is a classified relay failure. Code is the machine-readable value
// written to the error envelope.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// StatusFor maps a relay error code to the HTTP status returned to the caller.
func StatusFor(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamUnreachable, CodeUpstreamError, CodeInvalidUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsError classifies any error as a relay Error. Unclassified errors become
// CodeUnexpected.
func AsError(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Code: CodeUnexpected, Message: "Unexpected error: " + err.Error(), Err: err}
}
