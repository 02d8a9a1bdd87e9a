package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/filter"
	"github.com/af-corp/copilot-relay/internal/types"
)

// CodeSecretDetected is the error code written when a prompt is blocked.
const CodeSecretDetected = "secret_detected"

// Detection represents a detected secret in text.
type Detection struct {
	PatternName string // e.g. "AWS Access Key"
	Start       int    // byte offset
	End         int    // byte offset
}

// Scanner scans text for secrets using pre-compiled regex patterns.
type Scanner struct {
	patterns []Pattern
	cfg      func() config.SecretsFilterConfig
}

// NewScanner creates a scanner with the default secret patterns. A nil cfg
// means the scanner is always enabled.
func NewScanner(cfg func() config.SecretsFilterConfig) *Scanner {
	return &Scanner{patterns: DefaultPatterns(), cfg: cfg}
}

// Scan checks a single text string for secrets and returns all detections.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range s.patterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// ScanMessages scans all messages for secrets.
func (s *Scanner) ScanMessages(messages []types.Message) []Detection {
	var detections []Detection
	for _, m := range messages {
		detections = append(detections, s.Scan(m.Content)...)
	}
	return detections
}

func (s *Scanner) Name() string { return "secrets" }

func (s *Scanner) Enabled() bool {
	if s.cfg == nil {
		return true
	}
	return s.cfg().Enabled
}

// ScanRequest implements filter.Filter. It inspects the built upstream
// messages, or the raw request fields when the prompt has not been built yet.
func (s *Scanner) ScanRequest(ctx context.Context, req *types.RelayRequest) filter.Result {
	messages := req.Messages
	if len(messages) == 0 {
		messages = []types.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Prompt + "\n" + req.ObservedError},
		}
	}

	detections := s.ScanMessages(messages)
	if len(detections) == 0 {
		return filter.Result{Action: filter.ActionPass, FilterName: s.Name()}
	}

	names := patternNames(detections)
	slog.Warn("secret detected in prompt",
		"request_id", req.RequestID,
		"task", string(req.Task),
		"patterns", names,
		"detections", len(detections),
	)
	return filter.Result{
		Action:     filter.ActionBlock,
		FilterName: s.Name(),
		Code:       CodeSecretDetected,
		Message:    fmt.Sprintf("Request blocked: prompt contains a secret (%s)", strings.Join(names, ", ")),
		Detections: len(detections),
	}
}

// patternNames returns the distinct pattern names in detection order.
func patternNames(detections []Detection) []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range detections {
		if !seen[d.PatternName] {
			seen[d.PatternName] = true
			names = append(names, d.PatternName)
		}
	}
	return names
}
