package relay

import (
	"fmt"
	"strings"

	"github.com/af-corp/copilot-relay/internal/types"
)

type promptTemplate struct {
	system string
	user   func(req *types.RelayRequest) string
}

var templates = map[types.Task]promptTemplate{
	types.TaskGenerate: {
		system: "You are an expert software engineer. Write clean, correct, idiomatic code " +
			"that satisfies the request. Return the code first, followed by a brief explanation " +
			"only when it helps the reader.",
		user: func(req *types.RelayRequest) string {
			return "Write code for the following request:\n\n" + req.Prompt
		},
	},
	types.TaskExplain: {
		system: "You are an expert software engineer and patient teacher. Explain what the " +
			"given code does, step by step, calling out important control flow, data structures " +
			"and any non-obvious behavior.",
		user: func(req *types.RelayRequest) string {
			return "Explain the following code:\n\n" + fence(req.Language, req.Prompt)
		},
	},
	types.TaskDebug: {
		system: "You are an expert debugger. Identify the root cause of the problem in the " +
			"given code, explain it concisely, and provide a corrected version of the code.",
		user: func(req *types.RelayRequest) string {
			var b strings.Builder
			b.WriteString("Debug the following code.\n\n")
			if req.ObservedError != "" {
				b.WriteString("Observed error:\n")
				b.WriteString(fence("", req.ObservedError))
				b.WriteString("\n\n")
			}
			b.WriteString("Code:\n")
			b.WriteString(fence(req.Language, req.Prompt))
			return b.String()
		},
	},
}

// BuildMessages returns the system and user messages sent upstream for req.
// A caller-supplied system prompt replaces the task default verbatim; the
// language hint is only added to the default.
func BuildMessages(req *types.RelayRequest) ([]types.Message, error) {
	tmpl, ok := templates[req.Task]
	if !ok {
		return nil, &Error{Code: CodeUnexpected, Message: fmt.Sprintf("unknown relay task %q", req.Task)}
	}

	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = tmpl.system
		if lang := strings.TrimSpace(req.Language); lang != "" {
			system += fmt.Sprintf(" Target language: %s.", lang)
		}
	}

	return []types.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: tmpl.user(req)},
	}, nil
}

func fence(lang, body string) string {
	return "```" + strings.TrimSpace(lang) + "\n" + body + "\n```"
}
