// Package openapi describes the relay HTTP surface as an OpenAPI 3.0 document.
package openapi

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	Title   = "Copilot Relay"
	Version = "0.1.0"
)

type obj = map[string]any

func ref(name string) obj {
	return obj{"$ref": "#/components/schemas/" + name}
}

func jsonBody(schema obj) obj {
	return obj{"content": obj{"application/json": obj{"schema": schema}}}
}

func response(desc string, schema obj) obj {
	r := jsonBody(schema)
	r["description"] = desc
	return r
}

func errorResponses(codes ...string) obj {
	desc := map[string]string{
		"400": "Validation error",
		"403": "Denied by request policy",
		"404": "Conversation not found",
		"422": "Prompt contains a secret",
		"429": "Rate limited",
		"500": "Missing API key or unexpected error",
		"502": "Upstream failure",
		"503": "Conversation store disabled",
		"504": "Upstream timeout",
	}
	out := obj{}
	for _, c := range codes {
		out[c] = response(desc[c], ref("ErrorEnvelope"))
	}
	return out
}

func relayOperation(summary, requestSchema string) obj {
	responses := errorResponses("400", "403", "422", "429", "500", "502", "504")
	responses["200"] = response("Normalized completion", ref("AIResponse"))
	return obj{
		"summary":     summary,
		"tags":        []string{"relay"},
		"requestBody": func() obj { b := jsonBody(ref(requestSchema)); b["required"] = true; return b }(),
		"responses":   responses,
	}
}

func str(desc string) obj {
	return obj{"type": "string", "description": desc}
}

func nullableInt() obj {
	return obj{"type": "integer", "nullable": true}
}

func schemas() obj {
	common := func(primary, primaryDesc string, extra obj) obj {
		props := obj{
			primary:          str(primaryDesc),
			"language":       str("Language hint, e.g. python"),
			"systemPrompt":   str("Replaces the default system instruction"),
			"model":          str("Overrides the configured default model"),
			"conversationId": str("Conversation to append this exchange to"),
		}
		for k, v := range extra {
			props[k] = v
		}
		return obj{"type": "object", "required": []string{primary}, "properties": props}
	}
	return obj{
		"GenerateRequest": common("prompt", "What to write", nil),
		"ExplainRequest":  common("code", "Code to explain", nil),
		"DebugRequest":    common("code", "Code to debug", obj{"error": str("Observed error output")}),
		"Usage": obj{
			"type": "object",
			"properties": obj{
				"prompt_tokens":     nullableInt(),
				"completion_tokens": nullableInt(),
				"total_tokens":      nullableInt(),
			},
		},
		"AIResponse": obj{
			"type":     "object",
			"required": []string{"content", "model"},
			"properties": obj{
				"content": obj{"type": "string"},
				"model":   obj{"type": "string"},
				"usage":   ref("Usage"),
			},
		},
		"ErrorEnvelope": obj{
			"type":     "object",
			"required": []string{"error"},
			"properties": obj{
				"error": obj{
					"type":     "object",
					"required": []string{"message", "code"},
					"properties": obj{
						"message": obj{"type": "string"},
						"code":    obj{"type": "string"},
					},
				},
			},
		},
		"Message": obj{
			"type": "object",
			"properties": obj{
				"message": obj{"type": "string"},
			},
		},
		"CreateConversationRequest": obj{
			"type":       "object",
			"properties": obj{"title": obj{"type": "string", "nullable": true}},
		},
		"Conversation": obj{
			"type": "object",
			"properties": obj{
				"id":         obj{"type": "string"},
				"created_at": obj{"type": "string", "format": "date-time"},
				"title":      obj{"type": "string", "nullable": true},
			},
		},
		"ConversationMessage": obj{
			"type": "object",
			"properties": obj{
				"id":              obj{"type": "string"},
				"conversation_id": obj{"type": "string"},
				"role":            obj{"type": "string", "enum": []string{"user", "assistant"}},
				"content":         obj{"type": "string"},
				"created_at":      obj{"type": "string", "format": "date-time"},
			},
		},
		"MessageList": obj{
			"type": "object",
			"properties": obj{
				"messages": obj{"type": "array", "items": ref("ConversationMessage")},
			},
		},
	}
}

// Document returns the OpenAPI document for every route the relay serves.
func Document() map[string]any {
	idParam := []obj{{"name": "id", "in": "path", "required": true, "schema": obj{"type": "string"}}}

	conversationGet := errorResponses("404", "503")
	conversationGet["200"] = response("Conversation", ref("Conversation"))
	messagesGet := errorResponses("404", "503")
	messagesGet["200"] = response("Messages in append order", ref("MessageList"))
	conversationCreate := errorResponses("400", "503")
	conversationCreate["201"] = response("Created conversation", ref("Conversation"))

	return obj{
		"openapi": "3.0.3",
		"info": obj{
			"title":       Title,
			"version":     Version,
			"description": "Relays generate, explain and debug prompts to an OpenAI-compatible chat-completion API.",
		},
		"paths": obj{
			"/": obj{"get": obj{
				"summary":   "Health Check",
				"tags":      []string{"system"},
				"responses": obj{"200": response("Service is running", ref("Message"))},
			}},
			"/api/hello": obj{"get": obj{
				"summary":   "Hello over HTTPS",
				"tags":      []string{"system"},
				"responses": obj{"200": response("Greeting", ref("Message"))},
			}},
			"/openapi.json": obj{"get": obj{
				"summary":   "This document",
				"tags":      []string{"system"},
				"responses": obj{"200": obj{"description": "OpenAPI document"}},
			}},
			"/metrics": obj{"get": obj{
				"summary":   "Prometheus metrics",
				"tags":      []string{"system"},
				"responses": obj{"200": obj{"description": "Prometheus text exposition"}},
			}},
			"/generate": obj{"post": relayOperation("Generate code from a prompt", "GenerateRequest")},
			"/explain":  obj{"post": relayOperation("Explain a piece of code", "ExplainRequest")},
			"/debug":    obj{"post": relayOperation("Debug a piece of code", "DebugRequest")},
			"/conversations": obj{"post": obj{
				"summary":     "Create a conversation",
				"tags":        []string{"conversations"},
				"requestBody": jsonBody(ref("CreateConversationRequest")),
				"responses":   conversationCreate,
			}},
			"/conversations/{id}": obj{"get": obj{
				"summary":    "Get a conversation",
				"tags":       []string{"conversations"},
				"parameters": idParam,
				"responses":  conversationGet,
			}},
			"/conversations/{id}/messages": obj{"get": obj{
				"summary":    "List conversation messages",
				"tags":       []string{"conversations"},
				"parameters": idParam,
				"responses":  messagesGet,
			}},
		},
		"components": obj{"schemas": schemas()},
	}
}

// WriteFile writes the document as indented JSON to dir/openapi.json,
// creating dir as needed, and returns the written path.
func WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(Document(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode openapi document: %w", err)
	}
	path := filepath.Join(dir, "openapi.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
