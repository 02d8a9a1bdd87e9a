package openapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDocument_Routes(t *testing.T) {
	doc := Document()

	if doc["openapi"] != "3.0.3" {
		t.Errorf("unexpected openapi version %v", doc["openapi"])
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatal("expected paths object")
	}
	for _, p := range []string{"/", "/api/hello", "/generate", "/explain", "/debug",
		"/openapi.json", "/metrics", "/conversations", "/conversations/{id}", "/conversations/{id}/messages"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
}

func TestDocument_IsValidJSON(t *testing.T) {
	data, err := json.Marshal(Document())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	schemas := back["components"].(map[string]any)["schemas"].(map[string]any)
	for _, name := range []string{"GenerateRequest", "ExplainRequest", "DebugRequest", "AIResponse", "ErrorEnvelope"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("missing schema %s", name)
		}
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "interfaces")

	path, err := WriteFile(dir)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if path != filepath.Join(dir, "openapi.json") {
		t.Errorf("unexpected path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("written file is not JSON: %v", err)
	}
	if _, ok := doc["openapi"]; !ok {
		t.Error("expected openapi key")
	}
	if _, ok := doc["paths"]; !ok {
		t.Error("expected paths key")
	}
}
