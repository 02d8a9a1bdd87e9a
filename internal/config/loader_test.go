package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "hello")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  host: "0.0.0.0"
  port: 9999
upstream:
  default_model: gpt-test
  timeout: 5s
`)

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.DefaultModel != "gpt-test" {
		t.Errorf("expected model gpt-test, got %s", cfg.Upstream.DefaultModel)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base URL to survive, got %s", cfg.Upstream.BaseURL)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	t.Setenv("TEST_PORT", "7777")

	path := writeFile(t, `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`)

	var cfg Config
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DEFAULT_OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "REQUEST_TIMEOUT",
		"BACKEND_CORS_ORIGINS", "STORE_DRIVER", "DATABASE_URL", "PORT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoader_DefaultsAndEnv(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("DEFAULT_OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("REQUEST_TIMEOUT", "2")
	t.Setenv("BACKEND_CORS_ORIGINS", `["http://localhost:3000"]`)

	l := NewLoader("", discardLogger(), filepath.Join(t.TempDir(), "missing.env"))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg := l.Config()

	if cfg.Upstream.APIKey != "test-key" {
		t.Errorf("expected api key from env, got %q", cfg.Upstream.APIKey)
	}
	if cfg.Upstream.Timeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %s", cfg.Upstream.Timeout)
	}
	if cfg.Upstream.BaseURL != DefaultBaseURL {
		t.Errorf("expected default base URL, got %s", cfg.Upstream.BaseURL)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"http://localhost:3000"}) {
		t.Errorf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("DEFAULT_OPENAI_MODEL", "from-env")

	path := writeFile(t, `
upstream:
  default_model: from-file
  base_url: http://file.example/v1
`)
	l := NewLoader(path, discardLogger(), filepath.Join(t.TempDir(), "missing.env"))
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.Upstream.DefaultModel != "from-env" {
		t.Errorf("expected env to win, got %s", cfg.Upstream.DefaultModel)
	}
	if cfg.Upstream.BaseURL != "http://file.example/v1" {
		t.Errorf("expected base URL from file, got %s", cfg.Upstream.BaseURL)
	}
}

func TestLoader_DotEnvFile(t *testing.T) {
	clearRelayEnv(t)

	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("OPENAI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

	l := NewLoader("", discardLogger(), envPath)
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := l.Config().Upstream.APIKey; got != "from-dotenv" {
		t.Errorf("expected key from .env, got %q", got)
	}
}

func TestLoader_RejectsPostgresWithoutDSN(t *testing.T) {
	clearRelayEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	l := NewLoader("", discardLogger(), filepath.Join(t.TempDir(), "missing.env"))
	if err := l.Load(); err == nil {
		t.Fatal("expected error for postgres store without DATABASE_URL")
	}
}

func TestLoader_WatchRequiresFile(t *testing.T) {
	l := NewLoader("", discardLogger())
	if err := l.Watch(); err == nil {
		t.Error("expected error when watching without a config file")
	}
}

func TestChatCompletionsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tt := range tests {
		got := UpstreamConfig{BaseURL: tt.base}.ChatCompletionsURL()
		if got != tt.want {
			t.Errorf("ChatCompletionsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
