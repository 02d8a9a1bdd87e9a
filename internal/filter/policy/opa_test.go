package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/filter"
	"github.com/af-corp/copilot-relay/internal/types"
)

func testCfg() func() config.PolicyFilterConfig {
	return func() config.PolicyFilterConfig {
		return config.PolicyFilterConfig{
			Enabled:           true,
			EvaluationTimeout: 100 * time.Millisecond,
		}
	}
}

const defaultPolicy = `
package relay.policy

import rego.v1

default allow := true
default reason := ""

deny contains msg if {
	input.request.model_overridden
	not startswith(input.request.model, "gpt-4o")
	msg := sprintf("model %s is not allowed", [input.request.model])
}

deny contains msg if {
	input.request.task == "debug"
	input.time.day == "Sunday"
	msg := "debugging is closed on Sundays"
}

allow := false if {
	count(deny) > 0
}

reason := concat("; ", deny) if {
	count(deny) > 0
}
`

func loadTestEvaluator(t *testing.T, policy string) *Evaluator {
	t.Helper()
	e := NewEvaluator(testCfg())
	if err := e.LoadFromModules(map[string]string{"test.rego": policy}); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}
	return e
}

func TestEvaluator_AllowByDefault(t *testing.T) {
	e := loadTestEvaluator(t, defaultPolicy)

	allowed, reason, err := e.Evaluate(context.Background(), PolicyInput{
		Request: PolicyReq{Task: "generate", Model: "gpt-4o-mini"},
		Time:    PolicyTime{Hour: 10, Day: "Monday"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected allowed, got denied: %s", reason)
	}
}

func TestEvaluator_BlockModelOverride(t *testing.T) {
	e := loadTestEvaluator(t, defaultPolicy)

	allowed, reason, err := e.Evaluate(context.Background(), PolicyInput{
		Request: PolicyReq{Task: "generate", Model: "o1-preview", ModelOverridden: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected denied for disallowed model override")
	}
	if !strings.Contains(reason, "o1-preview") {
		t.Errorf("expected reason naming the model, got %q", reason)
	}
}

func TestEvaluator_NoPoliciesLoaded_FailClosed(t *testing.T) {
	e := NewEvaluator(testCfg())

	allowed, _, _ := e.Evaluate(context.Background(), PolicyInput{})
	if allowed {
		t.Error("expected denied when no policies loaded (fail closed)")
	}
}

func TestEvaluator_ScanRequest_UsesClock(t *testing.T) {
	e := loadTestEvaluator(t, defaultPolicy)
	e.now = func() time.Time { return time.Date(2026, 10, 11, 9, 0, 0, 0, time.UTC) } // a Sunday

	result := e.ScanRequest(context.Background(), &types.RelayRequest{Task: types.TaskDebug, Prompt: "x"})
	if result.Action != filter.ActionBlock {
		t.Fatalf("expected block on Sunday debug, got %s", result.Action)
	}
	if result.Code != CodePolicyDenied {
		t.Errorf("expected code %s, got %s", CodePolicyDenied, result.Code)
	}
}

func TestEvaluator_ScanRequest_Pass(t *testing.T) {
	e := loadTestEvaluator(t, defaultPolicy)
	e.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }

	req := &types.RelayRequest{Task: types.TaskExplain, Prompt: "x", UpstreamModel: "gpt-4o-mini"}
	result := e.ScanRequest(context.Background(), req)
	if result.Action != filter.ActionPass {
		t.Errorf("expected pass, got %s: %s", result.Action, result.Message)
	}
	if result.FilterName != "policy" {
		t.Errorf("expected filter name 'policy', got %s", result.FilterName)
	}
}

func TestEvaluator_InputFor(t *testing.T) {
	e := NewEvaluator(testCfg())
	e.now = func() time.Time { return time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC) }

	in := e.InputFor(&types.RelayRequest{
		Task:          types.TaskGenerate,
		Model:         "gpt-4o",
		UpstreamModel: "gpt-4o",
		Language:      "go",
		SystemPrompt:  "custom",
	})

	if in.Request.Task != "generate" || in.Request.Model != "gpt-4o" || in.Request.Language != "go" {
		t.Errorf("unexpected request input %+v", in.Request)
	}
	if !in.Request.ModelOverridden || !in.Request.SystemPromptOverridden {
		t.Errorf("expected override flags set, got %+v", in.Request)
	}
	if in.Time.Hour != 15 || in.Time.Day != "Wednesday" {
		t.Errorf("unexpected time input %+v", in.Time)
	}
}

func TestEvaluator_Disabled(t *testing.T) {
	e := NewEvaluator(func() config.PolicyFilterConfig {
		return config.PolicyFilterConfig{Enabled: false}
	})
	if e.Enabled() {
		t.Error("expected evaluator to be disabled")
	}
}

func TestEvaluator_CustomDenyAllPolicy(t *testing.T) {
	denyAll := `
package relay.policy

import rego.v1

allow := false
reason := "all requests denied"
`
	e := loadTestEvaluator(t, denyAll)

	allowed, reason, err := e.Evaluate(context.Background(), PolicyInput{
		Request: PolicyReq{Task: "explain", Model: "gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected denied by deny-all policy")
	}
	if reason != "all requests denied" {
		t.Errorf("expected 'all requests denied', got %s", reason)
	}
}

func TestEvaluator_LoadFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "relay.rego"), []byte(defaultPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := NewEvaluator(func() config.PolicyFilterConfig {
		return config.PolicyFilterConfig{Enabled: true, BundlePath: dir}
	})
	if err := e.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	allowed, _, err := e.Evaluate(context.Background(), PolicyInput{Request: PolicyReq{Task: "generate"}})
	if err != nil || !allowed {
		t.Errorf("expected allowed after loading from dir, got %v (%v)", allowed, err)
	}
}

func TestEvaluator_LoadInvalidPolicy(t *testing.T) {
	e := NewEvaluator(testCfg())
	if err := e.LoadFromModules(map[string]string{"bad.rego": "package relay.policy\nallow := "}); err == nil {
		t.Error("expected compile error for invalid rego")
	}
}
