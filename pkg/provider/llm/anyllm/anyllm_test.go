package anyllm

import (
	"errors"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyBackendName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty backend name")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", p.model)
	}
}

func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Roles(t *testing.T) {
	cases := []struct {
		role    llm.Role
		content string
	}{
		{llm.RoleSystem, "You are the receptionist for Goldencrest Insurance."},
		{llm.RoleUser, "I need to file a claim."},
		{llm.RoleAssistant, "Of course, let me help with that."},
	}
	for _, tc := range cases {
		got := convertMessage(llm.Message{Role: tc.role, Content: tc.content})
		if got.Role != string(tc.role) {
			t.Errorf("role: want %q, got %q", tc.role, got.Role)
		}
		if got.ContentString() != tc.content {
			t.Errorf("content: want %q, got %q", tc.content, got.ContentString())
		}
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	m := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "update_call_info", Arguments: `{"intent":"claim"}`},
		},
	}
	got := convertMessage(m)
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("ID: got %q", tc.ID)
	}
	if tc.Type != "function" {
		t.Errorf("Type: got %q", tc.Type)
	}
	if tc.Function.Name != "update_call_info" {
		t.Errorf("function name: got %q", tc.Function.Name)
	}
	if tc.Function.Arguments != `{"intent":"claim"}` {
		t.Errorf("arguments: got %q", tc.Function.Arguments)
	}
}

func TestConvertMessage_ToolResult(t *testing.T) {
	m := llm.Message{Role: llm.RoleTool, Content: "Tool update_call_info succeeded.", ToolCallID: "call_1"}
	got := convertMessage(m)
	if got.Role != "tool" {
		t.Errorf("role: got %q", got.Role)
	}
	if got.ToolCallID != "call_1" {
		t.Errorf("ToolCallID: got %q", got.ToolCallID)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	req := llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
		Temperature: 0.7,
		MaxTokens:   150,
		Tools: []llm.ToolDefinition{
			{Name: "create_callback_task", Description: "Create a callback task", Parameters: map[string]any{"type": "object"}},
		},
	}

	params := p.buildParams(req)
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("messages: got %d", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature: got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 150 {
		t.Errorf("max tokens: got %v", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "create_callback_task" {
		t.Errorf("tools: got %+v", params.Tools)
	}
}

func TestBuildParams_ZeroOptionalsOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if params.Temperature != nil {
		t.Errorf("temperature should be unset, got %v", *params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("max tokens should be unset, got %v", *params.MaxTokens)
	}
}

// ── error mapping ─────────────────────────────────────────────────────────────

func TestMapErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want provider.Kind
	}{
		{"rate limit", errors.New("openai: rate limit exceeded"), provider.KindRateLimit},
		{"status 429", errors.New("unexpected status 429"), provider.KindRateLimit},
		{"unauthorized", errors.New("401 unauthorized"), provider.KindAuth},
		{"bad key", errors.New("invalid api key provided"), provider.KindAuth},
		{"context length", errors.New("maximum context length exceeded"), provider.KindContextLength},
		{"timeout", errors.New("request timeout"), provider.KindTimeout},
		{"other", errors.New("boom"), provider.KindGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapErr("complete", tc.err)
			if got := provider.KindOf(err); got != tc.want {
				t.Errorf("kind: want %s, got %s", tc.want, got)
			}
			var pe *provider.Error
			if !errors.As(err, &pe) {
				t.Fatalf("expected *provider.Error, got %T", err)
			}
			if pe.Provider != providerName {
				t.Errorf("provider: got %q", pe.Provider)
			}
		})
	}
}

// ── usage accounting ──────────────────────────────────────────────────────────

func TestTokenUsage_Accumulates(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	p.addUsage(llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	p.addUsage(llm.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10})

	u := p.TokenUsage()
	if u.PromptTokens != 17 || u.CompletionTokens != 8 || u.TotalTokens != 25 {
		t.Errorf("usage: got %+v", u)
	}
}
