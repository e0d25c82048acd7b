package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/vocepta/pkg/provider"
	"github.com/MrWong99/vocepta/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini",
		WithBaseURL("https://custom.example.com"),
		WithTimeout(0),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", p.model)
	}
	if p.logger == nil {
		t.Error("expected default logger to be set")
	}
}

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_System(t *testing.T) {
	got, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "You are the receptionist for Goldencrest Insurance."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestConvertMessage_User(t *testing.T) {
	got, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "Necesito hacer un reclamo."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	m := llm.Message{
		Role:    llm.RoleAssistant,
		Content: "Let me set that callback up.",
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "create_callback_task", Arguments: `{"call_id":"CA-1","callback_number":"+15551234567"}`},
		},
	}
	got, err := convertMessage(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	asst := got.OfAssistant
	if asst == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(asst.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(asst.ToolCalls))
	}
	tc := asst.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("ID: got %q", tc.ID)
	}
	if tc.Function.Name != "create_callback_task" {
		t.Errorf("function name: got %q", tc.Function.Name)
	}
	if tc.Function.Arguments != `{"call_id":"CA-1","callback_number":"+15551234567"}` {
		t.Errorf("arguments: got %q", tc.Function.Arguments)
	}
}

func TestConvertMessage_ToolResult(t *testing.T) {
	got, err := convertMessage(llm.Message{Role: llm.RoleTool, Content: "create_callback_task: success", ToolCallID: "call_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if got.OfTool.ToolCallID != "call_1" {
		t.Errorf("ToolCallID: got %q", got.OfTool.ToolCallID)
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(llm.Message{Role: "narrator", Content: "test"})
	if err == nil {
		t.Fatal("expected error for unknown role")
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
			{Name: "transfer_call", Description: "Transfer the live call", Parameters: map[string]any{"type": "object"}},
		},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Model != "gpt-4o-mini" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("messages: got %d", len(params.Messages))
	}
	if got := params.Temperature.Or(0); got != 0.7 {
		t.Errorf("temperature: got %v", got)
	}
	if got := params.MaxCompletionTokens.Or(0); got != 150 {
		t.Errorf("max tokens: got %v", got)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "transfer_call" {
		t.Errorf("tools: got %+v", params.Tools)
	}
}

func TestBuildParams_ZeroOptionalsOmitted(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Temperature.Valid() {
		t.Errorf("temperature should be unset, got %v", params.Temperature.Or(0))
	}
	if params.MaxCompletionTokens.Valid() {
		t.Errorf("max tokens should be unset, got %v", params.MaxCompletionTokens.Or(0))
	}
}

func TestBuildParams_BadMessage(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	_, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "narrator", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for unconvertible message")
	}
}

// ── error mapping ─────────────────────────────────────────────────────────────

func TestMapErr(t *testing.T) {
	apiErr := func(status int, code, message string) *oai.Error {
		return &oai.Error{
			StatusCode: status,
			Code:       code,
			Message:    message,
			Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil),
			Response:   &http.Response{StatusCode: status},
		}
	}

	cases := []struct {
		name string
		err  error
		want provider.Kind
	}{
		{"deadline exceeded", context.DeadlineExceeded, provider.KindTimeout},
		{"rate limit", apiErr(http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit reached"), provider.KindRateLimit},
		{"unauthorized", apiErr(http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided"), provider.KindAuth},
		{"forbidden", apiErr(http.StatusForbidden, "", "Country not supported"), provider.KindAuth},
		{"context length code", apiErr(http.StatusBadRequest, "context_length_exceeded", "too many tokens"), provider.KindContextLength},
		{"context length message", apiErr(http.StatusBadRequest, "", "This model's maximum context length is 128000 tokens"), provider.KindContextLength},
		{"gateway timeout", apiErr(http.StatusGatewayTimeout, "", "upstream timed out"), provider.KindTimeout},
		{"server error", apiErr(http.StatusInternalServerError, "", "internal error"), provider.KindGeneric},
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
			if pe.Op != "complete" {
				t.Errorf("op: got %q", pe.Op)
			}
		})
	}
}

// ── stream assembly ───────────────────────────────────────────────────────────

func TestAssemble_OrdersAndSanitizes(t *testing.T) {
	p := &Provider{logger: slog.New(slog.DiscardHandler)}
	accum := map[int]*llm.ToolCall{
		1: {ID: "call_b", Name: "update_call_record", Arguments: ""},
		0: {ID: "call_a", Name: "create_call_record", Arguments: `{"from_number":"+15551234567"}`},
		2: {ID: "call_c", Name: "transfer_call", Arguments: `{"call_id": truncat`},
	}

	calls := p.assemble(accum)
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	if calls[0].ID != "call_a" || calls[1].ID != "call_b" || calls[2].ID != "call_c" {
		t.Errorf("order: got %q, %q, %q", calls[0].ID, calls[1].ID, calls[2].ID)
	}
	if calls[0].Arguments != `{"from_number":"+15551234567"}` {
		t.Errorf("valid arguments altered: got %q", calls[0].Arguments)
	}
	// Empty and truncated buffers both degrade to an empty object.
	if calls[1].Arguments != "{}" {
		t.Errorf("empty buffer: got %q", calls[1].Arguments)
	}
	if calls[2].Arguments != "{}" {
		t.Errorf("truncated buffer: got %q", calls[2].Arguments)
	}
}

// ── usage accounting ──────────────────────────────────────────────────────────

func TestTokenUsage_Accumulates(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	p.addUsage(llm.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120})
	p.addUsage(llm.Usage{PromptTokens: 50, CompletionTokens: 10, TotalTokens: 60})

	u := p.TokenUsage()
	if u.PromptTokens != 150 || u.CompletionTokens != 30 || u.TotalTokens != 180 {
		t.Errorf("usage: got %+v", u)
	}
}
