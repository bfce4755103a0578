package executor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenCodeBackendDefaults(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	if b.config.ServerURL != "http://127.0.0.1:4096" {
		t.Errorf("unexpected default server URL %q", b.config.ServerURL)
	}
	if b.config.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("unexpected default model %q", b.config.Model)
	}
	if b.Name() != BackendTypeOpenCode {
		t.Errorf("expected Name() %q, got %q", BackendTypeOpenCode, b.Name())
	}
}

func TestNewOpenCodeBackendFillsBlankFields(t *testing.T) {
	b := NewOpenCodeBackend(&OpenCodeConfig{})
	if b.config.ServerURL == "" {
		t.Error("expected blank server URL filled with default")
	}
	if b.config.Model == "" {
		t.Error("expected blank model filled with default")
	}
}

func TestIsServerRunningTrueForHealthyServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/global/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewOpenCodeBackend(&OpenCodeConfig{ServerURL: srv.URL})
	if !b.isServerRunning() {
		t.Error("expected isServerRunning true against a healthy test server")
	}
}

func TestIsServerRunningFalseWhenUnreachable(t *testing.T) {
	b := NewOpenCodeBackend(&OpenCodeConfig{ServerURL: "http://127.0.0.1:1"})
	if b.isServerRunning() {
		t.Error("expected isServerRunning false for an unreachable server")
	}
}

func TestParseOpenCodeEventToolStart(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"tool.start","tool":"Read","input":{"path":"x.go"}}`)
	if event.Type != EventTypeToolUse || event.ToolName != "Read" {
		t.Errorf("expected tool_use/Read, got %v/%q", event.Type, event.ToolName)
	}
}

func TestParseOpenCodeEventMessageDelta(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"message.delta","delta":{"text":"partial"}}`)
	if event.Type != EventTypeText || event.Message != "partial" {
		t.Errorf("expected text/partial, got %v/%q", event.Type, event.Message)
	}
}

func TestParseOpenCodeEventDone(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"done","output":"finished"}`)
	if event.Type != EventTypeResult || event.Message != "finished" {
		t.Errorf("expected result/finished, got %v/%q", event.Type, event.Message)
	}
}

func TestParseOpenCodeEventError(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"error","error":"bad thing"}`)
	if event.Type != EventTypeError || !event.IsError {
		t.Errorf("expected an error event, got %v is_error=%v", event.Type, event.IsError)
	}
}

func TestParseOpenCodeEventUsage(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"usage","usage":{"input_tokens":5,"output_tokens":7}}`)
	if event.TokensInput != 5 || event.TokensOutput != 7 {
		t.Errorf("expected tokens 5/7, got %d/%d", event.TokensInput, event.TokensOutput)
	}
}

func TestParseOpenCodeEventUnknownTypeBecomesProgress(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent(`{"type":"something-new"}`)
	if event.Type != EventTypeProgress {
		t.Errorf("expected EventTypeProgress for an unrecognized type, got %v", event.Type)
	}
}

func TestParseOpenCodeEventInvalidJSONFallsBackToText(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	event := b.parseOpenCodeEvent("not json")
	if event.Type != EventTypeText || event.Message != "not json" {
		t.Errorf("expected raw text fallback, got %v/%q", event.Type, event.Message)
	}
}

func TestParseSSEStreamAccumulatesResultAndTokens(t *testing.T) {
	b := NewOpenCodeBackend(nil)
	stream := strings.NewReader(
		"data: {\"type\":\"usage\",\"usage\":{\"input_tokens\":3,\"output_tokens\":4}}\n\n" +
			"data: {\"type\":\"done\",\"output\":\"all set\"}\n\n",
	)
	result := &BackendResult{}
	if err := b.parseSSEStream(stream, ExecuteOptions{}, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "all set" {
		t.Errorf("expected output %q, got %q", "all set", result.Output)
	}
	if result.TokensInput != 3 || result.TokensOutput != 4 {
		t.Errorf("expected tokens 3/4, got %d/%d", result.TokensInput, result.TokensOutput)
	}
}
