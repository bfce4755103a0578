package executor

import "testing"

func TestNewBackendDefaultsToClaudeCodeOnNilConfig(t *testing.T) {
	b, err := NewBackend(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != BackendTypeClaudeCode {
		t.Errorf("expected claude-code backend, got %q", b.Name())
	}
}

func TestNewBackendDefaultsToClaudeCodeOnBlankType(t *testing.T) {
	cfg := DefaultBackendConfig()
	cfg.Type = ""
	b, err := NewBackend(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != BackendTypeClaudeCode {
		t.Errorf("expected claude-code backend, got %q", b.Name())
	}
}

func TestNewBackendOpenCode(t *testing.T) {
	cfg := DefaultBackendConfig()
	cfg.Type = BackendTypeOpenCode
	b, err := NewBackend(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != BackendTypeOpenCode {
		t.Errorf("expected opencode backend, got %q", b.Name())
	}
}

func TestNewBackendUnknownTypeErrors(t *testing.T) {
	cfg := DefaultBackendConfig()
	cfg.Type = "not-a-real-backend"
	if _, err := NewBackend(cfg); err == nil {
		t.Fatal("expected an error for an unknown backend type")
	}
}

func TestNewBackendFromType(t *testing.T) {
	b, err := NewBackendFromType(BackendTypeOpenCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name() != BackendTypeOpenCode {
		t.Errorf("expected opencode backend, got %q", b.Name())
	}
}
