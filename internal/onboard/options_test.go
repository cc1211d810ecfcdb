package onboard

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildConfigDefaults(t *testing.T) {
	cfg := BuildConfig(Options{Provider: "openai", ProviderKey: "key"})
	llm := cfg["llm"].(map[string]any)
	if llm["default_provider"].(string) != "openai" {
		t.Fatalf("expected default_provider openai")
	}
	providers := llm["providers"].(map[string]any)
	entry := providers["openai"].(map[string]any)
	if entry["api_key"].(string) != "key" {
		t.Fatalf("expected api key")
	}
	if _, ok := cfg["auth"]; ok {
		t.Error("did not expect an auth section")
	}
	if _, ok := cfg["session"]; ok {
		t.Error("did not expect a session section")
	}
}

func TestBuildConfigDefaultProvider(t *testing.T) {
	cfg := BuildConfig(Options{})
	llm := cfg["llm"].(map[string]any)
	if llm["default_provider"].(string) != "anthropic" {
		t.Fatalf("expected default_provider anthropic, got %v", llm["default_provider"])
	}
}

func TestBuildConfigWorkspace(t *testing.T) {
	cfg := BuildConfig(Options{WorkspacePath: "/tmp/ws"})
	ws, ok := cfg["workspace"].(map[string]any)
	if !ok {
		t.Fatalf("expected workspace section")
	}
	if ws["path"].(string) != "/tmp/ws" || ws["enabled"] != true {
		t.Errorf("unexpected workspace section: %+v", ws)
	}
}

func TestApplyAuthConfigSetsProvider(t *testing.T) {
	raw := map[string]any{}
	ApplyAuthConfig(raw, "anthropic", "secret", true)
	llm := raw["llm"].(map[string]any)
	if llm["default_provider"].(string) != "anthropic" {
		t.Fatalf("expected default provider")
	}
	providers := llm["providers"].(map[string]any)
	entry := providers["anthropic"].(map[string]any)
	if entry["api_key"].(string) != "secret" {
		t.Fatalf("expected api key")
	}
}

func TestApplyAuthConfigNoDefault(t *testing.T) {
	raw := map[string]any{"llm": map[string]any{"default_provider": "openai"}}
	ApplyAuthConfig(raw, "anthropic", "secret", false)
	llm := raw["llm"].(map[string]any)
	if llm["default_provider"].(string) != "openai" {
		t.Errorf("expected default provider to remain openai, got %v", llm["default_provider"])
	}
}

func TestGenerateJWTSecret(t *testing.T) {
	secret := GenerateJWTSecret()
	if secret == "" {
		t.Fatal("expected non-empty secret")
	}
	if secret == GenerateJWTSecret() {
		t.Error("expected distinct secrets across calls")
	}
}

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexus.yaml")
	raw := map[string]any{"version": 1}
	if err := WriteConfig(path, raw); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestWriteConfigNil(t *testing.T) {
	if err := WriteConfig("/tmp/unused.yaml", nil); err == nil {
		t.Error("expected error for nil config")
	}
}
