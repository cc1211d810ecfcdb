package doctor

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
)

func TestApplyConfigMigrationsMovesPluginsToMarketplace(t *testing.T) {
	raw := map[string]any{
		"plugins": map[string]any{
			"registries": []any{"https://example.com/index.json"},
		},
	}

	report, err := ApplyConfigMigrations(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 migrations (move + version bump), got %d: %v", len(report.Applied), report.Applied)
	}
	if _, ok := raw["plugins"]; ok {
		t.Fatalf("expected plugins to be removed")
	}
	marketplace, ok := raw["marketplace"].(map[string]any)
	if !ok {
		t.Fatalf("expected marketplace to be set")
	}
	if _, ok := marketplace["registries"]; !ok {
		t.Fatalf("expected marketplace.registries to be carried over")
	}
}

func TestApplyConfigMigrationsRespectsExistingMarketplace(t *testing.T) {
	raw := map[string]any{
		"plugins":     map[string]any{"registries": []any{"https://old.example.com"}},
		"marketplace": map[string]any{"registries": []any{"https://new.example.com"}},
	}

	report, err := ApplyConfigMigrations(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 migrations, got %d: %v", len(report.Applied), report.Applied)
	}
	if _, ok := raw["plugins"]; ok {
		t.Fatalf("expected plugins to be removed")
	}
	marketplace := raw["marketplace"].(map[string]any)
	registries := marketplace["registries"].([]any)
	if registries[0] != "https://new.example.com" {
		t.Fatalf("expected existing marketplace section to be left untouched")
	}
}

func TestApplyConfigMigrationsMovesMemoryToVectorMemory(t *testing.T) {
	raw := map[string]any{
		"memory": map[string]any{"backend": "pgvector"},
	}

	report, err := ApplyConfigMigrations(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 migrations, got %d: %v", len(report.Applied), report.Applied)
	}
	if _, ok := raw["memory"]; ok {
		t.Fatalf("expected memory to be removed")
	}
	if _, ok := raw["vector_memory"]; !ok {
		t.Fatalf("expected vector_memory to be set")
	}
}

func TestApplyConfigMigrationsRejectsFutureVersion(t *testing.T) {
	raw := map[string]any{"version": config.CurrentVersion + 1}
	if _, err := ApplyConfigMigrations(raw); err == nil {
		t.Fatalf("expected error for a config version newer than this build")
	}
}
