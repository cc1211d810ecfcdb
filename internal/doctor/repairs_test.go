package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
)

func TestRepairWorkspaceDisabled(t *testing.T) {
	cfg := &config.Config{Workspace: config.WorkspaceConfig{Enabled: false}}
	result, err := RepairWorkspace(cfg)
	if err != nil {
		t.Fatalf("RepairWorkspace() error = %v", err)
	}
	if len(result.Created) != 0 || len(result.Skipped) != 0 {
		t.Fatalf("expected no changes when workspace is disabled")
	}
}

func TestRepairWorkspaceCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Workspace: config.WorkspaceConfig{Enabled: true, Path: dir, AgentsFile: "AGENTS.md"},
	}

	result, err := RepairWorkspace(cfg)
	if err != nil {
		t.Fatalf("RepairWorkspace() error = %v", err)
	}
	if len(result.Created) == 0 {
		t.Fatalf("expected files to be created")
	}
	if _, err := os.Stat(filepath.Join(dir, "AGENTS.md")); err != nil {
		t.Fatalf("expected AGENTS.md to exist: %v", err)
	}
}

func TestRepairHeartbeatDisabled(t *testing.T) {
	cfg := &config.Config{Workspace: config.WorkspaceConfig{Enabled: false}}
	path, created, err := RepairHeartbeat(cfg, "")
	if err != nil {
		t.Fatalf("RepairHeartbeat() error = %v", err)
	}
	if created || path != "" {
		t.Fatalf("expected no-op when workspace is disabled")
	}
}

func TestRepairHeartbeatCreatesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Workspace: config.WorkspaceConfig{Enabled: true, Path: dir}}

	path, created, err := RepairHeartbeat(cfg, "")
	if err != nil {
		t.Fatalf("RepairHeartbeat() error = %v", err)
	}
	if !created {
		t.Fatalf("expected heartbeat file to be created")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected heartbeat file at %s: %v", path, err)
	}

	_, created2, err := RepairHeartbeat(cfg, "")
	if err != nil {
		t.Fatalf("RepairHeartbeat() second call error = %v", err)
	}
	if created2 {
		t.Fatalf("expected second call to be a no-op")
	}
}
