package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClawdbotWorkspaceFiles(t *testing.T) {
	expectedFiles := []string{"AGENTS.md", "SOUL.md", "USER.md", "IDENTITY.md", "MEMORY.md"}

	if len(ClawdbotWorkspaceFiles) != len(expectedFiles) {
		t.Errorf("ClawdbotWorkspaceFiles has %d files, want %d", len(ClawdbotWorkspaceFiles), len(expectedFiles))
	}

	for _, expected := range expectedFiles {
		found := false
		for _, actual := range ClawdbotWorkspaceFiles {
			if actual == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ClawdbotWorkspaceFiles missing %q", expected)
		}
	}
}

func TestValidateClawdbotWorkspace(t *testing.T) {
	t.Run("valid with SOUL.md", func(t *testing.T) {
		tmpDir := t.TempDir()
		os.WriteFile(filepath.Join(tmpDir, "SOUL.md"), []byte("content"), 0o644)

		valid, missing := ValidateClawdbotWorkspace(tmpDir)
		if !valid {
			t.Error("expected valid workspace with SOUL.md")
		}
		if len(missing) != 4 {
			t.Errorf("missing = %v, want 4 missing files", missing)
		}
	})

	t.Run("valid with IDENTITY.md", func(t *testing.T) {
		tmpDir := t.TempDir()
		os.WriteFile(filepath.Join(tmpDir, "IDENTITY.md"), []byte("content"), 0o644)

		valid, _ := ValidateClawdbotWorkspace(tmpDir)
		if !valid {
			t.Error("expected valid workspace with IDENTITY.md")
		}
	})

	t.Run("invalid without SOUL.md or IDENTITY.md", func(t *testing.T) {
		tmpDir := t.TempDir()
		os.WriteFile(filepath.Join(tmpDir, "AGENTS.md"), []byte("content"), 0o644)
		os.WriteFile(filepath.Join(tmpDir, "USER.md"), []byte("content"), 0o644)

		valid, missing := ValidateClawdbotWorkspace(tmpDir)
		if valid {
			t.Error("expected invalid workspace without SOUL.md or IDENTITY.md")
		}
		hasSoul, hasIdentity := false, false
		for _, m := range missing {
			if m == "SOUL.md" {
				hasSoul = true
			}
			if m == "IDENTITY.md" {
				hasIdentity = true
			}
		}
		if !hasSoul || !hasIdentity {
			t.Errorf("missing = %v, expected to include SOUL.md and IDENTITY.md", missing)
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		tmpDir := t.TempDir()

		valid, missing := ValidateClawdbotWorkspace(tmpDir)
		if valid {
			t.Error("expected invalid for empty directory")
		}
		if len(missing) != len(ClawdbotWorkspaceFiles) {
			t.Errorf("missing = %d, want %d", len(missing), len(ClawdbotWorkspaceFiles))
		}
	})
}

func TestMigrateClawdbotWorkspace(t *testing.T) {
	t.Run("migrates files successfully", func(t *testing.T) {
		sourceDir := t.TempDir()
		targetDir := t.TempDir()

		os.WriteFile(filepath.Join(sourceDir, "SOUL.md"), []byte("soul content"), 0o644)
		os.WriteFile(filepath.Join(sourceDir, "USER.md"), []byte("user content"), 0o644)

		result, err := MigrateClawdbotWorkspace(sourceDir, targetDir, false)
		if err != nil {
			t.Fatalf("MigrateClawdbotWorkspace() error = %v", err)
		}

		if len(result.CopiedFiles) != 2 {
			t.Errorf("CopiedFiles = %v, want 2 files", result.CopiedFiles)
		}

		content, err := os.ReadFile(filepath.Join(targetDir, "SOUL.md"))
		if err != nil || string(content) != "soul content" {
			t.Error("SOUL.md content not copied correctly")
		}

		if len(result.CreatedFiles) == 0 {
			t.Error("expected HEARTBEAT.md to be created")
		}
	})

	t.Run("skips existing files without overwrite", func(t *testing.T) {
		sourceDir := t.TempDir()
		targetDir := t.TempDir()

		os.WriteFile(filepath.Join(sourceDir, "SOUL.md"), []byte("new content"), 0o644)
		os.WriteFile(filepath.Join(targetDir, "SOUL.md"), []byte("existing content"), 0o644)

		result, err := MigrateClawdbotWorkspace(sourceDir, targetDir, false)
		if err != nil {
			t.Fatalf("MigrateClawdbotWorkspace() error = %v", err)
		}

		found := false
		for _, s := range result.SkippedFiles {
			if strings.Contains(s, "SOUL.md") && strings.Contains(s, "already exists") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("SkippedFiles = %v, expected SOUL.md to be skipped", result.SkippedFiles)
		}

		content, _ := os.ReadFile(filepath.Join(targetDir, "SOUL.md"))
		if string(content) != "existing content" {
			t.Error("existing file was overwritten")
		}
	})

	t.Run("overwrites files with overwrite flag", func(t *testing.T) {
		sourceDir := t.TempDir()
		targetDir := t.TempDir()

		os.WriteFile(filepath.Join(sourceDir, "SOUL.md"), []byte("new content"), 0o644)
		os.WriteFile(filepath.Join(targetDir, "SOUL.md"), []byte("existing content"), 0o644)

		result, err := MigrateClawdbotWorkspace(sourceDir, targetDir, true)
		if err != nil {
			t.Fatalf("MigrateClawdbotWorkspace() error = %v", err)
		}

		found := false
		for _, c := range result.CopiedFiles {
			if c == "SOUL.md" {
				found = true
				break
			}
		}
		if !found {
			t.Error("SOUL.md should have been copied with overwrite=true")
		}

		content, _ := os.ReadFile(filepath.Join(targetDir, "SOUL.md"))
		if string(content) != "new content" {
			t.Error("existing file was not overwritten")
		}
	})

	t.Run("returns error for nonexistent source", func(t *testing.T) {
		_, err := MigrateClawdbotWorkspace("/nonexistent/source", t.TempDir(), false)
		if err == nil {
			t.Error("expected error for nonexistent source")
		}
	})

	t.Run("returns error for file source (not directory)", func(t *testing.T) {
		tmpDir := t.TempDir()
		filePath := filepath.Join(tmpDir, "file")
		os.WriteFile(filePath, []byte("content"), 0o644)

		_, err := MigrateClawdbotWorkspace(filePath, t.TempDir(), false)
		if err == nil {
			t.Error("expected error for file source")
		}
		if !strings.Contains(err.Error(), "not a directory") {
			t.Errorf("error = %q, expected to mention 'not a directory'", err.Error())
		}
	})

	t.Run("creates target directory if needed", func(t *testing.T) {
		sourceDir := t.TempDir()
		os.WriteFile(filepath.Join(sourceDir, "SOUL.md"), []byte("content"), 0o644)

		targetDir := filepath.Join(t.TempDir(), "nested", "target")

		_, err := MigrateClawdbotWorkspace(sourceDir, targetDir, false)
		if err != nil {
			t.Fatalf("MigrateClawdbotWorkspace() error = %v", err)
		}

		if _, err := os.Stat(targetDir); os.IsNotExist(err) {
			t.Error("target directory was not created")
		}
	})
}

func TestFormatMigrationResult(t *testing.T) {
	result := &ClawdbotMigrationResult{
		SourceWorkspace: "/source/path",
		TargetWorkspace: "/target/path",
		CopiedFiles:     []string{"SOUL.md", "USER.md"},
		SkippedFiles:    []string{"AGENTS.md (not found)"},
		CreatedFiles:    []string{"HEARTBEAT.md"},
	}

	output := FormatMigrationResult(result)

	if !strings.Contains(output, "Clawdbot Workspace Migration") {
		t.Error("missing title")
	}
	if !strings.Contains(output, "/source/path") {
		t.Error("missing source path")
	}
	if !strings.Contains(output, "/target/path") {
		t.Error("missing target path")
	}
	if !strings.Contains(output, "Copied files:") {
		t.Error("missing copied files section")
	}
	if !strings.Contains(output, "SOUL.md") {
		t.Error("missing SOUL.md in copied files")
	}
	if !strings.Contains(output, "Skipped files:") {
		t.Error("missing skipped files section")
	}
	if !strings.Contains(output, "Created files") {
		t.Error("missing created files section")
	}
	if !strings.Contains(output, "HEARTBEAT.md") {
		t.Error("missing HEARTBEAT.md in created files")
	}
}

func TestDefaultBootstrapContent(t *testing.T) {
	if content := defaultBootstrapContent("HEARTBEAT.md"); content == "" {
		t.Error("defaultBootstrapContent(HEARTBEAT.md) returned empty string")
	}
	if content := defaultBootstrapContent("NOPE.md"); content == "" {
		t.Error("defaultBootstrapContent should fall back to a stub for unknown names")
	}
}

func TestClawdbotMigrationResultStruct(t *testing.T) {
	result := ClawdbotMigrationResult{
		CopiedFiles:     []string{"file1"},
		SkippedFiles:    []string{"file2"},
		CreatedFiles:    []string{"file3"},
		SourceWorkspace: "/source",
		TargetWorkspace: "/target",
	}

	if len(result.CopiedFiles) != 1 {
		t.Errorf("CopiedFiles length = %d, want 1", len(result.CopiedFiles))
	}
	if result.SourceWorkspace != "/source" {
		t.Errorf("SourceWorkspace = %q, want %q", result.SourceWorkspace, "/source")
	}
}
