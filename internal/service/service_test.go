package service

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
)

func TestGenerateSystemdUnit(t *testing.T) {
	content := GenerateSystemdUnit("/usr/local/bin/nexus", "/etc/nexus.yaml")
	if !containsAll(content, []string{"ExecStart=/usr/local/bin/nexus serve --config /etc/nexus.yaml", "Restart=on-failure"}) {
		t.Fatalf("expected systemd unit content, got %q", content)
	}
}

func TestGenerateLaunchdPlist(t *testing.T) {
	content := GenerateLaunchdPlist("/usr/local/bin/nexus", "/etc/nexus.yaml")
	if !containsAll(content, []string{"ProgramArguments", "/usr/local/bin/nexus", "--config", "/etc/nexus.yaml"}) {
		t.Fatalf("expected launchd plist content, got %q", content)
	}
}

func TestNormalizeConfigPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "nexus.yaml"},
		{"  ", "nexus.yaml"},
		{"custom.yaml", "custom.yaml"},
		{"/etc/nexus/config.yaml", "/etc/nexus/config.yaml"},
	}
	for _, tt := range tests {
		if got := normalizeConfigPath(tt.input); got != tt.expected {
			t.Errorf("normalizeConfigPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRestartUserServiceCommands(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin":
	default:
		t.Skip("restart not supported on this platform")
	}

	origRunner := commandRunner
	t.Cleanup(func() { commandRunner = origRunner })

	var calls []string
	commandRunner = func(ctx context.Context, name string, args ...string) error {
		calls = append(calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
		return nil
	}

	steps, err := RestartUserService(context.Background())
	if err != nil {
		t.Fatalf("RestartUserService() error = %v", err)
	}
	if len(steps) == 0 || len(calls) != len(steps) {
		t.Fatalf("expected one command call per restart step")
	}
}

func TestRestartUserServiceCommandError(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("restart not supported on this platform")
	}

	origRunner := commandRunner
	t.Cleanup(func() { commandRunner = origRunner })
	commandRunner = func(ctx context.Context, name string, args ...string) error {
		return context.DeadlineExceeded
	}

	if _, err := RestartUserService(context.Background()); err == nil {
		t.Fatal("expected error when the first restart command fails")
	}
}

func containsAll(content string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(content, needle) {
			return false
		}
	}
	return true
}

func TestInstallUserServiceLinux(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("skipping Linux-specific test")
	}

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	result, err := InstallUserService("test-config.yaml", true)
	if err != nil {
		t.Fatalf("InstallUserService() error = %v", err)
	}
	if !strings.Contains(result.Path, "systemd") {
		t.Errorf("Path %q should contain 'systemd'", result.Path)
	}
	content, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("failed to read service file: %v", err)
	}
	if !strings.Contains(string(content), "test-config.yaml") {
		t.Error("service file should contain the config path")
	}
}

func TestInstallUserServiceNoOverwrite(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("skipping Linux-specific test")
	}

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	result1, err := InstallUserService("first-config.yaml", false)
	if err != nil {
		t.Fatalf("first InstallUserService() error = %v", err)
	}
	result2, err := InstallUserService("second-config.yaml", false)
	if err != nil {
		t.Fatalf("second InstallUserService() error = %v", err)
	}
	if result1.Path != result2.Path {
		t.Errorf("paths should match: %q != %q", result1.Path, result2.Path)
	}
	content, _ := os.ReadFile(result2.Path)
	if !strings.Contains(string(content), "first-config.yaml") {
		t.Error("file should still contain the first config path")
	}
}

func TestConstants(t *testing.T) {
	if SystemdUnitName != "nexus.service" {
		t.Errorf("SystemdUnitName = %q, want %q", SystemdUnitName, "nexus.service")
	}
	if LaunchdLabel != "com.haasonsaas.nexus" {
		t.Errorf("LaunchdLabel = %q, want %q", LaunchdLabel, "com.haasonsaas.nexus")
	}
}
