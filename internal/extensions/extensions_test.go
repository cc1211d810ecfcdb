package extensions

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/mcp"
)

func TestList_NilInputs(t *testing.T) {
	result := List(nil, nil)
	if len(result) != 0 {
		t.Fatalf("expected empty list for nil inputs, got %d", len(result))
	}
}

func TestList_MCPOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.MCP = mcp.Config{
		Enabled: true,
		Servers: []*mcp.ServerConfig{
			{ID: "server-1", Name: "Server One", Transport: mcp.TransportStdio, AutoStart: true},
			{ID: "server-2", Name: "", Transport: mcp.TransportHTTP, AutoStart: false},
			nil,
		},
	}

	result := List(cfg, nil)
	if len(result) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(result))
	}

	if result[0].ID != "server-1" {
		t.Fatalf("expected 'server-1', got %q", result[0].ID)
	}
	if result[0].Name != "Server One" {
		t.Fatalf("expected name 'Server One', got %q", result[0].Name)
	}
	if result[0].Status != "auto_start" {
		t.Fatalf("expected 'auto_start', got %q", result[0].Status)
	}

	if result[1].Name != "server-2" {
		t.Fatalf("expected name fallback to ID 'server-2', got %q", result[1].Name)
	}
	if result[1].Status != "configured" {
		t.Fatalf("expected 'configured', got %q", result[1].Status)
	}
	if result[1].Source != string(mcp.TransportHTTP) {
		t.Fatalf("expected source %q, got %q", mcp.TransportHTTP, result[1].Source)
	}
}

func TestList_MCPDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.MCP = mcp.Config{
		Enabled: false,
		Servers: []*mcp.ServerConfig{
			{ID: "server-1", Name: "S1", Transport: mcp.TransportStdio, AutoStart: true},
		},
	}

	result := List(cfg, nil)
	if len(result) != 0 {
		t.Fatalf("expected 0 extensions when MCP disabled, got %d", len(result))
	}
}

func TestList_SortedByKindThenID(t *testing.T) {
	cfg := &config.Config{}
	cfg.MCP = mcp.Config{
		Enabled: true,
		Servers: []*mcp.ServerConfig{
			{ID: "zeta-server", Name: "Zeta", Transport: mcp.TransportStdio},
			{ID: "alpha-server", Name: "Alpha", Transport: mcp.TransportStdio},
		},
	}

	result := List(cfg, nil)
	if len(result) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(result))
	}
	if result[0].ID != "alpha-server" || result[1].ID != "zeta-server" {
		t.Fatalf("expected alpha-server before zeta-server, got %+v", result)
	}
}
