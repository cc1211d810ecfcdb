package doctor

import (
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
)

func TestAuditSecurityFlagsPublicBind(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "0.0.0.0"}}
	audit := AuditSecurity(cfg, "")
	found := false
	for _, f := range audit.Findings {
		if f.Severity == SeverityInfo {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an info finding for a public bind, got %+v", audit.Findings)
	}
}

func TestAuditSecurityLoopbackIsQuiet(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1"}}
	audit := AuditSecurity(cfg, "")
	for _, f := range audit.Findings {
		if f.Message != "" && f.Severity == SeverityInfo {
			t.Fatalf("did not expect a public-bind finding for loopback, got %+v", f)
		}
	}
}

func TestAuditSecuritySkipVerifyWarns(t *testing.T) {
	cfg := &config.Config{
		Server:      config.ServerConfig{Host: "127.0.0.1"},
		Marketplace: config.MarketplaceConfig{Enabled: true, SkipVerify: true},
	}
	audit := AuditSecurity(cfg, "")
	found := false
	for _, f := range audit.Findings {
		if f.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning finding for marketplace.skip_verify, got %+v", audit.Findings)
	}
}
