package pairing

import (
	"testing"
	"time"
)

func TestGenerateCodeThenExchange(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	code, expiresAt, err := m.GenerateCode("my-phone")
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if len(code) != CodeLength {
		t.Fatalf("expected code length %d, got %d (%q)", CodeLength, len(code), code)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future")
	}

	clientID, token, _, err := m.ExchangeCode(code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if clientID == "" || token == "" {
		t.Fatalf("expected non-empty client id and token")
	}

	if _, err := m.ExchangeCode(code); err != ErrCodeNotFound {
		t.Fatalf("expected ErrCodeNotFound on reuse, got %v", err)
	}

	validated, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if validated != clientID {
		t.Fatalf("expected client id %q, got %q", clientID, validated)
	}
}

func TestValidateTokenRejectsUnknown(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.ValidateToken("not-a-real-token"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestMaxActiveCodes(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	for i := 0; i < MaxActiveCodes; i++ {
		if _, _, err := m.GenerateCode(""); err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
	}
	if _, _, err := m.GenerateCode(""); err != ErrMaxActiveCodes {
		t.Fatalf("expected ErrMaxActiveCodes, got %v", err)
	}
}

func TestRevokeCode(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	code, _, err := m.GenerateCode("")
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if err := m.RevokeCode(code); err != nil {
		t.Fatalf("RevokeCode() error = %v", err)
	}
	if _, _, _, err := m.ExchangeCode(code); err != ErrCodeNotFound {
		t.Fatalf("expected ErrCodeNotFound after revoke, got %v", err)
	}
}

func TestRevokeClientInvalidatesToken(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	code, _, err := m.GenerateCode("")
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	clientID, token, _, err := m.ExchangeCode(code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if err := m.RevokeClient(clientID); err != nil {
		t.Fatalf("RevokeClient() error = %v", err)
	}
	if _, err := m.ValidateToken(token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid after revoke, got %v", err)
	}
}

func TestListClientsRedactsToken(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	code, _, err := m.GenerateCode("laptop")
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if _, _, _, err := m.ExchangeCode(code); err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	clients := m.ListClients()
	if len(clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(clients))
	}
	if clients[0].Label != "laptop" {
		t.Fatalf("expected label %q, got %q", "laptop", clients[0].Label)
	}
}

func TestStatsCounts(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, _, err := m.GenerateCode(""); err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	stats := m.Stats()
	if stats.ActiveCodes != 1 || stats.PairedClients != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	code, _, err := m1.GenerateCode("tablet")
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	_, token, _, err := m1.ExchangeCode(code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	m2, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() (reload) error = %v", err)
	}
	if _, err := m2.ValidateToken(token); err != nil {
		t.Fatalf("ValidateToken() after reload error = %v", err)
	}
}
