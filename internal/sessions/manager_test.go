package sessions

import (
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestCreateSessionReplacesExistingRoute(t *testing.T) {
	m := NewManager()
	first := m.CreateSession("telegram", "telegram:u1", models.SessionConfig{AgentName: "default"})
	second := m.CreateSession("telegram", "telegram:u1", models.SessionConfig{AgentName: "default"})

	if first.ID == second.ID {
		t.Fatalf("expected a new session id on route replacement")
	}
	if _, err := m.GetSession(first.ID); err != ErrNotFound {
		t.Fatalf("expected first session to be gone, got err=%v", err)
	}
	bound, ok := m.GetByRoute("telegram:u1")
	if !ok || bound.ID != second.ID {
		t.Fatalf("expected route bound to second session")
	}
}

func TestTouchSessionAccumulatesMetadata(t *testing.T) {
	m := NewManager()
	session := m.CreateSession("discord", "discord:u2", models.SessionConfig{})

	if err := m.TouchSession(session.ID, models.SessionMetadata{LoopIterations: 1, LLMCalls: 2}); err != nil {
		t.Fatalf("TouchSession() error = %v", err)
	}
	if err := m.TouchSession(session.ID, models.SessionMetadata{LoopIterations: 1, ToolCalls: 3}); err != nil {
		t.Fatalf("TouchSession() error = %v", err)
	}

	updated, err := m.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if updated.Metadata.LoopIterations != 2 || updated.Metadata.LLMCalls != 2 || updated.Metadata.ToolCalls != 3 {
		t.Fatalf("unexpected metadata: %+v", updated.Metadata)
	}
}

func TestEndSessionClearsRouteBinding(t *testing.T) {
	m := NewManager()
	session := m.CreateSession("slack", "slack:u3", models.SessionConfig{})

	if err := m.EndSession(session.ID, models.SessionCompleted); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if _, ok := m.GetByRoute("slack:u3"); ok {
		t.Fatalf("expected route binding to be cleared")
	}
	ended, err := m.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if ended.Status != models.SessionCompleted {
		t.Fatalf("expected status completed, got %s", ended.Status)
	}
}

func TestEvictIdle(t *testing.T) {
	m := NewManager()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	session := m.CreateSession("whatsapp", "whatsapp:u4", models.SessionConfig{})

	m.now = func() time.Time { return fixed.Add(10 * time.Minute) }
	evicted := m.EvictIdle(5 * time.Minute)
	if len(evicted) != 1 || evicted[0] != session.ID {
		t.Fatalf("expected session to be evicted, got %v", evicted)
	}

	after, err := m.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if after.Status != models.SessionCompleted {
		t.Fatalf("expected evicted session marked completed, got %s", after.Status)
	}
}

func TestListSessionsReturnsCopies(t *testing.T) {
	m := NewManager()
	m.CreateSession("matrix", "matrix:u5", models.SessionConfig{AgentName: "default"})

	sessions := m.ListSessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	sessions[0].Config.AgentName = "mutated"

	reloaded := m.ListSessions()
	if reloaded[0].Config.AgentName != "default" {
		t.Fatalf("expected manager's internal state to be unaffected by caller mutation")
	}
}
