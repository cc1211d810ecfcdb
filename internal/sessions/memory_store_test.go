package sessions

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{RouteKey: "default:telegram:123", ChannelID: "123", Config: models.SessionConfig{AgentName: "default"}}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected Create to assign an ID")
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RouteKey != session.RouteKey {
		t.Errorf("RouteKey = %q, want %q", got.RouteKey, session.RouteKey)
	}

	byKey, err := store.GetByKey(ctx, session.RouteKey)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if byKey.ID != session.ID {
		t.Errorf("GetByKey ID = %q, want %q", byKey.ID, session.ID)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{RouteKey: "default:telegram:456"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, session.ID); err != ErrNotFound {
		t.Errorf("expected deleted session to be gone, got err = %v", err)
	}
}

func TestMemoryStoreAppendAndGetHistory(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{RouteKey: "default:telegram:789"}
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		msg := &models.Message{SessionID: session.ID, Role: models.RoleUser, Content: "hi"}
		if err := store.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	history, err := store.GetHistory(ctx, session.ID, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
}

func TestMemoryStoreAppendMessageUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage(context.Background(), "missing", &models.Message{Content: "hi"})
	if err != ErrNotFound {
		t.Errorf("AppendMessage() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, agent := range []string{"a", "a", "b"} {
		session := &models.Session{RouteKey: agent + ":telegram:" + string(rune('0'+i)), Config: models.SessionConfig{AgentName: agent}}
		if err := store.Create(ctx, session); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	results, err := store.List(ctx, "a", ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 sessions for agent a, got %d", len(results))
	}
}
