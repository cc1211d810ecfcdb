package compaction

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestContextManagerAddAndGetMessages(t *testing.T) {
	cm := NewContextManager(ManagerConfig{MaxTokens: 1000})
	cm.SetSystemPrompt("you are helpful")
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "hi"})
	cm.AddMessage(&models.Message{Role: models.RoleAssistant, Content: "hello"})

	got := cm.GetMessages()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
}

func TestContextManagerNeedsCompactionOnMessageCap(t *testing.T) {
	cm := NewContextManager(ManagerConfig{MaxTokens: 100000, MaxMessages: 2})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "a"})
	if cm.NeedsCompaction() {
		t.Fatalf("expected no compaction needed yet")
	}
	cm.AddMessage(&models.Message{Role: models.RoleAssistant, Content: "b"})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "c"})
	if !cm.NeedsCompaction() {
		t.Fatalf("expected compaction needed after exceeding MaxMessages")
	}
}

func TestContextManagerCompactDropOldestPreservesToolPairs(t *testing.T) {
	cm := NewContextManager(ManagerConfig{MaxTokens: 1, MaxMessages: 2, Strategy: StrategyDropOldest})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "first"})
	cm.AddMessage(&models.Message{
		Role:      models.RoleAssistant,
		Content:   "calling tool",
		ToolCalls: []models.ToolCall{{ID: "call-1", Name: "read", Input: json.RawMessage(`{}`)}},
	})
	cm.AddMessage(&models.Message{Role: models.RoleTool, ToolCallID: "call-1", Content: "tool output"})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "latest"})

	dropped, err := cm.Compact(context.Background())
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if dropped == 0 {
		t.Fatalf("expected some messages dropped")
	}

	remaining := cm.GetMessages()
	for i, m := range remaining {
		if m.Role == models.RoleTool && i == 0 {
			t.Fatalf("tool message must not be the first message without its assistant call preceding it")
		}
	}
}

func TestContextManagerSlidingWindow(t *testing.T) {
	cm := NewContextManager(ManagerConfig{MaxTokens: 100000, Strategy: StrategySliding, SlidingWindow: 2})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "one"})
	cm.AddMessage(&models.Message{Role: models.RoleAssistant, Content: "two"})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "three"})

	dropped, err := cm.Compact(context.Background())
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 message dropped, got %d", dropped)
	}
	remaining := cm.GetMessages()
	if len(remaining) != 2 || remaining[0].Content != "two" {
		t.Fatalf("unexpected remaining messages: %+v", remaining)
	}
}

type stubSummarizer struct{}

func (stubSummarizer) GenerateSummary(ctx context.Context, messages []*Message, cfg *SummarizationConfig) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Content)
	}
	return sb.String(), nil
}

func TestContextManagerSummarizeStrategy(t *testing.T) {
	cm := NewContextManager(ManagerConfig{
		MaxTokens: 100000,
		Strategy:  StrategySummarize,
		Summarizer: stubSummarizer{},
	})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "one"})
	cm.AddMessage(&models.Message{Role: models.RoleAssistant, Content: "two"})
	cm.AddMessage(&models.Message{Role: models.RoleUser, Content: "three"})
	cm.AddMessage(&models.Message{Role: models.RoleAssistant, Content: "four"})

	_, err := cm.Compact(context.Background())
	if err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
	remaining := cm.GetMessages()
	if remaining[0].Role != models.RoleSystem {
		t.Fatalf("expected first remaining message to be the generated summary, got %+v", remaining[0])
	}
}
