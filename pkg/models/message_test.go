package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChannelType_Constants(t *testing.T) {
	tests := []struct {
		constant ChannelType
		expected string
	}{
		{ChannelTelegram, "telegram"},
		{ChannelDiscord, "discord"},
		{ChannelSlack, "slack"},
		{ChannelWhatsApp, "whatsapp"},
		{ChannelMatrix, "matrix"},
		{ChannelCron, "cron"},
		{ChannelWebhook, "webhook"},
		{ChannelCLI, "cli"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestDirection_Constants(t *testing.T) {
	if string(DirectionInbound) != "inbound" {
		t.Errorf("DirectionInbound = %q, want %q", DirectionInbound, "inbound")
	}
	if string(DirectionOutbound) != "outbound" {
		t.Errorf("DirectionOutbound = %q, want %q", DirectionOutbound, "outbound")
	}
}

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestMessage_Struct(t *testing.T) {
	now := time.Now()
	msg := Message{
		ID:          "msg-123",
		SessionID:   "session-456",
		BranchID:    "branch-789",
		SequenceNum: 5,
		Channel:     ChannelSlack,
		ChannelID:   "C12345",
		Direction:   DirectionInbound,
		Role:        RoleUser,
		Content:     "Hello, world!",
		Attachments: []Attachment{{ID: "att-1", Type: "image"}},
		Metadata:    map[string]any{"key": "value"},
		CreatedAt:   now,
	}

	if msg.ID != "msg-123" {
		t.Errorf("ID = %q, want %q", msg.ID, "msg-123")
	}
	if msg.Channel != ChannelSlack {
		t.Errorf("Channel = %v, want %v", msg.Channel, ChannelSlack)
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %v, want %v", msg.Role, RoleUser)
	}
	if msg.SequenceNum != 5 {
		t.Errorf("SequenceNum = %d, want 5", msg.SequenceNum)
	}
	if msg.BranchID != "branch-789" {
		t.Errorf("BranchID = %q, want %q", msg.BranchID, "branch-789")
	}
	if msg.ChannelID != "C12345" {
		t.Errorf("ChannelID = %q, want %q", msg.ChannelID, "C12345")
	}
	if msg.Direction != DirectionInbound {
		t.Errorf("Direction = %v, want %v", msg.Direction, DirectionInbound)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ID != "att-1" {
		t.Errorf("Attachments = %+v", msg.Attachments)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := Message{
		ID:         "msg-123",
		SessionID:  "session-456",
		BranchID:   "branch-1",
		Channel:    ChannelTelegram,
		Role:       RoleAssistant,
		Content:    "Hello!",
		ToolCalls:  []ToolCall{{ID: "tc-1", Name: "search", Input: json.RawMessage(`{"q":"test"}`)}},
		ToolCallID: "tc-0",
		Metadata:   map[string]any{"source": "test"},
		CreatedAt:  now,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if decoded.Channel != original.Channel {
		t.Errorf("Channel = %v, want %v", decoded.Channel, original.Channel)
	}
	if len(decoded.ToolCalls) != 1 {
		t.Errorf("ToolCalls length = %d, want 1", len(decoded.ToolCalls))
	}
}

func TestAttachment_Struct(t *testing.T) {
	att := Attachment{
		ID:       "att-123",
		Type:     "image",
		URL:      "http://example.com/image.png",
		Filename: "image.png",
		MimeType: "image/png",
		Size:     1024,
	}

	if att.ID != "att-123" {
		t.Errorf("ID = %q, want %q", att.ID, "att-123")
	}
	if att.Type != "image" {
		t.Errorf("Type = %q, want %q", att.Type, "image")
	}
	if att.Size != 1024 {
		t.Errorf("Size = %d, want 1024", att.Size)
	}
}

func TestToolCall_Struct(t *testing.T) {
	tc := ToolCall{
		ID:    "tc-123",
		Name:  "web_search",
		Input: json.RawMessage(`{"query": "test query"}`),
	}

	if tc.ID != "tc-123" {
		t.Errorf("ID = %q, want %q", tc.ID, "tc-123")
	}
	if tc.Name != "web_search" {
		t.Errorf("Name = %q, want %q", tc.Name, "web_search")
	}
}

func TestToolResult_Struct(t *testing.T) {
	tr := ToolResult{
		ToolCallID: "tc-123",
		Content:    "Search results here",
		IsError:    false,
	}

	if tr.ToolCallID != "tc-123" {
		t.Errorf("ToolCallID = %q, want %q", tr.ToolCallID, "tc-123")
	}
	if tr.IsError {
		t.Error("IsError should be false")
	}

	trError := ToolResult{
		ToolCallID: "tc-456",
		Content:    "Error occurred",
		IsError:    true,
	}
	if !trError.IsError {
		t.Error("IsError should be true")
	}
}

func TestSession_Struct(t *testing.T) {
	now := time.Now()
	session := Session{
		ID:        "session-123",
		ChannelID: "discord-channel",
		UserID:    "user-456",
		RouteKey:  "agent:discord:discord-channel",
		Config:    SessionConfig{AgentName: "agent-456"},
		Status:    SessionActive,
		Metadata:  SessionMetadata{LoopIterations: 2},
		CreatedAt: now,
	}

	if session.ID != "session-123" {
		t.Errorf("ID = %q, want %q", session.ID, "session-123")
	}
	if session.Config.AgentName != "agent-456" {
		t.Errorf("AgentName = %v, want %v", session.Config.AgentName, "agent-456")
	}
	if session.Status != SessionActive {
		t.Errorf("Status = %v, want %v", session.Status, SessionActive)
	}
}

func TestUser_Struct(t *testing.T) {
	now := time.Now()
	user := User{
		ID:        "user-123",
		Email:     "test@example.com",
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if user.ID != "user-123" {
		t.Errorf("ID = %q, want %q", user.ID, "user-123")
	}
	if user.Email != "test@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "test@example.com")
	}
}
