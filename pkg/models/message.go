package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelMatrix   ChannelType = "matrix"
	ChannelCron     ChannelType = "cron"
	ChannelWebhook  ChannelType = "webhook"
	ChannelCLI      ChannelType = "cli"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// OutboundFormat indicates how an outbound message's text should be rendered.
type OutboundFormat string

const (
	FormatText     OutboundFormat = "text"
	FormatMarkdown OutboundFormat = "markdown"
	FormatHTML     OutboundFormat = "html"
)

// Message is one entry in a conversation context. An assistant message may
// carry tool calls; a tool message always carries the ToolCallID of the
// assistant call it answers. Compaction never separates the two.
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id,omitempty"`
	BranchID   string         `json:"branch_id,omitempty"`
	// SequenceNum orders a message within its branch. Branch forking reads
	// messages with SequenceNum <= the fork's BranchPoint from the parent.
	SequenceNum int64          `json:"sequence_num,omitempty"`
	Channel    ChannelType    `json:"channel,omitempty"`
	// ChannelID identifies the message within its originating channel
	// (e.g. a Discord message ID, a Slack timestamp), distinct from SessionID.
	ChannelID  string         `json:"channel_id,omitempty"`
	Direction  Direction      `json:"direction,omitempty"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ToolCall is an LLM's request to execute a named tool with structured,
// opaque arguments. ID is unique within a session's context.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Attachment represents a file or media attachment on an inbound message.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, file
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionMetadata accumulates per-session counters. Every field is only
// ever incremented by the components that own the corresponding event.
type SessionMetadata struct {
	LoopIterations int `json:"loop_iterations"`
	LLMCalls       int `json:"llm_calls"`
	ToolCalls      int `json:"tool_invocations"`
	Errors         int `json:"errors"`
}

// SessionConfig carries the routing decision and per-agent overrides a
// session was created with.
type SessionConfig struct {
	AgentName     string   `json:"agent_name"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Model         string   `json:"model,omitempty"`
	MaxIterations int      `json:"max_iterations"`
	ToolExclude   []string `json:"tool_exclude,omitempty"`
}

// Session is a single conversation's lifecycle record. The SessionManager
// holds the only strong reference to it.
type Session struct {
	ID           string          `json:"id"`
	ChannelID    string          `json:"channel_id"`
	UserID       string          `json:"user_id,omitempty"`
	RouteKey     string          `json:"route_key"`
	Config       SessionConfig   `json:"config"`
	Status       SessionStatus   `json:"status"`
	Metadata     SessionMetadata `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
	LastActiveAt time.Time       `json:"last_active_at"`
}

// From identifies the originator of an InboundMessage.
type From struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// InboundMessage is what every channel adapter (and the scheduler, and the
// webhook handler) produces on its way into the pipeline.
type InboundMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	From        From         `json:"from"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// OutboundMessage is what the agent loop's channel handler sends back.
type OutboundMessage struct {
	Text     string         `json:"text"`
	Format   OutboundFormat `json:"format"`
	ReplyTo  string         `json:"reply_to,omitempty"`
}

// User represents an authenticated control-plane principal.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
