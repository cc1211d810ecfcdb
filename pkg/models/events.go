package models

import (
	"encoding/json"
	"time"
)

// ToolResult is the persisted/wire form of a tool call's outcome, stored on
// a session's transcript and sent back to the LLM as a tool-role message.
type ToolResult struct {
	ToolCallID  string       `json:"tool_call_id"`
	Content     string       `json:"content"`
	IsError     bool         `json:"is_error,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// AgentEventType enumerates the external agent-loop event taxonomy:
// started -> (text | tool_start | tool_end | tool_validation_error | error)* -> complete | error.
type AgentEventType string

const (
	AgentEventRunStarted      AgentEventType = "run.started"
	AgentEventRunFinished     AgentEventType = "run.finished"
	AgentEventRunError        AgentEventType = "run.error"
	AgentEventRunCancelled    AgentEventType = "run.cancelled"
	AgentEventRunTimedOut     AgentEventType = "run.timed_out"
	AgentEventIterStarted     AgentEventType = "iter.started"
	AgentEventIterFinished    AgentEventType = "iter.finished"
	AgentEventModelDelta      AgentEventType = "model.delta"
	AgentEventModelCompleted  AgentEventType = "model.completed"
	AgentEventToolStarted     AgentEventType = "tool.started"
	AgentEventToolStdout      AgentEventType = "tool.stdout"
	AgentEventToolStderr      AgentEventType = "tool.stderr"
	AgentEventToolFinished    AgentEventType = "tool.finished"
	AgentEventToolTimedOut    AgentEventType = "tool.timed_out"
	AgentEventToolValidation  AgentEventType = "tool.validation_error"
	AgentEventContextPacked   AgentEventType = "context.packed"
	AgentEventVerified        AgentEventType = "run.verified"
)

// StreamEventPayload carries model streaming data for model.delta and
// model.completed events.
type StreamEventPayload struct {
	Delta        string `json:"delta,omitempty"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ToolEventPayload carries tool lifecycle data for tool.* events.
type ToolEventPayload struct {
	CallID     string          `json:"call_id"`
	Name       string          `json:"name"`
	ArgsJSON   json.RawMessage `json:"args_json,omitempty"`
	Chunk      string          `json:"chunk,omitempty"`
	Success    bool            `json:"success,omitempty"`
	ResultJSON json.RawMessage `json:"result_json,omitempty"`
	Elapsed    time.Duration   `json:"elapsed,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// ErrorEventPayload carries error detail for run.error and related events.
type ErrorEventPayload struct {
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
	Err       error  `json:"-"`
}

// ContextEventPayload reports compaction diagnostics for context.packed events.
type ContextEventPayload struct {
	Strategy      string `json:"strategy"`
	TokensBefore  int    `json:"tokens_before"`
	TokensAfter   int    `json:"tokens_after"`
	Dropped       int    `json:"dropped"`
	MessagesAfter int    `json:"messages_after"`

	// Budget accounting, used by the trace replay's context view.
	BudgetChars    int `json:"budget_chars,omitempty"`
	BudgetMessages int `json:"budget_messages,omitempty"`
	UsedChars      int `json:"used_chars,omitempty"`
	UsedMessages   int `json:"used_messages,omitempty"`
	Candidates     int `json:"candidates,omitempty"`
	Included       int `json:"included,omitempty"`

	SummaryUsed  bool `json:"summary_used,omitempty"`
	SummaryChars int  `json:"summary_chars,omitempty"`

	// Items is populated only when the caller asks for per-item packing detail.
	Items []ContextPackItem `json:"items,omitempty"`
}

// ContextPackItem describes a single item's fate in a context packing decision.
type ContextPackItem struct {
	ID       string            `json:"id,omitempty"`
	Kind     ContextItemKind   `json:"kind"`
	Chars    int               `json:"chars"`
	Included bool              `json:"included"`
	Reason   ContextPackReason `json:"reason,omitempty"`
}

// ContextItemKind categorizes a context item for packing diagnostics.
type ContextItemKind string

const (
	ContextItemSystem   ContextItemKind = "system"
	ContextItemHistory  ContextItemKind = "history"
	ContextItemTool     ContextItemKind = "tool"
	ContextItemSummary  ContextItemKind = "summary"
	ContextItemIncoming ContextItemKind = "incoming"
)

// ContextPackReason explains why an item was included or dropped during packing.
type ContextPackReason string

const (
	ContextReasonIncluded   ContextPackReason = "included"
	ContextReasonReserved   ContextPackReason = "reserved"
	ContextReasonOverBudget ContextPackReason = "over_budget"
	ContextReasonTooOld     ContextPackReason = "too_old"
	ContextReasonFiltered   ContextPackReason = "filtered"
)

// TextEventPayload carries generic human-readable text for log-style events.
type TextEventPayload struct {
	Text string `json:"text"`
}

// StatsEventPayload wraps accumulated RunStats for run.finished and
// context.packed events.
type StatsEventPayload struct {
	Run *RunStats `json:"run,omitempty"`
}

// RunStats accumulates per-run statistics across a run's lifetime.
type RunStats struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	WallTime      time.Duration `json:"wall_time"`
	Iters         int           `json:"iters"`
	ModelWallTime time.Duration `json:"model_wall_time"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	Turns         int           `json:"turns,omitempty"`
	ToolCalls     int           `json:"tool_calls"`
	ToolWallTime  time.Duration `json:"tool_wall_time"`
	ToolTimeouts  int           `json:"tool_timeouts"`
	ContextPacks  int           `json:"context_packs"`
	DroppedItems  int           `json:"dropped_items"`
	Errors        int           `json:"errors"`
	Cancelled     bool          `json:"cancelled"`
	TimedOut      bool          `json:"timed_out"`
}

// AgentEvent is a single, sequenced event in an agent run's external stream.
type AgentEvent struct {
	Version   int                  `json:"version"`
	Type      AgentEventType       `json:"type"`
	Time      time.Time            `json:"time"`
	Sequence  uint64               `json:"sequence"`
	RunID     string               `json:"run_id"`
	TurnIndex int                  `json:"turn_index"`
	IterIndex int                  `json:"iter_index"`
	Text      *TextEventPayload    `json:"text,omitempty"`
	Stream    *StreamEventPayload  `json:"stream,omitempty"`
	Tool      *ToolEventPayload    `json:"tool,omitempty"`
	Error     *ErrorEventPayload   `json:"error,omitempty"`
	Context   *ContextEventPayload `json:"context,omitempty"`
	Stats     *StatsEventPayload   `json:"stats,omitempty"`
	Verification *VerificationEventPayload `json:"verification,omitempty"`
}

// VerificationEventPayload carries the post-completion verification result
// for run.verified events. Verification is observational: it never causes
// a retry, only reports confidence in the answer that already shipped.
type VerificationEventPayload struct {
	Outcome    string   `json:"outcome"` // success, partial, failure
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Issues     []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
