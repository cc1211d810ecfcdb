package models

// RoutingDecision is the result of matching an InboundMessage against the
// ordered agent routing rules. A nil/empty AgentName means the message is
// silently dropped (no agent matched, or the matched agent is undefined).
type RoutingDecision struct {
	AgentName   string   `json:"agent_name"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Model       string   `json:"model,omitempty"`
	ToolExclude []string `json:"tool_exclude,omitempty"`
	Matched     bool     `json:"matched"`
	RuleIndex   int      `json:"rule_index,omitempty"`
}
