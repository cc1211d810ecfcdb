// Package multiagent parses AGENTS.md manifests that describe a fleet of
// specialized agents and the handoff rules that route between them.
package multiagent

import "encoding/json"

// AgentDefinition describes a specialized agent in the multi-agent system.
type AgentDefinition struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	Description        string         `json:"description" yaml:"description"`
	SystemPrompt       string         `json:"system_prompt" yaml:"system_prompt"`
	Model              string         `json:"model,omitempty" yaml:"model"`
	Provider           string         `json:"provider,omitempty" yaml:"provider"`
	Tools              []string       `json:"tools,omitempty" yaml:"tools"`
	HandoffRules       []HandoffRule  `json:"handoff_rules,omitempty" yaml:"handoff_rules"`
	CanReceiveHandoffs bool           `json:"can_receive_handoffs" yaml:"can_receive_handoffs"`
	MaxIterations      int            `json:"max_iterations,omitempty" yaml:"max_iterations"`
	Metadata           map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// HandoffRule defines conditions for transferring control to another agent.
type HandoffRule struct {
	TargetAgentID  string             `json:"target_agent_id" yaml:"target_agent_id"`
	Triggers       []RoutingTrigger   `json:"triggers" yaml:"triggers"`
	Priority       int                `json:"priority,omitempty" yaml:"priority"`
	ContextMode    ContextSharingMode `json:"context_mode,omitempty" yaml:"context_mode"`
	ReturnToSender bool               `json:"return_to_sender,omitempty" yaml:"return_to_sender"`
	Message        string             `json:"message,omitempty" yaml:"message"`
}

// RoutingTrigger defines a condition that activates agent routing.
type RoutingTrigger struct {
	Type   TriggerType `json:"type" yaml:"type"`
	Value  string      `json:"value,omitempty" yaml:"value"`
	Values []string    `json:"values,omitempty" yaml:"values"`
}

// TriggerType defines the type of routing trigger.
type TriggerType string

const (
	TriggerKeyword      TriggerType = "keyword"
	TriggerPattern      TriggerType = "pattern"
	TriggerIntent       TriggerType = "intent"
	TriggerToolUse      TriggerType = "tool_use"
	TriggerExplicit     TriggerType = "explicit"
	TriggerFallback     TriggerType = "fallback"
	TriggerAlways       TriggerType = "always"
	TriggerTaskComplete TriggerType = "task_complete"
	TriggerError        TriggerType = "error"
)

// ContextSharingMode defines how context is shared during handoffs.
type ContextSharingMode string

const (
	ContextFull     ContextSharingMode = "full"
	ContextSummary  ContextSharingMode = "summary"
	ContextFiltered ContextSharingMode = "filtered"
	ContextNone     ContextSharingMode = "none"
	ContextLastN    ContextSharingMode = "last_n"
)

// MultiAgentConfig contains the overall multi-agent system configuration,
// either loaded from YAML directly or derived from an AgentManifest.
type MultiAgentConfig struct {
	DefaultAgentID      string             `json:"default_agent_id" yaml:"default_agent_id"`
	SupervisorAgentID   string             `json:"supervisor_agent_id,omitempty" yaml:"supervisor_agent_id"`
	Agents              []AgentDefinition  `json:"agents" yaml:"agents"`
	GlobalHandoffRules  []HandoffRule      `json:"global_handoff_rules,omitempty" yaml:"global_handoff_rules"`
	DefaultContextMode  ContextSharingMode `json:"default_context_mode,omitempty" yaml:"default_context_mode"`
	MaxHandoffDepth     int                `json:"max_handoff_depth,omitempty" yaml:"max_handoff_depth"`
	EnablePeerHandoffs  bool               `json:"enable_peer_handoffs" yaml:"enable_peer_handoffs"`
}

// AgentManifest represents an AGENTS.md parsed structure.
type AgentManifest struct {
	Agents       []AgentDefinition `json:"agents"`
	GlobalConfig *MultiAgentConfig `json:"global_config,omitempty"`
	Source       string            `json:"source,omitempty"`
}

// ToJSON serializes the agent definition to JSON.
func (a *AgentDefinition) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// HasTool checks if the agent has access to a specific tool.
func (a *AgentDefinition) HasTool(toolName string) bool {
	for _, t := range a.Tools {
		if t == toolName {
			return true
		}
	}
	return false
}

// GetHandoffTarget returns the target agent for a given trigger, if any rule matches.
func (a *AgentDefinition) GetHandoffTarget(trigger TriggerType, value string) *HandoffRule {
	for i := range a.HandoffRules {
		rule := &a.HandoffRules[i]
		for _, t := range rule.Triggers {
			if t.Type == trigger && (t.Value == "" || t.Value == value || containsValue(t.Values, value)) {
				return rule
			}
		}
	}
	return nil
}

func containsValue(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
