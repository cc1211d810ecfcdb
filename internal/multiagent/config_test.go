package multiagent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseAgentsMarkdown(t *testing.T) {
	content := `# Agent: coordinator
Name: Coordinator
Description: Routes requests

## System Prompt
You are the coordinator.

## Tools
- handoff
- list_agents

## Handoffs
- To: code-expert, Triggers: keyword:code keyword:programming, Context: summary
`
	manifest, err := ParseAgentsMarkdown(content, "AGENTS.md")
	if err != nil {
		t.Fatalf("ParseAgentsMarkdown() error = %v", err)
	}
	if len(manifest.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(manifest.Agents))
	}

	agent := manifest.Agents[0]
	if agent.ID != "coordinator" || agent.Name != "Coordinator" {
		t.Errorf("unexpected agent identity: %+v", agent)
	}
	if agent.SystemPrompt != "You are the coordinator." {
		t.Errorf("SystemPrompt = %q", agent.SystemPrompt)
	}
	if len(agent.Tools) != 2 || agent.Tools[0] != "handoff" {
		t.Errorf("Tools = %v", agent.Tools)
	}
	if len(agent.HandoffRules) != 1 {
		t.Fatalf("expected 1 handoff rule, got %d", len(agent.HandoffRules))
	}
	rule := agent.HandoffRules[0]
	if rule.TargetAgentID != "code-expert" {
		t.Errorf("TargetAgentID = %q", rule.TargetAgentID)
	}
	if rule.ContextMode != ContextSummary {
		t.Errorf("ContextMode = %q, want %q", rule.ContextMode, ContextSummary)
	}
	if len(rule.Triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(rule.Triggers))
	}
	if rule.Triggers[0].Type != TriggerKeyword || rule.Triggers[0].Value != "code" {
		t.Errorf("trigger[0] = %+v", rule.Triggers[0])
	}
}

func TestParseAgentsMarkdown_MultipleAgents(t *testing.T) {
	content := "# Agent: a\nName: A\n\n# Agent: b\nName: B\n"
	manifest, err := ParseAgentsMarkdown(content, "")
	if err != nil {
		t.Fatalf("ParseAgentsMarkdown() error = %v", err)
	}
	if len(manifest.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(manifest.Agents))
	}
	if manifest.Agents[0].ID != "a" || manifest.Agents[1].ID != "b" {
		t.Errorf("unexpected agent order: %+v", manifest.Agents)
	}
}

func TestLoadAgentsManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	content := "# Agent: coordinator\nName: Coordinator\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	manifest, err := LoadAgentsManifest(path)
	if err != nil {
		t.Fatalf("LoadAgentsManifest() error = %v", err)
	}
	if manifest.Source != path {
		t.Errorf("Source = %q, want %q", manifest.Source, path)
	}
	if len(manifest.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(manifest.Agents))
	}
}

func TestLoadAgentsManifest_MissingFile(t *testing.T) {
	if _, err := LoadAgentsManifest("/nonexistent/AGENTS.md"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseTriggers(t *testing.T) {
	triggers := parseTriggers("keyword:help pattern:.*error.*")
	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}
	if triggers[0].Type != TriggerKeyword || triggers[0].Value != "help" {
		t.Errorf("triggers[0] = %+v", triggers[0])
	}
	if triggers[1].Type != TriggerPattern || triggers[1].Value != ".*error.*" {
		t.Errorf("triggers[1] = %+v", triggers[1])
	}
}

func TestParseTriggers_BareKeyword(t *testing.T) {
	triggers := parseTriggers("urgent")
	if len(triggers) != 1 || triggers[0].Type != TriggerKeyword || triggers[0].Value != "urgent" {
		t.Errorf("unexpected triggers: %+v", triggers)
	}
}

func TestAgentDefinition_HasTool(t *testing.T) {
	agent := AgentDefinition{Tools: []string{"exec", "read"}}
	if !agent.HasTool("exec") {
		t.Error("expected HasTool(exec) to be true")
	}
	if agent.HasTool("write") {
		t.Error("expected HasTool(write) to be false")
	}
}

func TestAgentDefinition_GetHandoffTarget(t *testing.T) {
	agent := AgentDefinition{
		HandoffRules: []HandoffRule{
			{TargetAgentID: "code-expert", Triggers: []RoutingTrigger{{Type: TriggerKeyword, Value: "code"}}},
		},
	}
	rule := agent.GetHandoffTarget(TriggerKeyword, "code")
	if rule == nil || rule.TargetAgentID != "code-expert" {
		t.Errorf("GetHandoffTarget() = %+v", rule)
	}
	if agent.GetHandoffTarget(TriggerKeyword, "research") != nil {
		t.Error("expected no match for unrelated value")
	}
}
