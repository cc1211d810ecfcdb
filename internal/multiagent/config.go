package multiagent

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// LoadAgentsManifest loads agent definitions from an AGENTS.md file.
//
// Format:
//
//	# Agent: agent-id
//	Name: My Agent
//	Description: What this agent does
//
//	## System Prompt
//	Your system prompt here...
//
//	## Tools
//	- tool1
//	- tool2
//
//	## Handoffs
//	- To: other-agent
//	  Triggers: keyword:help, pattern:.*error.*
func LoadAgentsManifest(path string) (*AgentManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AGENTS.md: %w", err)
	}
	return ParseAgentsMarkdown(string(data), path)
}

// ParseAgentsMarkdown parses agent definitions from markdown content.
func ParseAgentsMarkdown(content string, source string) (*AgentManifest, error) {
	manifest := &AgentManifest{Source: source}

	scanner := bufio.NewScanner(strings.NewReader(content))
	var currentAgent *AgentDefinition
	var currentSection string
	var sectionContent strings.Builder

	agentHeaderRe := regexp.MustCompile(`^#\s+Agent:\s*(.+)$`)
	sectionHeaderRe := regexp.MustCompile(`^##\s+(.+)$`)
	propertyRe := regexp.MustCompile(`^([A-Za-z_]+):\s*(.*)$`)
	listItemRe := regexp.MustCompile(`^[-*]\s+(.+)$`)

	flushSection := func() {
		if currentAgent == nil || currentSection == "" {
			return
		}
		text := strings.TrimSpace(sectionContent.String())
		switch strings.ToLower(currentSection) {
		case "system prompt", "systemprompt", "prompt":
			currentAgent.SystemPrompt = text
		case "description":
			if currentAgent.Description == "" {
				currentAgent.Description = text
			}
		}
		sectionContent.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()

		if matches := agentHeaderRe.FindStringSubmatch(line); len(matches) > 1 {
			if currentAgent != nil {
				flushSection()
				manifest.Agents = append(manifest.Agents, *currentAgent)
			}
			agentID := strings.TrimSpace(matches[1])
			currentAgent = &AgentDefinition{ID: agentID, Name: agentID, CanReceiveHandoffs: true}
			currentSection = ""
			continue
		}

		if currentAgent == nil {
			continue
		}

		if matches := sectionHeaderRe.FindStringSubmatch(line); len(matches) > 1 {
			flushSection()
			currentSection = strings.TrimSpace(matches[1])
			continue
		}

		if currentSection == "" {
			if matches := propertyRe.FindStringSubmatch(line); len(matches) > 2 {
				key := strings.ToLower(matches[1])
				value := strings.TrimSpace(matches[2])
				switch key {
				case "name":
					currentAgent.Name = value
				case "description":
					currentAgent.Description = value
				case "model":
					currentAgent.Model = value
				case "provider":
					currentAgent.Provider = value
				case "can_receive_handoffs", "canreceivehandoffs":
					currentAgent.CanReceiveHandoffs = strings.EqualFold(value, "true") || value == "yes"
				case "max_iterations", "maxiterations":
					if parsed, err := strconv.Atoi(value); err == nil {
						currentAgent.MaxIterations = parsed
					}
				}
				continue
			}
		}

		switch strings.ToLower(currentSection) {
		case "tools":
			if matches := listItemRe.FindStringSubmatch(line); len(matches) > 1 {
				currentAgent.Tools = append(currentAgent.Tools, strings.TrimSpace(matches[1]))
			}
		case "handoffs", "handoff rules":
			if rule := parseHandoffLine(line, listItemRe); rule != nil {
				currentAgent.HandoffRules = append(currentAgent.HandoffRules, *rule)
			}
		case "system prompt", "systemprompt", "prompt", "description":
			sectionContent.WriteString(line)
			sectionContent.WriteString("\n")
		}
	}

	if currentAgent != nil {
		flushSection()
		manifest.Agents = append(manifest.Agents, *currentAgent)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading markdown: %w", err)
	}
	return manifest, nil
}

// parseHandoffLine parses a handoff rule from a markdown list item, e.g.
// "- To: code-expert, Triggers: keyword:code, Context: summary".
func parseHandoffLine(line string, listItemRe *regexp.Regexp) *HandoffRule {
	matches := listItemRe.FindStringSubmatch(line)
	if len(matches) <= 1 {
		return nil
	}
	rule := &HandoffRule{}
	for _, part := range strings.Split(matches[1], ",") {
		part = strings.TrimSpace(part)
		idx := strings.Index(part, ":")
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:idx]))
		value := strings.TrimSpace(part[idx+1:])
		switch key {
		case "to", "target":
			rule.TargetAgentID = value
		case "trigger", "triggers":
			rule.Triggers = parseTriggers(value)
		case "context":
			rule.ContextMode = ContextSharingMode(value)
		case "priority":
			if parsed, err := strconv.Atoi(value); err == nil {
				rule.Priority = parsed
			}
		case "return":
			rule.ReturnToSender = strings.EqualFold(value, "true") || value == "yes"
		case "message":
			rule.Message = value
		}
	}
	if rule.TargetAgentID == "" {
		return nil
	}
	return rule
}

// parseTriggers parses trigger specifications like "keyword:help pattern:.*err.*".
func parseTriggers(spec string) []RoutingTrigger {
	var triggers []RoutingTrigger
	for _, part := range regexp.MustCompile(`[\s,]+`).Split(spec, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		trigger := RoutingTrigger{}
		idx := strings.Index(part, ":")
		if idx <= 0 {
			trigger.Type = TriggerKeyword
			trigger.Value = part
			triggers = append(triggers, trigger)
			continue
		}
		triggerType, value := strings.ToLower(part[:idx]), part[idx+1:]
		switch triggerType {
		case "keyword", "kw":
			trigger.Type, trigger.Value = TriggerKeyword, value
		case "pattern", "regex":
			trigger.Type, trigger.Value = TriggerPattern, value
		case "intent":
			trigger.Type, trigger.Value = TriggerIntent, value
		case "tool":
			trigger.Type, trigger.Value = TriggerToolUse, value
		case "explicit":
			trigger.Type, trigger.Value = TriggerExplicit, value
		case "fallback":
			trigger.Type = TriggerFallback
		case "always":
			trigger.Type = TriggerAlways
		case "complete", "task_complete":
			trigger.Type = TriggerTaskComplete
		case "error":
			trigger.Type = TriggerError
		default:
			trigger.Type, trigger.Value = TriggerKeyword, part
		}
		triggers = append(triggers, trigger)
	}
	return triggers
}
