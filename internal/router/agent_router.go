package router

import (
	"path"
	"regexp"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Rule is one entry in the ordered routing table. Exactly one of Glob or
// Regex should be set; if both are empty the rule matches everything.
type Rule struct {
	Glob         string
	Regex        string
	AgentName    string
	SystemPrompt string
	Model        string
	ToolExclude  []string

	compiled *regexp.Regexp
}

// AgentRouter matches an inbound message's channel id against an ordered
// list of rules, first match wins. An undefined agent name is a silent
// skip, not an error — the caller drops the message.
type AgentRouter struct {
	rules []Rule
}

// NewAgentRouter compiles rules in the order given. Rules earlier in the
// slice take precedence.
func NewAgentRouter(rules []Rule) (*AgentRouter, error) {
	compiled := make([]Rule, len(rules))
	for i, r := range rules {
		if r.Regex != "" {
			re, err := regexp.Compile(r.Regex)
			if err != nil {
				return nil, err
			}
			r.compiled = re
		}
		compiled[i] = r
	}
	return &AgentRouter{rules: compiled}, nil
}

// Route matches an inbound message's channel id against the rule table and
// returns the resulting routing decision. definedAgents is the set of agent
// names the caller has actually configured; a match against an agent not in
// that set is treated as unmatched (silent skip).
func (a *AgentRouter) Route(msg models.InboundMessage, definedAgents map[string]bool) models.RoutingDecision {
	for i, r := range a.rules {
		if !r.matches(msg.ChannelID) {
			continue
		}
		if !definedAgents[r.AgentName] {
			continue
		}
		return models.RoutingDecision{
			AgentName:    r.AgentName,
			SystemPrompt: r.SystemPrompt,
			Model:        r.Model,
			ToolExclude:  append([]string{}, r.ToolExclude...),
			Matched:      true,
			RuleIndex:    i,
		}
	}
	return models.RoutingDecision{Matched: false}
}

func (r Rule) matches(channelID string) bool {
	if r.Glob == "" && r.Regex == "" {
		return true
	}
	if r.Glob != "" {
		ok, err := path.Match(r.Glob, channelID)
		if err == nil && ok {
			return true
		}
	}
	if r.compiled != nil {
		return r.compiled.MatchString(channelID)
	}
	return false
}
