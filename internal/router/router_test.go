package router

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestRouteKeyThread(t *testing.T) {
	msg := models.InboundMessage{ChannelID: "discord", From: models.From{GroupID: "g1", ThreadID: "t1", UserID: "u1"}}
	got := RouteKey(msg)
	want := "discord:group:g1:thread:t1"
	if got != want {
		t.Fatalf("RouteKey() = %q, want %q", got, want)
	}
}

func TestRouteKeyGroupNoThread(t *testing.T) {
	msg := models.InboundMessage{ChannelID: "discord", From: models.From{GroupID: "g1", UserID: "u1"}}
	got := RouteKey(msg)
	want := "discord:group:g1:user:u1"
	if got != want {
		t.Fatalf("RouteKey() = %q, want %q", got, want)
	}
}

func TestRouteKeyDirectAnonymous(t *testing.T) {
	msg := models.InboundMessage{ChannelID: "webhook"}
	got := RouteKey(msg)
	want := "webhook:anonymous"
	if got != want {
		t.Fatalf("RouteKey() = %q, want %q", got, want)
	}
}

func TestAgentRouterFirstMatchWins(t *testing.T) {
	router, err := NewAgentRouter([]Rule{
		{Glob: "support-*", AgentName: "support"},
		{AgentName: "default"},
	})
	if err != nil {
		t.Fatalf("NewAgentRouter() error = %v", err)
	}
	defined := map[string]bool{"support": true, "default": true}

	decision := router.Route(models.InboundMessage{ChannelID: "support-42"}, defined)
	if !decision.Matched || decision.AgentName != "support" || decision.RuleIndex != 0 {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	decision = router.Route(models.InboundMessage{ChannelID: "general"}, defined)
	if !decision.Matched || decision.AgentName != "default" {
		t.Fatalf("unexpected fallback decision: %+v", decision)
	}
}

func TestAgentRouterSilentSkipUndefinedAgent(t *testing.T) {
	router, err := NewAgentRouter([]Rule{
		{Glob: "*", AgentName: "ghost"},
	})
	if err != nil {
		t.Fatalf("NewAgentRouter() error = %v", err)
	}

	decision := router.Route(models.InboundMessage{ChannelID: "anything"}, map[string]bool{})
	if decision.Matched {
		t.Fatalf("expected no match for undefined agent, got %+v", decision)
	}
}

func TestAgentRouterRegex(t *testing.T) {
	router, err := NewAgentRouter([]Rule{
		{Regex: `^cron:.*`, AgentName: "scheduler"},
	})
	if err != nil {
		t.Fatalf("NewAgentRouter() error = %v", err)
	}
	defined := map[string]bool{"scheduler": true}

	decision := router.Route(models.InboundMessage{ChannelID: "cron:daily-report"}, defined)
	if !decision.Matched || decision.AgentName != "scheduler" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}
