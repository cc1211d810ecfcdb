package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/compaction"
	"github.com/haasonsaas/nexus/internal/policy"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// loopTestProvider allows a test to script the chunk sequence returned by
// successive Complete calls, one slice of chunks per call.
type loopTestProvider struct {
	responses   [][]CompletionChunk
	currentCall int32
}

func (p *loopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	call := int(atomic.AddInt32(&p.currentCall, 1)) - 1
	ch := make(chan *CompletionChunk, 10)

	go func() {
		defer close(ch)
		if call >= len(p.responses) {
			return
		}
		for _, chunk := range p.responses[call] {
			c := chunk
			select {
			case ch <- &c:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (p *loopTestProvider) Name() string        { return "loop-test" }
func (p *loopTestProvider) Models() []Model     { return nil }
func (p *loopTestProvider) SupportsTools() bool { return true }

// echoTool returns its input's "value" field as output, and records calls.
type echoTool struct {
	calls int32
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echoes its input" }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"value":{"type":"string"}}}`)
}
func (t *echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	atomic.AddInt32(&t.calls, 1)
	var input struct {
		Value string `json:"value"`
	}
	_ = json.Unmarshal(params, &input)
	return &ToolResult{Content: "echo: " + input.Value}, nil
}

func newTestRuntime(t *testing.T, provider LLMProvider) (*Runtime, *sessions.Manager) {
	t.Helper()
	mgr := sessions.NewManager()
	cfg := DefaultLoopConfig()
	cfg.MaxIterations = 3
	cfg.MaxWallTime = 5 * time.Second
	rt := NewRuntime(provider, mgr, cfg)
	return rt, mgr
}

func drain(t *testing.T, ch <-chan *ResponseChunk) []*ResponseChunk {
	t.Helper()
	var out []*ResponseChunk
	timeout := time.After(3 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out draining response channel")
		}
	}
}

func TestRuntimeRun_TextOnlyCompletion(t *testing.T) {
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "hello "}, {Text: "world"}, {Done: true, InputTokens: 10, OutputTokens: 2}},
		},
	}
	rt, mgr := newTestRuntime(t, provider)

	session := mgr.CreateSession("cli", "route-1", models.SessionConfig{AgentName: "default"})
	cm := compaction.NewContextManager(compaction.ManagerConfig{})

	ch, err := rt.Run(context.Background(), session.ID, cm, &models.Message{Role: models.RoleUser, Content: "hi"}, &policy.Policy{Level: policy.LevelFull})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunks := drain(t, ch)
	var text string
	for _, c := range chunks {
		text += c.Text
	}
	if text != "hello world" {
		t.Fatalf("got text %q", text)
	}

	updated, err := mgr.GetSession(session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if updated.Metadata.LLMCalls != 1 {
		t.Fatalf("expected 1 LLM call, got %d", updated.Metadata.LLMCalls)
	}
}

func TestRuntimeRun_ToolCallThenFinalAnswer(t *testing.T) {
	toolCall := models.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"value":"ping"}`)}
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{ToolCall: &toolCall}, {Done: true}},
			{{Text: "done"}, {Done: true}},
		},
	}
	rt, mgr := newTestRuntime(t, provider)
	tool := &echoTool{}
	rt.Tools().Register(tool)

	session := mgr.CreateSession("cli", "route-2", models.SessionConfig{AgentName: "default"})
	cm := compaction.NewContextManager(compaction.ManagerConfig{})

	ch, err := rt.Run(context.Background(), session.ID, cm, &models.Message{Role: models.RoleUser, Content: "use the tool"}, &policy.Policy{Level: policy.LevelFull})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	chunks := drain(t, ch)

	if atomic.LoadInt32(&tool.calls) != 1 {
		t.Fatalf("expected echo tool to run once, got %d", tool.calls)
	}

	var sawResult bool
	for _, c := range chunks {
		if c.ToolResult != nil && c.ToolResult.Content == "echo: ping" {
			sawResult = true
		}
	}
	if !sawResult {
		t.Fatal("expected a tool result chunk with echoed content")
	}

	messages := cm.GetMessages()
	var sawToolMessage bool
	for _, m := range messages {
		if m.Role == models.RoleTool && m.ToolCallID == "call-1" {
			sawToolMessage = true
		}
	}
	if !sawToolMessage {
		t.Fatal("expected tool result to be recorded in context history")
	}
}

func TestRuntimeRun_PolicyExcludesTool(t *testing.T) {
	toolCall := models.ToolCall{ID: "call-1", Name: "bash", Input: json.RawMessage(`{}`)}
	provider := &loopTestProvider{
		responses: [][]CompletionChunk{
			{{ToolCall: &toolCall}, {Done: true}},
			{{Text: "ok"}, {Done: true}},
		},
	}
	rt, mgr := newTestRuntime(t, provider)

	session := mgr.CreateSession("cli", "route-3", models.SessionConfig{AgentName: "default"})
	cm := compaction.NewContextManager(compaction.ManagerConfig{})

	ch, err := rt.Run(context.Background(), session.ID, cm, &models.Message{Role: models.RoleUser, Content: "run bash"}, &policy.Policy{Level: policy.LevelReadonly})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	drain(t, ch)

	var sawDenied bool
	for _, m := range cm.GetMessages() {
		if m.Role == models.RoleTool && m.ToolCallID == "call-1" && m.IsError {
			sawDenied = true
		}
	}
	if !sawDenied {
		t.Fatal("expected the excluded tool call to produce an error tool result")
	}
}

func TestRuntimeRun_RefusesConcurrentTurnOnSameRoute(t *testing.T) {
	provider := &loopTestProvider{}
	rt, mgr := newTestRuntime(t, provider)
	session := mgr.CreateSession("cli", "route-4", models.SessionConfig{AgentName: "default"})
	cm := compaction.NewContextManager(compaction.ManagerConfig{})

	if !rt.acquireRoute(session.RouteKey) {
		t.Fatal("expected first acquire to succeed")
	}

	_, err := rt.Run(context.Background(), session.ID, cm, &models.Message{Role: models.RoleUser, Content: "hi"}, nil)
	if err != ErrBackpressure {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	rt.releaseRoute(session.RouteKey)
}

func TestRuntimeRun_MaxIterationsExceeded(t *testing.T) {
	toolCall := models.ToolCall{ID: "call-loop", Name: "echo", Input: json.RawMessage(`{"value":"x"}`)}
	responses := make([][]CompletionChunk, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, []CompletionChunk{{ToolCall: &toolCall}, {Done: true}})
	}
	provider := &loopTestProvider{responses: responses}
	rt, mgr := newTestRuntime(t, provider)
	rt.opts.MaxIterations = 2
	rt.Tools().Register(&echoTool{})

	session := mgr.CreateSession("cli", "route-5", models.SessionConfig{AgentName: "default"})
	cm := compaction.NewContextManager(compaction.ManagerConfig{})

	ch, err := rt.Run(context.Background(), session.ID, cm, &models.Message{Role: models.RoleUser, Content: "loop forever"}, &policy.Policy{Level: policy.LevelFull})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	chunks := drain(t, ch)

	var sawMaxIterErr bool
	for _, c := range chunks {
		if c.Error == ErrMaxIterations {
			sawMaxIterErr = true
		}
	}
	if !sawMaxIterErr {
		t.Fatal("expected ErrMaxIterations on the final chunk")
	}
}
