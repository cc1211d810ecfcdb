package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/backoff"
	"github.com/haasonsaas/nexus/internal/compaction"
	"github.com/haasonsaas/nexus/internal/jobs"
	"github.com/haasonsaas/nexus/internal/policy"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/verification"
	"github.com/haasonsaas/nexus/pkg/models"
)

// LoopConfig configures a Runtime's agentic loop behavior on top of its
// RuntimeOptions.
type LoopConfig struct {
	RuntimeOptions

	// MaxWallTime bounds the total duration of a single Run call.
	MaxWallTime time.Duration

	// StreamToolResults controls whether ResponseChunk.ToolResult is emitted
	// for each completed tool call, in addition to the ToolEvent stream.
	StreamToolResults bool

	// ProviderRetries is the number of attempts made to acquire a streaming
	// completion from the provider before the iteration fails. Retries only
	// cover the initial call; an in-flight stream is never replayed.
	ProviderRetries int

	// Backoff configures the delay between provider acquisition retries.
	Backoff backoff.BackoffPolicy

	// DefaultModel is used when a request does not specify one.
	DefaultModel string

	// DefaultSystem is prefixed before a session's own system prompt.
	DefaultSystem string
}

// DefaultLoopConfig returns baseline loop configuration layered on top of
// DefaultRuntimeOptions.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		RuntimeOptions:    DefaultRuntimeOptions(),
		MaxWallTime:       5 * time.Minute,
		StreamToolResults: true,
		ProviderRetries:   1,
		Backoff:           backoff.DefaultPolicy(),
	}
}

// Runtime drives one agent's turn-by-turn conversation with an LLM
// provider: it streams model output, executes requested tools under the
// session's autonomy policy, feeds results back, and repeats until the
// model produces a final answer, the iteration budget is exhausted, or the
// context is cancelled.
type Runtime struct {
	provider LLMProvider
	tools    *ToolRegistry
	executor *ToolExecutor
	sessions *sessions.Manager

	opts RuntimeOptions

	maxWallTime       time.Duration
	streamToolResults bool
	providerRetries   int
	backoffPolicy     backoff.BackoffPolicy
	defaultModel      string
	defaultSystem     string

	sink EventSink

	verifier *verification.Verifier

	sessionLocksMu sync.Mutex
	sessionLocks   map[string]*sessionLock

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// NewRuntime builds a Runtime around a provider and session manager. Tools
// must be registered on the returned Runtime's Tools() registry before the
// first Run call.
func NewRuntime(provider LLMProvider, sessionMgr *sessions.Manager, config LoopConfig) *Runtime {
	opts := mergeRuntimeOptions(DefaultRuntimeOptions(), config.RuntimeOptions)

	maxWall := config.MaxWallTime
	if maxWall <= 0 {
		maxWall = 5 * time.Minute
	}
	providerRetries := config.ProviderRetries
	if providerRetries <= 0 {
		providerRetries = 1
	}
	bp := config.Backoff
	if (bp == backoff.BackoffPolicy{}) {
		bp = backoff.DefaultPolicy()
	}

	tools := NewToolRegistry()
	r := &Runtime{
		provider:          provider,
		tools:             tools,
		sessions:          sessionMgr,
		opts:              opts,
		maxWallTime:       maxWall,
		streamToolResults: config.StreamToolResults,
		providerRetries:   providerRetries,
		backoffPolicy:     bp,
		defaultModel:      config.DefaultModel,
		defaultSystem:     config.DefaultSystem,
		sink:              NopSink{},
		sessionLocks:      make(map[string]*sessionLock),
		inFlight:          make(map[string]struct{}),
	}
	r.executor = NewToolExecutor(tools, ToolExecConfig{
		Concurrency:    opts.ToolParallelism,
		PerToolTimeout: opts.ToolTimeout,
		MaxAttempts:    opts.ToolMaxAttempts,
		RetryBackoff:   opts.ToolRetryBackoff,
	})
	return r
}

// Tools returns the runtime's tool registry for registration.
func (r *Runtime) Tools() *ToolRegistry {
	return r.tools
}

// SetSink replaces the event sink used for AgentEvent dispatch.
// SetVerifier installs a post-completion verifier. When set, every run
// that terminates normally (no pending tool calls) is checked and the
// result is emitted as a run.verified event; nil disables verification.
func (r *Runtime) SetVerifier(v *verification.Verifier) {
	r.verifier = v
}

func (r *Runtime) SetSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	r.sink = sink
}

// toolExecOverrides builds a per-tool ToolExecConfig override, used for
// async job execution where a tool may warrant a longer timeout than the
// runtime default.
func (r *Runtime) toolExecOverrides(name string) ToolExecConfig {
	cfg := ToolExecConfig{
		Concurrency:    r.opts.ToolParallelism,
		PerToolTimeout: r.opts.ToolTimeout,
		MaxAttempts:    r.opts.ToolMaxAttempts,
		RetryBackoff:   r.opts.ToolRetryBackoff,
	}
	if cfg.PerToolTimeout > 0 && matchesToolPatterns(r.opts.AsyncTools, name, nil) {
		cfg.PerToolTimeout = r.opts.ToolTimeout * 4
	}
	return cfg
}

// acquireRoute refuses a concurrent new top-level turn on the same route
// key rather than queuing it: routeKey identifies the channel+user
// conversation slot, and only one turn may be in flight on it at a time.
func (r *Runtime) acquireRoute(routeKey string) bool {
	if routeKey == "" {
		return true
	}
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	if _, busy := r.inFlight[routeKey]; busy {
		return false
	}
	r.inFlight[routeKey] = struct{}{}
	return true
}

func (r *Runtime) releaseRoute(routeKey string) {
	if routeKey == "" {
		return
	}
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	delete(r.inFlight, routeKey)
}

// Run starts an agent turn for sessionID, streaming text, tool, and
// lifecycle events over the returned channel until the model settles on a
// final answer or the run is aborted. The channel is closed when the run
// ends; callers must drain it. A second call for the same session's route
// key while one is already running is refused with ErrBackpressure.
func (r *Runtime) Run(ctx context.Context, sessionID string, cm *compaction.ContextManager, userMsg *models.Message, toolPolicy *policy.Policy) (<-chan *ResponseChunk, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	session, err := r.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !r.acquireRoute(session.RouteKey) {
		return nil, ErrBackpressure
	}

	out := make(chan *ResponseChunk, 16)
	go r.run(ctx, session, cm, userMsg, toolPolicy, out)
	return out, nil
}

func (r *Runtime) run(ctx context.Context, session *models.Session, cm *compaction.ContextManager, userMsg *models.Message, toolPolicy *policy.Policy, out chan<- *ResponseChunk) {
	defer close(out)
	defer r.releaseRoute(session.RouteKey)

	if r.maxWallTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.maxWallTime)
		defer cancel()
	}

	runID := uuid.NewString()
	stats := NewStatsCollector(runID)
	emitter := NewEventEmitter(runID, &statsEventSink{stats: stats, next: r.sink})
	resolver := policy.NewResolver()

	delta := models.SessionMetadata{}
	defer func() {
		if r.sessions != nil {
			_ = r.sessions.TouchSession(session.ID, delta)
		}
	}()

	emitter.RunStarted(ctx)
	defer func() { emitter.RunFinished(ctx, stats.Stats()) }()

	if userMsg != nil {
		cm.AddMessage(userMsg)
	}

	maxIter := r.opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 1
	}

	for iter := 0; iter < maxIter; iter++ {
		select {
		case <-ctx.Done():
			r.emitDone(ctx, emitter, out)
			return
		default:
		}

		emitter.SetIter(iter)
		emitter.IterStarted(ctx)
		delta.LoopIterations++

		if cm.NeedsCompaction() {
			before := cm.EstimatedTokens()
			dropped, cErr := cm.Compact(ctx)
			if cErr == nil {
				emitter.ContextPacked(ctx, &models.ContextEventPayload{
					Strategy:      "auto",
					TokensBefore:  before,
					TokensAfter:   cm.EstimatedTokens(),
					Dropped:       dropped,
					MessagesAfter: len(cm.GetMessages()),
				})
			}
		}

		assistantMsg, toolCalls, err := r.streamCompletion(ctx, emitter, cm, session, toolPolicy, resolver, out)
		delta.LLMCalls++
		if err != nil {
			if ctx.Err() != nil {
				r.emitDone(ctx, emitter, out)
				return
			}
			emitter.RunError(ctx, err, false)
			delta.Errors++
			out <- &ResponseChunk{Error: err}
			return
		}

		cm.AddMessage(assistantMsg)
		emitter.IterFinished(ctx)

		if len(toolCalls) == 0 {
			r.verifyCompletion(ctx, emitter, userMsg, assistantMsg, &delta)
			return
		}

		results := r.executeToolsPhase(ctx, emitter, &delta, session, toolPolicy, resolver, toolCalls, out)
		for _, res := range results {
			cm.AddMessage(&models.Message{
				Role:       models.RoleTool,
				Content:    res.Content,
				ToolCallID: res.ToolCallID,
				IsError:    res.IsError,
				CreatedAt:  time.Now(),
			})
		}

		if queue := SteeringQueueFromContext(ctx); queue != nil {
			if msgs := queue.GetSteeringMessages(); len(msgs) > 0 {
				for _, sm := range msgs {
					cm.AddMessage(&models.Message{
						Role:      models.Role(firstNonEmpty(sm.Role, string(models.RoleUser))),
						Content:   sm.Content,
						CreatedAt: time.Now(),
					})
				}
			}
		}
	}

	emitter.RunError(ctx, ErrMaxIterations, false)
	delta.Errors++
	out <- &ResponseChunk{Error: ErrMaxIterations}
}

// verifyCompletion runs the configured verifier, if any, against the
// just-finished answer and emits the result. Purely observational: it
// never alters control flow, since the loop is already returning.
func (r *Runtime) verifyCompletion(ctx context.Context, emitter *EventEmitter, userMsg, assistantMsg *models.Message, delta *models.SessionMetadata) {
	if r.verifier == nil || assistantMsg == nil {
		return
	}
	description := ""
	if userMsg != nil {
		description = userMsg.Content
	}
	result := r.verifier.Verify(ctx, verification.Task{
		Description: description,
		Answer:      assistantMsg.Content,
		ToolCalls:   delta.ToolCalls,
		ToolErrors:  delta.Errors,
	})
	emitter.Verified(ctx, &models.VerificationEventPayload{
		Outcome:     string(result.Outcome),
		Confidence:  result.Confidence,
		Reasoning:   result.Reasoning,
		Issues:      result.Issues,
		Suggestions: result.Suggestions,
	})
}

func (r *Runtime) emitDone(ctx context.Context, emitter *EventEmitter, out chan<- *ResponseChunk) {
	if ctx.Err() == context.DeadlineExceeded {
		emitter.RunTimedOut(ctx, r.maxWallTime)
		out <- &ResponseChunk{Error: fmt.Errorf("run timed out after %v", r.maxWallTime)}
		return
	}
	emitter.RunCancelled(ctx)
	out <- &ResponseChunk{Error: ErrContextCancelled}
}

// streamCompletion acquires a completion stream from the provider (retried
// with backoff on acquisition failure only, never mid-stream) and forwards
// text/thinking chunks to out, accumulating the assistant's full message
// and any requested tool calls.
func (r *Runtime) streamCompletion(ctx context.Context, emitter *EventEmitter, cm *compaction.ContextManager, session *models.Session, toolPolicy *policy.Policy, resolver *policy.Resolver, out chan<- *ResponseChunk) (*models.Message, []models.ToolCall, error) {
	system := strings.TrimSpace(r.defaultSystem + "\n" + cm.SystemPrompt())
	req := &CompletionRequest{
		Model:    firstNonEmpty(session.Config.Model, r.defaultModel),
		System:   system,
		Messages: buildCompletionMessages(cm.GetMessages()),
		Tools:    filterToolsByPolicy(resolver, toolPolicy, r.tools.AsLLMTools()),
	}

	stream, err := backoff.RetryWithBackoff(ctx, r.backoffPolicy, r.providerRetries, func(int) (<-chan *CompletionChunk, error) {
		return r.provider.Complete(ctx, req)
	})
	if err != nil {
		return nil, nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall
	var inputTokens, outputTokens int

	for chunk := range stream.Value {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return nil, nil, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emitter.ModelDelta(ctx, chunk.Text)
			out <- &ResponseChunk{Text: chunk.Text}
		}
		if chunk.Thinking != "" || chunk.ThinkingStart || chunk.ThinkingEnd {
			out <- &ResponseChunk{
				Thinking:      chunk.Thinking,
				ThinkingStart: chunk.ThinkingStart,
				ThinkingEnd:   chunk.ThinkingEnd,
			}
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}

	emitter.ModelCompleted(ctx, r.provider.Name(), req.Model, inputTokens, outputTokens)

	return &models.Message{
		Role:      models.RoleAssistant,
		Content:   text.String(),
		ToolCalls: toolCalls,
		CreatedAt: time.Now(),
	}, toolCalls, nil
}

// executeToolsPhase validates, approves, and runs a batch of tool calls
// requested by the model, honoring the session's autonomy policy, async
// tool routing, and any mid-batch steering interruption.
func (r *Runtime) executeToolsPhase(ctx context.Context, emitter *EventEmitter, delta *models.SessionMetadata, session *models.Session, toolPolicy *policy.Policy, resolver *policy.Resolver, toolCalls []models.ToolCall, out chan<- *ResponseChunk) []models.ToolResult {
	unlock := r.lockSession(session.ID)
	defer unlock()

	results := make([]models.ToolResult, 0, len(toolCalls))
	var toExecute []models.ToolCall
	skipRemaining := false

	for _, tc := range toolCalls {
		if skipRemaining {
			results = append(results, *SkippedToolResult(tc.ID, "skipped: steering interrupted the tool batch"))
			continue
		}

		if !resolver.IsAllowed(toolPolicy, tc.Name) {
			reason := "tool excluded by session policy"
			emitter.ToolValidationError(ctx, tc.ID, tc.Name, reason)
			delta.Errors++
			r.emitToolEvent(out, &models.ToolEvent{
				ToolCallID:   tc.ID,
				ToolName:     tc.Name,
				Stage:        models.ToolEventDenied,
				PolicyReason: reason,
			}, r.opts.DisableToolEvents)
			results = append(results, models.ToolResult{ToolCallID: tc.ID, Content: reason, IsError: true})
			continue
		}

		if r.requiresApproval(r.opts, tc.Name, resolver) && r.opts.ApprovalChecker != nil {
			decision, reason := r.opts.ApprovalChecker.Check(ctx, session.Config.AgentName, tc)
			switch decision {
			case ApprovalDenied:
				emitter.ToolValidationError(ctx, tc.ID, tc.Name, reason)
				delta.Errors++
				results = append(results, models.ToolResult{ToolCallID: tc.ID, Content: reason, IsError: true})
				continue
			case ApprovalPending:
				r.emitToolEvent(out, &models.ToolEvent{
					ToolCallID:   tc.ID,
					ToolName:     tc.Name,
					Stage:        models.ToolEventApprovalRequired,
					PolicyReason: reason,
				}, r.opts.DisableToolEvents)
				results = append(results, models.ToolResult{ToolCallID: tc.ID, Content: "awaiting approval: " + reason, IsError: true})
				continue
			}
		}

		if r.isAsyncTool(r.opts, tc.Name, resolver) && r.opts.JobStore != nil {
			job := &jobs.Job{
				ID:         tc.ID + "-job",
				ToolName:   tc.Name,
				ToolCallID: tc.ID,
				Status:     jobs.StatusQueued,
				CreatedAt:  time.Now(),
			}
			_ = r.opts.JobStore.Create(ctx, job)
			go r.runToolJob(tc, job, r.executor, r.opts.JobStore)
			results = append(results, models.ToolResult{
				ToolCallID: tc.ID,
				Content:    fmt.Sprintf("queued as async job %s", job.ID),
			})
			continue
		}

		toExecute = append(toExecute, tc)

		if queue := SteeringQueueFromContext(ctx); queue != nil && queue.HasSteering() {
			skipRemaining = true
		}
	}

	if len(toExecute) > 0 {
		emit := func(ev *models.RuntimeEvent) {
			if ev == nil {
				return
			}
			r.emitToolEvent(out, &models.ToolEvent{
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
				Stage:      runtimeEventStage(ev.Type),
			}, r.opts.DisableToolEvents)
		}
		execResults := r.executor.ExecuteConcurrently(ctx, toExecute, emit)
		for i, res := range execResults {
			delta.ToolCalls++
			if res.Result.IsError {
				delta.Errors++
			}
			toolName := ""
			if i < len(toExecute) {
				toolName = toExecute[i].Name
			}
			guarded := guardToolResult(r.opts.ToolResultGuard, toolName, res.Result, resolver)
			results = append(results, guarded)
			if r.streamToolResults {
				out <- &ResponseChunk{ToolResult: &guarded}
			}
		}
	}

	return results
}

func runtimeEventStage(t models.RuntimeEventType) models.ToolEventStage {
	switch t {
	case models.EventToolStarted:
		return models.ToolEventStarted
	case models.EventToolCompleted:
		return models.ToolEventSucceeded
	case models.EventToolFailed, models.EventToolTimeout:
		return models.ToolEventFailed
	default:
		return models.ToolEventStarted
	}
}

func buildCompletionMessages(messages []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		cmsg := CompletionMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			ToolCalls: m.ToolCalls,
		}
		if m.Role == models.RoleTool {
			cmsg.ToolResults = []models.ToolResult{{
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
				IsError:    m.IsError,
			}}
		}
		out = append(out, cmsg)
	}
	return out
}

// statsEventSink feeds every emitted event into a StatsCollector before
// forwarding it to the runtime's real sink (a plugin registry, typically).
type statsEventSink struct {
	stats *StatsCollector
	next  EventSink
}

func (s *statsEventSink) Emit(ctx context.Context, event models.AgentEvent) {
	s.stats.OnEvent(ctx, event)
	if s.next != nil {
		s.next.Emit(ctx, event)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
