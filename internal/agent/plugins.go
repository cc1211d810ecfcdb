package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// EventSink receives agent events as they are emitted. Implementations must
// not block the emitting goroutine for long.
type EventSink interface {
	Emit(ctx context.Context, event models.AgentEvent)
}

// NopSink discards every event. It is the default sink when none is given.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(ctx context.Context, event models.AgentEvent) {}

// PluginHook observes agent events, e.g. to forward them to an external
// subscriber or to update an in-process dashboard.
type PluginHook func(ctx context.Context, event models.AgentEvent)

// PluginRegistry fans out agent events to registered hooks.
type PluginRegistry struct {
	mu    sync.RWMutex
	hooks []PluginHook
}

// NewPluginRegistry creates an empty plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// Register adds a hook that is invoked for every dispatched event.
func (r *PluginRegistry) Register(hook PluginHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Dispatch invokes every registered hook with the event.
func (r *PluginRegistry) Dispatch(ctx context.Context, event models.AgentEvent) {
	r.mu.RLock()
	hooks := make([]PluginHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, event)
	}
}

// PluginSink adapts a PluginRegistry to the EventSink interface.
type PluginSink struct {
	registry *PluginRegistry
}

// NewPluginSink wraps a registry as an EventSink.
func NewPluginSink(registry *PluginRegistry) *PluginSink {
	return &PluginSink{registry: registry}
}

// Emit dispatches the event to the wrapped registry.
func (s *PluginSink) Emit(ctx context.Context, event models.AgentEvent) {
	if s.registry == nil {
		return
	}
	s.registry.Dispatch(ctx, event)
}

// CallbackSink adapts a plain func to the EventSink interface, for callers
// that want to observe a trace replay without standing up a registry.
type CallbackSink struct {
	fn func(ctx context.Context, event models.AgentEvent)
}

// NewCallbackSink wraps fn as an EventSink.
func NewCallbackSink(fn func(ctx context.Context, event models.AgentEvent)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit invokes the wrapped callback.
func (s *CallbackSink) Emit(ctx context.Context, event models.AgentEvent) {
	if s.fn == nil {
		return
	}
	s.fn(ctx, event)
}
