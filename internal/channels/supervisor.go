package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChildDescriptor is a supervised unit: a channel adapter (or any other
// long-lived task) the supervisor starts, restarts on crash, and shuts
// down in reverse registration order.
type ChildDescriptor struct {
	ID       string
	Start    func(ctx context.Context) error
	Shutdown func(ctx context.Context) error
}

// SupervisorConfig controls restart behavior.
type SupervisorConfig struct {
	// MaxRestarts is the number of restarts tolerated within WindowMs
	// before the supervisor gives up on a child. Default 5.
	MaxRestarts int
	// WindowMs is the sliding window, in milliseconds, over which
	// restarts are counted. Default 60000 (60s).
	WindowMs int64
}

// DefaultSupervisorConfig returns the spec's one-for-one defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{MaxRestarts: 5, WindowMs: 60_000}
}

type restartHistory struct {
	attempts []time.Time
}

// ChannelSupervisor restarts crashed children one-for-one, up to
// MaxRestarts within WindowMs, then gives up on that child permanently.
type ChannelSupervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger

	mu       sync.Mutex
	children []*ChildDescriptor
	running  bool
	history  map[string]*restartHistory
	cancel   map[string]context.CancelFunc
	events   func(event string, childID string, attempt int)
}

// NewChannelSupervisor creates a supervisor. cfg's zero value resolves to
// DefaultSupervisorConfig.
func NewChannelSupervisor(cfg SupervisorConfig, logger *slog.Logger) *ChannelSupervisor {
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultSupervisorConfig().MaxRestarts
	}
	if cfg.WindowMs <= 0 {
		cfg.WindowMs = DefaultSupervisorConfig().WindowMs
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSupervisor{
		cfg:     cfg,
		logger:  logger.With("component", "channel_supervisor"),
		history: make(map[string]*restartHistory),
		cancel:  make(map[string]context.CancelFunc),
	}
}

// OnEvent registers a callback for supervisor lifecycle events:
// "child:crashed", "child:restarted", "supervisor:max_restarts_exceeded".
func (s *ChannelSupervisor) OnEvent(fn func(event string, childID string, attempt int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = fn
}

func (s *ChannelSupervisor) emit(event, childID string, attempt int) {
	if s.events != nil {
		s.events(event, childID, attempt)
	}
}

// AddChild registers a descriptor. If the supervisor is already running,
// the child is spawned immediately.
func (s *ChannelSupervisor) AddChild(desc ChildDescriptor) {
	s.mu.Lock()
	s.children = append(s.children, &desc)
	running := s.running
	s.mu.Unlock()

	if running {
		s.spawn(&desc)
	}
}

// Start boots every registered descriptor.
func (s *ChannelSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	children := append([]*ChildDescriptor(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		s.spawn(c)
	}
	return nil
}

// Stop shuts down every child in reverse registration order.
func (s *ChannelSupervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	children := append([]*ChildDescriptor(nil), s.children...)
	s.mu.Unlock()

	var lastErr error
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		s.mu.Lock()
		if cancel, ok := s.cancel[c.ID]; ok {
			cancel()
			delete(s.cancel, c.ID)
		}
		s.mu.Unlock()
		if c.Shutdown != nil {
			if err := c.Shutdown(ctx); err != nil {
				lastErr = err
				s.logger.Error("child shutdown failed", "child", c.ID, "error", err)
			}
		}
	}
	return lastErr
}

func (s *ChannelSupervisor) spawn(desc *ChildDescriptor) {
	childCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel[desc.ID] = cancel
	s.mu.Unlock()

	go func() {
		if desc.Start == nil {
			return
		}
		err := desc.Start(childCtx)
		if err == nil || childCtx.Err() != nil {
			return
		}
		s.handleCrash(desc, err)
	}()
}

func (s *ChannelSupervisor) handleCrash(desc *ChildDescriptor, err error) {
	s.logger.Error("child crashed", "child", desc.ID, "error", err)
	s.emit("child:crashed", desc.ID, 0)

	now := time.Now()
	window := time.Duration(s.cfg.WindowMs) * time.Millisecond

	s.mu.Lock()
	h, ok := s.history[desc.ID]
	if !ok {
		h = &restartHistory{}
		s.history[desc.ID] = h
	}
	cutoff := now.Add(-window)
	kept := h.attempts[:0]
	for _, t := range h.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.attempts = append(kept, now)
	count := len(h.attempts)
	running := s.running
	s.mu.Unlock()

	if count > s.cfg.MaxRestarts {
		s.logger.Error("max restarts exceeded, giving up", "child", desc.ID, "restarts", count)
		s.emit("supervisor:max_restarts_exceeded", desc.ID, count)
		return
	}

	if !running {
		return
	}
	s.emit("child:restarted", desc.ID, count)
	s.spawn(desc)
}
