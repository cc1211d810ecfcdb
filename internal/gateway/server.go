// Package gateway is the HTTP control plane: session management, pairing,
// channel fabric lifecycle, the cron scheduler, and the observability
// surface (Prometheus metrics, OpenTelemetry tracing) exposed at a single
// configured address.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/nexus/internal/artifacts"
	"github.com/haasonsaas/nexus/internal/channels"
	"github.com/haasonsaas/nexus/internal/channels/discord"
	"github.com/haasonsaas/nexus/internal/channels/matrix"
	"github.com/haasonsaas/nexus/internal/channels/slack"
	"github.com/haasonsaas/nexus/internal/channels/telegram"
	"github.com/haasonsaas/nexus/internal/channels/whatsapp"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/cron"
	"github.com/haasonsaas/nexus/internal/pairing"
	"github.com/haasonsaas/nexus/internal/router"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/tasks"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Dispatcher feeds an InboundMessage (from a webhook, a cron job, or a
// channel adapter) into whatever answers it; wired by the caller so the
// gateway itself stays free of agent-loop construction concerns.
type Dispatcher func(ctx context.Context, msg *models.InboundMessage) error

// Server owns the HTTP control plane and the components it fronts:
// sessions, pairing, the channel registry, and the task store. It does not
// itself run an AgentLoop; SetDispatcher wires in whatever does.
type Server struct {
	config *config.Config
	logger *slog.Logger
	tracer trace.Tracer

	configPath string
	startTime  time.Time

	sessions  *sessions.Manager
	pairing   *pairing.Manager
	channels  *channels.Registry
	taskStore tasks.Store
	artifacts artifacts.Repository
	agents    *router.AgentRouter

	metrics *serverMetrics

	dispatch Dispatcher

	httpServer   *http.Server
	httpListener net.Listener
	shutdownTracing func(context.Context) error
}

// NewServer wires a Server from cfg: it constructs a channel registry from
// every enabled channel, a pairing manager under the workspace directory,
// and an in-memory task store. It does not bind a listener; call Start.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gateway: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	registry := channels.NewRegistry()
	if err := registerChannels(registry, cfg, logger); err != nil {
		return nil, fmt.Errorf("gateway: register channels: %w", err)
	}

	pairingDir := ""
	if cfg.Workspace.Enabled {
		pairingDir = cfg.Workspace.Path
	}
	pairingMgr, err := pairing.NewManager(pairingDir)
	if err != nil {
		return nil, fmt.Errorf("gateway: pairing manager: %w", err)
	}

	agentRouter, err := router.NewAgentRouter(nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: agent router: %w", err)
	}

	artifactRepo, err := BuildArtifactRepository(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: artifact repository: %w", err)
	}

	return &Server{
		config:    cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/haasonsaas/nexus/internal/gateway"),
		startTime: time.Now(),
		sessions:  sessions.NewManager(),
		pairing:   pairingMgr,
		channels:  registry,
		taskStore: tasks.NewMemoryStore(),
		artifacts: artifactRepo,
		agents:    agentRouter,
		metrics:   newServerMetrics(),
	}, nil
}

// registerChannels constructs and registers one adapter per enabled
// channel. A misconfigured adapter is reported by the constructor; the
// gateway does not second-guess channel-specific validation, already done
// by config.Load.
func registerChannels(registry *channels.Registry, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.BotToken})
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.BotToken})
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Slack.Enabled {
		registry.Register(slack.NewAdapter(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		}))
	}
	if cfg.Channels.WhatsApp.Enabled {
		adapter, err := whatsapp.New(&whatsapp.Config{
			Enabled:      true,
			SessionPath:  cfg.Channels.WhatsApp.SessionPath,
			MediaPath:    cfg.Channels.WhatsApp.MediaPath,
			SyncContacts: cfg.Channels.WhatsApp.SyncContacts,
		}, logger)
		if err != nil {
			return fmt.Errorf("whatsapp: %w", err)
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Matrix.Enabled {
		adapter, err := matrix.NewAdapter(matrix.Config{
			Homeserver:   cfg.Channels.Matrix.Homeserver,
			UserID:       cfg.Channels.Matrix.UserID,
			AccessToken:  cfg.Channels.Matrix.AccessToken,
			DeviceID:     cfg.Channels.Matrix.DeviceID,
			AllowedRooms: cfg.Channels.Matrix.AllowedRooms,
			AllowedUsers: cfg.Channels.Matrix.AllowedUsers,
			JoinOnInvite: cfg.Channels.Matrix.JoinOnInvite,
		})
		if err != nil {
			return fmt.Errorf("matrix: %w", err)
		}
		registry.Register(adapter)
	}
	return nil
}

// SetDispatcher wires the function that turns an InboundMessage into a
// running AgentLoop. Until set, webhook and cron deliveries only create or
// touch a session; nothing fails, there is just no reply.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatch = d
}

// Channels returns the channel registry, used by doctor probes and the
// cron scheduler's dispatcher.
func (s *Server) Channels() *channels.Registry {
	return s.channels
}

// TaskStore returns the scheduled-task store backing reminder probes.
func (s *Server) TaskStore() tasks.Store {
	return s.taskStore
}

// Sessions returns the session manager.
func (s *Server) Sessions() *sessions.Manager {
	return s.sessions
}

// Start binds the HTTP listener and starts every registered channel
// adapter. It returns once the listener is bound; serving happens in the
// background.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Server.HTTPPort == 0 {
		return fmt.Errorf("gateway: server.http_port is not configured")
	}

	if err := s.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("gateway: start channels: %w", err)
	}

	s.shutdownTracing = configureTracing(ctx, s.logger)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	s.httpListener = listener

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway started", "addr", addr)
	return nil
}

// Stop shuts the HTTP server down gracefully and stops every channel
// adapter.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http server shutdown error", "error", err)
		}
	}
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Warn("tracer shutdown error", "error", err)
		}
	}
	return s.channels.StopAll(ctx)
}

// ManagedServerConfig configures a ManagedServer.
type ManagedServerConfig struct {
	Config     *config.Config
	Logger     *slog.Logger
	ConfigPath string
}

// ManagedServer wraps Server with the cron scheduler, so `nexus serve`
// gets a single Start/Stop pair for everything the process runs.
type ManagedServer struct {
	*Server

	cron          *cron.Scheduler
	configWatcher *fsnotify.Watcher
}

// NewManagedServer builds a Server and, if cfg.Cron.Enabled, a cron
// scheduler whose jobs dispatch into the same pipeline webhooks use.
func NewManagedServer(cfg ManagedServerConfig) (*ManagedServer, error) {
	server, err := NewServer(cfg.Config, cfg.Logger)
	if err != nil {
		return nil, err
	}
	server.configPath = cfg.ConfigPath

	managed := &ManagedServer{Server: server}

	if cfg.Config.Cron.Enabled {
		scheduler := cron.NewScheduler(managed.dispatchCron, server.logger)
		for _, job := range cfg.Config.Cron.Jobs {
			if err := scheduler.AddJob(cron.Job{
				Name:     job.Name,
				Schedule: job.Schedule,
				Message:  job.Prompt,
				Enabled:  true,
				UserID:   job.AgentID,
			}); err != nil {
				return nil, fmt.Errorf("gateway: cron job %q: %w", job.Name, err)
			}
		}
		managed.cron = scheduler
	}

	return managed, nil
}

func (m *ManagedServer) dispatchCron(ctx context.Context, msg *models.InboundMessage) error {
	if m.Server.dispatch == nil {
		m.Server.logger.Warn("cron job fired with no dispatcher wired", "channel_id", msg.ChannelID)
		return nil
	}
	return m.Server.dispatch(ctx, msg)
}

// Start starts the base server and the cron scheduler, if configured.
func (m *ManagedServer) Start(ctx context.Context) error {
	if err := m.Server.Start(ctx); err != nil {
		return err
	}
	m.watchConfig(ctx)
	if m.cron != nil {
		return m.cron.Start(ctx)
	}
	return nil
}

// Stop stops the cron scheduler before the base server so no new job fires
// mid-shutdown.
func (m *ManagedServer) Stop(ctx context.Context) error {
	if m.cron != nil {
		if err := m.cron.Stop(); err != nil {
			m.Server.logger.Warn("cron scheduler stop error", "error", err)
		}
	}
	return m.Server.Stop(ctx)
}
