// Package sessions tracks the lifecycle of in-flight conversations. A
// session binds a channel route key to an agent and its running context;
// it is never persisted across a gateway restart.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ErrNotFound indicates the requested session id doesn't exist.
var ErrNotFound = errors.New("session not found")

// Manager creates, looks up, and evicts sessions. All state is in-memory;
// a restart loses every session, which is the intended behavior — sessions
// track a live conversation, not durable history.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	byRoute  map[string]string
	now      func() time.Time
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*models.Session),
		byRoute:  make(map[string]string),
		now:      time.Now,
	}
}

// CreateSession starts a new session bound to routeKey, replacing any
// existing session already bound to that key.
func (m *Manager) CreateSession(channelID, routeKey string, cfg models.SessionConfig) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if prevID, ok := m.byRoute[routeKey]; ok {
		delete(m.sessions, prevID)
	}

	session := &models.Session{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		RouteKey:     routeKey,
		Config:       cfg,
		Status:       models.SessionActive,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	m.sessions[session.ID] = session
	m.byRoute[routeKey] = session.ID
	return cloneSession(session)
}

// GetSession returns a copy of the session by id.
func (m *Manager) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

// GetByRoute returns the session currently bound to a route key, if any.
func (m *Manager) GetByRoute(routeKey string) (*models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRoute[routeKey]
	if !ok {
		return nil, false
	}
	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return cloneSession(session), true
}

// ListSessions returns a copy of every tracked session, regardless of status.
func (m *Manager) ListSessions() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, cloneSession(session))
	}
	return out
}

// TouchSession refreshes LastActiveAt and merges metadata counter deltas.
func (m *Manager) TouchSession(id string, delta models.SessionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.LastActiveAt = m.now()
	session.Metadata.LoopIterations += delta.LoopIterations
	session.Metadata.LLMCalls += delta.LLMCalls
	session.Metadata.ToolCalls += delta.ToolCalls
	session.Metadata.Errors += delta.Errors
	return nil
}

// EndSession marks a session terminal and removes its route binding so a
// new turn on the same route key starts a fresh session.
func (m *Manager) EndSession(id string, status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if status != models.SessionCompleted && status != models.SessionFailed {
		status = models.SessionCompleted
	}
	session.Status = status
	session.LastActiveAt = m.now()
	delete(m.byRoute, session.RouteKey)
	return nil
}

// EvictIdle ends every active session whose LastActiveAt is older than
// maxIdle, returning the ids evicted. Called periodically by the gateway.
func (m *Manager) EvictIdle(maxIdle time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var evicted []string
	for id, session := range m.sessions {
		if session.Status != models.SessionActive {
			continue
		}
		if now.Sub(session.LastActiveAt) <= maxIdle {
			continue
		}
		session.Status = models.SessionCompleted
		delete(m.byRoute, session.RouteKey)
		evicted = append(evicted, id)
	}
	return evicted
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.Config.ToolExclude != nil {
		clone.Config.ToolExclude = append([]string{}, session.Config.ToolExclude...)
	}
	return &clone
}
