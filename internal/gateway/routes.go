package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/nexus/pkg/models"
)

// routes builds the gateway's HTTP mux per the control-plane surface:
// health/readiness, agent discovery, pairing, session CRUD, webhooks, and
// metrics. CORS runs first, then auth (exempt paths pass through), then
// per-route tracing and metrics.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("/pair", s.handlePair)
	mux.HandleFunc("/sessions", s.handleSessionsCollection)
	mux.HandleFunc("/sessions/", s.handleSessionItem)
	mux.HandleFunc("/webhooks/", s.handleWebhook)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	var handler http.Handler = mux
	handler = s.instrument(handler)
	handler = s.authMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	return handler
}

// instrument wraps every request with an OpenTelemetry span and a
// Prometheus observation, keyed by the route template rather than the raw
// path so dynamic segments (session ids) don't explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeTemplate(r.URL.Path)
		ctx, span := s.tracer.Start(r.Context(), "http."+route)
		defer span.End()

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))
		s.metrics.observe(route, r.Method, wrapped.status, time.Since(start))
	})
}

func routeTemplate(path string) string {
	switch {
	case path == "/health", path == "/ready", path == "/pair", path == "/.well-known/agent.json", path == "/metrics", path == "/ws":
		return path
	case strings.HasPrefix(path, "/sessions/"):
		if strings.HasSuffix(path, "/steer") {
			return "/sessions/:id/steer"
		}
		return "/sessions/:id"
	case path == "/sessions":
		return "/sessions"
	case strings.HasPrefix(path, "/webhooks/"):
		return "/webhooks/:name"
	default:
		return "unknown"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.pairing.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"sessions":  len(s.sessions.ListSessions()),
		"pairing":   stats,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	if s.config.LLM.DefaultProvider == "" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "nexus",
		"provider": s.config.LLM.DefaultProvider,
	})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Code) == "" {
		writeJSONError(w, http.StatusBadRequest, "missing code")
		return
	}
	_, token, _, err := s.pairing.ExchangeCode(body.Code)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paired": true, "token": token})
}

func (s *Server) handleSessionsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.ListSessions()})
	case http.MethodPost:
		var body struct {
			ChannelID string `json:"channelId"`
			UserID    string `json:"userId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		routeKey := body.ChannelID + ":" + body.UserID
		session := s.sessions.CreateSession(body.ChannelID, routeKey, models.SessionConfig{})
		writeJSON(w, http.StatusCreated, map[string]any{
			"sessionId": session.ID,
			"channelId": session.ChannelID,
			"userId":    body.UserID,
			"status":    string(session.Status),
		})
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if rest == "" {
		writeJSONError(w, http.StatusNotFound, "missing session id")
		return
	}
	if strings.HasSuffix(rest, "/steer") {
		s.handleSessionSteer(w, r, strings.TrimSuffix(rest, "/steer"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := s.sessions.GetSession(rest)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		if err := s.sessions.EndSession(rest, models.SessionCompleted); err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSessionSteer(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "missing message")
		return
	}
	session, err := s.sessions.GetSession(sessionID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if s.dispatch != nil {
		msg := &models.InboundMessage{
			ChannelID: session.ChannelID,
			From:      models.From{ChannelID: session.ChannelID},
			Text:      body.Message,
			Timestamp: time.Now(),
		}
		if err := s.dispatch(r.Context(), msg); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"steered": true, "message": body.Message})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/webhooks/")
	var body struct {
		Message string `json:"message"`
		UserID  string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg := &models.InboundMessage{
		ChannelID: "webhook:" + name,
		From:      models.From{ChannelID: "webhook:" + name, UserID: body.UserID},
		Text:      body.Message,
		Timestamp: time.Now(),
	}
	if s.dispatch != nil {
		if err := s.dispatch(r.Context(), msg); err != nil {
			s.logger.Error("webhook dispatch failed", "name", name, "error", err)
		}
	}
	w.WriteHeader(http.StatusAccepted)
}
