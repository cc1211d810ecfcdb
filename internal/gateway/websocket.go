package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/nexus/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the single JSON frame the /ws endpoint accepts: a steer
// command against an existing session. There is no protobuf control
// plane here; this is a plain JSON stream for local UIs and CLIs.
type wsMessage struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// handleWebSocket upgrades the connection and relays each incoming frame
// into the dispatcher as a steer against the named session, writing back
// an ack or error frame per message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var in wsMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}

		session, err := s.sessions.GetSession(in.SessionID)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": "session not found"})
			continue
		}

		if s.dispatch != nil {
			msg := &models.InboundMessage{
				ChannelID: session.ChannelID,
				From:      models.From{ChannelID: session.ChannelID},
				Text:      in.Text,
				Timestamp: time.Now(),
			}
			if err := s.dispatch(r.Context(), msg); err != nil {
				_ = conn.WriteJSON(map[string]string{"error": err.Error()})
				continue
			}
		}
		_ = conn.WriteJSON(map[string]bool{"ok": true})
	}
}
