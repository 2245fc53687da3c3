package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/duewatch/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SessionEvent is pushed to UI clients on every session transition
type SessionEvent struct {
	Type          string              `json:"type"`
	State         models.SessionState `json:"state"`
	Authenticated bool                `json:"authenticated"`
}

func newSessionEvent(state models.SessionState) SessionEvent {
	return SessionEvent{Type: "session", State: state, Authenticated: state.IsAuthenticated()}
}

// handleSessionEvents streams session transitions over a websocket. The
// current state is sent first.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.dashboard.Subscribe()
	defer unsubscribe()

	slog.Info("session events client connected", "remote_addr", r.RemoteAddr)

	if err := s.sendEvent(conn, newSessionEvent(s.dashboard.Session().State)); err != nil {
		return
	}

	// reader: only to process pongs and notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Info("session events client disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			if err := s.sendEvent(conn, newSessionEvent(state)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendEvent(conn *websocket.Conn, ev SessionEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		slog.Debug("failed to send session event", "error", err)
		return err
	}
	return nil
}
