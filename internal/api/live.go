package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleLeaderboardLive streams scoreboard frames over a websocket. The
// client receives the current standings immediately, then a fresh frame
// on every broadcast tick until it disconnects.
func (s *Server) handleLeaderboardLive(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("leaderboard websocket connected", "username", sess.Username)

	s.broadcaster.Register(r.Context(), conn)
	defer s.broadcaster.Unregister(conn)

	// Drain client messages until the peer closes; the stream is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}
	}

	slog.Info("leaderboard websocket disconnected", "username", sess.Username)
}
