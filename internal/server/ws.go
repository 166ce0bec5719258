package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// handleSubscribe streams game snapshots over a WebSocket. The current state
// is sent first, then one message per committed change. The socket closes
// normally when the game is deleted.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading so no write between the two is missed.
	updates, err := s.games.Subscribe(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	g, err := s.games.Get(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn().Err(err).Str("game_id", id).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	// Clients only listen; CloseRead cancels ctx when they go away.
	ctx = conn.CloseRead(ctx)

	s.log.Debug().Str("game_id", id).Msg("Subscriber connected")
	if err := s.push(ctx, conn, s.view(g)); err != nil {
		return
	}
	sent := g.Version

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Str("game_id", id).Msg("Subscriber disconnected")
			return
		case snap, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "game closed")
				return
			}
			if snap.Version <= sent {
				continue
			}
			sent = snap.Version
			if err := s.push(ctx, conn, s.view(&snap)); err != nil {
				s.log.Debug().Err(err).Str("game_id", id).Msg("Subscriber write failed")
				return
			}
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn, v GameView) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
