package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleEventStream upgrades to a websocket and relays bus events to the
// client until it disconnects. Each connection gets its own subscription, so
// a slow panel drops its own events without affecting other consumers.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin policy is handled by the CORS middleware for the
		// rest of the API; the dashboard may be served from another port.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	subID, eventCh := s.container.Bus.Subscribe()
	defer s.container.Bus.Unsubscribe(subID)

	s.log.Info().Str("subscription", subID).Msg("Event stream connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Str("subscription", subID).Msg("Event stream closed")
				return
			}
		}
	}
}
