package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wayfarerlabs/wayfarer/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cookie auth is the real gate; cross-origin websockets are fine.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleChatWS runs one turn per websocket message, streaming events as
// JSON frames. The same ChatRequest/Event shapes as the SSE endpoint.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sess := s.ensureSession(w, r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// A single goroutine writes; the sink serializes through this mutex
	// in case the publisher path ever grows its own writers.
	var writeMu sync.Mutex
	send := func(ev agent.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
		}
	}

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Message == "" {
			send(agent.Event{Kind: agent.EventError, Text: "message is required"})
			continue
		}
		if req.ThreadID == "" {
			req.ThreadID = uuid.NewString()
		}

		th, err := s.prefs.Thread(req.ThreadID)
		if err != nil || (th != nil && th.UserID != sess.UserID) {
			send(agent.Event{Kind: agent.EventError, Text: "thread not found"})
			continue
		}

		release, ok := s.locks.TryAcquire(req.ThreadID)
		if !ok {
			send(agent.Event{Kind: agent.EventError, Text: "a turn is already running for this thread"})
			continue
		}

		sink := func(ev agent.Event) {
			send(ev)
			if s.publisher != nil {
				s.publisher.PublishTurnEvent(req.ThreadID, ev)
			}
		}
		s.runTurn(r.Context(), sess, req, sink)
		release()
	}
}
